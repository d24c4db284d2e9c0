package program

import "time"

// Roles a user can hold.
const (
	RoleParticipant = "participant"
	RoleInstructor  = "instructor"
	RoleOrganizer   = "organizer"
)

// Instructor statuses.
const (
	InstructorActive   = "active"
	InstructorInactive = "inactive"
)

// Attendance statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// Certificate statuses.
const (
	CertificateDraft   = "draft"
	CertificateIssued  = "issued"
	CertificateRevoked = "revoked"
)

// DefaultCertificateType is used when a certificate is created without a type.
const DefaultCertificateType = "completion"

// User is an account. PasswordHash never leaves the process.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:255;not null;uniqueIndex:idx_users_username" json:"username"`
	PasswordHash string    `gorm:"column:password;size:255;not null" json:"-"`
	Role         string    `gorm:"size:32;not null;default:participant;index" json:"role"`
	FullName     string    `gorm:"size:255;not null" json:"fullName"`
	Email        string    `gorm:"size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	Phone        string    `gorm:"size:64;not null" json:"phone"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Participant is the biographical profile created alongside a participant user.
type Participant struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	UserID                 uint      `gorm:"not null;uniqueIndex" json:"userId"`
	BirthPlace             string    `gorm:"not null" json:"birthPlace"`
	Address                string    `gorm:"not null" json:"address"`
	Elementary             string    `gorm:"not null" json:"elementary"`
	JuniorHigh             *string   `json:"juniorHigh"`
	SeniorHigh             *string   `json:"seniorHigh"`
	Purpose                string    `gorm:"not null" json:"purpose"`
	OrganizationExperience *string   `json:"organizationExperience"`
	Interests              string    `gorm:"not null" json:"interests"`
	Talents                string    `gorm:"not null" json:"talents"`
	Motto                  *string   `json:"motto"`
	CreatedAt              time.Time `json:"createdAt"`

	User *User `gorm:"-" json:"user,omitempty"`
}

// Instructor is the teaching profile of a user promoted by an organizer.
type Instructor struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex" json:"userId"`
	Specialization string    `gorm:"not null" json:"specialization"`
	CV             *string   `gorm:"column:cv" json:"cv"`
	Status         string    `gorm:"size:16;not null;default:active" json:"status"`
	CreatedAt      time.Time `json:"createdAt"`

	User *User `gorm:"-" json:"user,omitempty"`
}

// Material is a learning resource, optionally backed by a stored file.
type Material struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"not null" json:"title"`
	Description   *string   `json:"description"`
	FileKey       *string   `gorm:"column:file_path" json:"-"`
	FileName      *string   `json:"fileName"`
	ContentType   *string   `json:"contentType"`
	FileSize      *int64    `json:"fileSize"`
	DownloadCount int64     `gorm:"not null;default:0" json:"downloadCount"`
	UploadedByID  uint      `gorm:"column:uploaded_by;not null;index" json:"uploadedById"`
	CreatedAt     time.Time `json:"createdAt"`

	UploadedBy *User `gorm:"-" json:"uploadedBy,omitempty"`
}

// HasFile reports whether a stored file backs the material.
func (m Material) HasFile() bool {
	return m.FileKey != nil && *m.FileKey != ""
}

// AttendanceSession is a window in which participants record attendance.
type AttendanceSession struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Title        string     `gorm:"not null" json:"title"`
	Description  *string    `json:"description"`
	InstructorID uint       `gorm:"not null;index" json:"instructorId"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	ClosedAt     *time.Time `json:"closedAt"`

	Instructor *User `gorm:"-" json:"instructor,omitempty"`
}

// AttendanceRecord is one participant's check-in for a session.
type AttendanceRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionID     uint      `gorm:"not null;index" json:"sessionId"`
	ParticipantID uint      `gorm:"not null;index" json:"participantId"`
	Status        string    `gorm:"size:16;not null" json:"status"`
	CheckInTime   time.Time `gorm:"not null" json:"checkInTime"`
	Notes         *string   `json:"notes"`

	Participant *User `gorm:"-" json:"participant,omitempty"`
}

// Grade holds a participant's scores. Nil means not yet graded.
type Grade struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ParticipantID   uint      `gorm:"not null;index" json:"participantId"`
	AssignmentScore *int      `json:"assignmentScore"`
	ExamScore       *int      `json:"examScore"`
	FinalScore      *int      `json:"finalScore"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	Participant *User `gorm:"-" json:"participant,omitempty"`
}

// Average treats missing scores as zero.
func (g Grade) Average() float64 {
	sum := 0
	for _, s := range []*int{g.AssignmentScore, g.ExamScore, g.FinalScore} {
		if s != nil {
			sum += *s
		}
	}
	return float64(sum) / 3
}

// Certificate is a credential issued to a participant.
type Certificate struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ParticipantID   uint      `gorm:"not null;index" json:"participantId"`
	CertificateType string    `gorm:"size:64;not null;default:completion" json:"certificateType"`
	Status          string    `gorm:"size:16;not null;default:draft" json:"status"`
	Notes           *string   `json:"notes"`
	FileKey         *string   `gorm:"column:file_path" json:"-"`
	IssuedAt        time.Time `gorm:"not null;index" json:"issuedAt"`

	Participant *User `gorm:"-" json:"participant,omitempty"`
}

// ActivityLog is one entry of the organizer activity feed.
type ActivityLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Type       string    `gorm:"size:64;not null;index" json:"type"`
	ActorID    *uint     `json:"actorId"`
	SubjectID  *uint     `json:"subjectId"`
	Detail     string    `json:"detail"`
	OccurredAt time.Time `gorm:"not null;index" json:"occurredAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Models lists every persisted type for schema migration.
func Models() []any {
	return []any{
		&User{}, &Participant{}, &Instructor{}, &Material{},
		&AttendanceSession{}, &AttendanceRecord{}, &Grade{}, &Certificate{}, &ActivityLog{},
	}
}
