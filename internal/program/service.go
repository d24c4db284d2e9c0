package program

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"makesta/internal/auth"
	"makesta/internal/filestore"
	"makesta/internal/metrics"
	"makesta/internal/queue"
)

// Publisher is the write side of the activity queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Options tunes Service policy.
type Options struct {
	// RequireActiveSession rejects check-ins on closed sessions.
	RequireActiveSession bool
}

// Service applies the program rules on top of the repository.
type Service struct {
	repo          *Repository
	files         filestore.Store
	events        Publisher
	logger        *slog.Logger
	requireActive bool
	now           func() time.Time
	verify        func(plain, hash string) bool
}

// NewService wires a service. files and events may be nil.
func NewService(repo *Repository, files filestore.Store, events Publisher, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		files:         files,
		events:        events,
		logger:        logger,
		requireActive: opts.RequireActiveSession,
		now:           func() time.Time { return time.Now().UTC() },
		verify:        auth.VerifyPassword,
	}
}

// Registration is the self-service signup form.
type Registration struct {
	Username               string
	Password               string
	FullName               string
	Email                  string
	Phone                  string
	BirthPlace             string
	Address                string
	Elementary             string
	JuniorHigh             *string
	SeniorHigh             *string
	Purpose                string
	OrganizationExperience *string
	Interests              string
	Talents                string
	Motto                  *string
}

// Register creates a participant account and its profile.
// The role is always participant regardless of input.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	if len(reg.Username) < 3 {
		return nil, invalid("username", "must be at least 3 characters")
	}
	if len(reg.Password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     reg.Username,
		PasswordHash: hash,
		Role:         RoleParticipant,
		FullName:     reg.FullName,
		Email:        strings.TrimSpace(reg.Email),
		Phone:        reg.Phone,
	}
	p := &Participant{
		BirthPlace:             reg.BirthPlace,
		Address:                reg.Address,
		Elementary:             reg.Elementary,
		JuniorHigh:             reg.JuniorHigh,
		SeniorHigh:             reg.SeniorHigh,
		Purpose:                reg.Purpose,
		OrganizationExperience: reg.OrganizationExperience,
		Interests:              reg.Interests,
		Talents:                reg.Talents,
		Motto:                  reg.Motto,
	}
	if err := s.repo.CreateUserWithParticipant(ctx, u, p); err != nil {
		return nil, err
	}
	metrics.Registrations.Inc()
	s.publish(ctx, queue.UserRegistered, &u.ID, u.ID, u.Username)
	return u, nil
}

// Login checks credentials. Failures never reveal which part was wrong.
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	hash := dummyHash()
	if u != nil {
		hash = u.PasswordHash
	}
	// Unknown usernames still pay for one bcrypt comparison.
	if !s.verify(password, hash) || u == nil {
		metrics.LoginFailures.Inc()
		s.logger.Warn("login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// dummyHash is compared against when a login names no existing user.
var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword("makesta-no-such-user")
	if err != nil {
		panic(err)
	}
	return h
})

// OrganizerSeed describes the bootstrap organizer account.
type OrganizerSeed struct {
	Username string
	Password string
	Email    string
	FullName string
}

// EnsureOrganizer creates the seed organizer if the username is free.
// An empty username or password disables seeding.
func (s *Service) EnsureOrganizer(ctx context.Context, seed OrganizerSeed) error {
	if seed.Username == "" || seed.Password == "" {
		return nil
	}
	existing, err := s.repo.GetUserByUsername(ctx, seed.Username)
	switch {
	case err == nil:
		if existing.Role != RoleOrganizer {
			s.logger.Warn("seed organizer username belongs to another role", "username", seed.Username, "role", existing.Role)
		}
		return nil
	case !errors.Is(err, ErrNotFound):
		return err
	}
	hash, err := auth.HashPassword(seed.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Username:     seed.Username,
		PasswordHash: hash,
		Role:         RoleOrganizer,
		FullName:     seed.FullName,
		Email:        seed.Email,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return err
	}
	s.logger.Info("seeded organizer account", "username", u.Username, "id", u.ID)
	return nil
}

// --- instructors ---

// NewInstructor is the organizer's promotion request.
type NewInstructor struct {
	UserID         uint
	Specialization string
	CV             *string
}

// InstructorPatch holds optional instructor changes.
type InstructorPatch struct {
	Specialization *string
	CV             *string
	Status         *string
}

// CreateInstructor promotes an existing user.
func (s *Service) CreateInstructor(ctx context.Context, actorID uint, in NewInstructor) (*Instructor, error) {
	if strings.TrimSpace(in.Specialization) == "" {
		return nil, invalid("specialization", "is required")
	}
	if _, err := s.repo.GetUserByID(ctx, in.UserID); err != nil {
		return nil, err
	}
	ins := &Instructor{UserID: in.UserID, Specialization: in.Specialization, CV: in.CV, Status: InstructorActive}
	if err := s.repo.CreateInstructor(ctx, ins); err != nil {
		return nil, err
	}
	s.publish(ctx, queue.InstructorCreated, &actorID, ins.UserID, ins.Specialization)
	return ins, nil
}

// UpdateInstructor validates the status before applying patch.
func (s *Service) UpdateInstructor(ctx context.Context, id uint, patch InstructorPatch) (*Instructor, error) {
	if patch.Status != nil && !slices.Contains([]string{InstructorActive, InstructorInactive}, *patch.Status) {
		return nil, invalid("status", "must be active or inactive")
	}
	return s.repo.UpdateInstructor(ctx, id, patch)
}

// --- materials ---

// NewMaterial is the metadata part of an upload.
type NewMaterial struct {
	Title       string
	Description *string
}

// Upload is a file streamed from the request.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// MaterialPatch holds optional material changes.
type MaterialPatch struct {
	Title       *string
	Description *string
}

// UploadMaterial stores the optional file, then the row. The file is
// removed again if the row cannot be written.
func (s *Service) UploadMaterial(ctx context.Context, uploaderID uint, in NewMaterial, file *Upload) (*Material, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "is required")
	}
	m := &Material{Title: in.Title, Description: in.Description, UploadedByID: uploaderID}
	if file != nil {
		if s.files == nil {
			return nil, errors.New("file storage is not configured")
		}
		obj, err := s.files.Put(ctx, file.Name, file.ContentType, file.Body)
		if err != nil {
			return nil, fmt.Errorf("store file: %w", err)
		}
		m.FileKey = &obj.Key
		m.FileName = &file.Name
		m.FileSize = &obj.Size
		if file.ContentType != "" {
			m.ContentType = &file.ContentType
		}
	}
	if err := s.repo.CreateMaterial(ctx, m); err != nil {
		if m.HasFile() {
			s.removeFile(*m.FileKey)
		}
		return nil, err
	}
	s.publish(ctx, queue.MaterialUploaded, &uploaderID, m.ID, m.Title)
	return s.repo.GetMaterial(ctx, m.ID)
}

// OpenMaterialFile opens the stored file and counts the download.
// The counter only moves once the file is known to be readable.
func (s *Service) OpenMaterialFile(ctx context.Context, actorID, id uint) (*Material, io.ReadCloser, int64, error) {
	m, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	if !m.HasFile() || s.files == nil {
		return nil, nil, 0, ErrNotFound
	}
	rc, size, err := s.files.Open(ctx, *m.FileKey)
	if err != nil {
		if errors.Is(err, filestore.ErrNotExist) {
			s.logger.Warn("material file missing", "material_id", id, "key", *m.FileKey)
			return nil, nil, 0, ErrNotFound
		}
		return nil, nil, 0, fmt.Errorf("open file: %w", err)
	}
	if err := s.repo.IncrementDownloadCount(ctx, id); err != nil {
		rc.Close()
		return nil, nil, 0, err
	}
	m.DownloadCount++
	metrics.MaterialDownloads.Inc()
	s.publish(ctx, queue.MaterialDownloaded, &actorID, id, m.Title)
	return m, rc, size, nil
}

// DeleteMaterial removes the row and then its stored file.
func (s *Service) DeleteMaterial(ctx context.Context, id uint) (bool, error) {
	m, err := s.repo.GetMaterial(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	deleted, err := s.repo.DeleteMaterial(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	if m.HasFile() {
		s.removeFile(*m.FileKey)
	}
	return true, nil
}

func (s *Service) removeFile(key string) {
	if s.files == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.files.Delete(ctx, key); err != nil {
		s.logger.Error("remove stored file", "key", key, "err", err)
	}
}

// --- attendance ---

// NewRecord is one check-in request.
type NewRecord struct {
	SessionID     uint
	ParticipantID uint
	Status        string
	Notes         *string
}

// RecordPatch holds optional attendance record changes.
type RecordPatch struct {
	Status *string
	Notes  *string
}

var attendanceStatuses = []string{StatusPresent, StatusAbsent, StatusLate}

// OpenSession starts an active session owned by the instructor.
func (s *Service) OpenSession(ctx context.Context, instructorID uint, title string, description *string) (*AttendanceSession, error) {
	if strings.TrimSpace(title) == "" {
		return nil, invalid("title", "is required")
	}
	sess := &AttendanceSession{Title: title, Description: description, InstructorID: instructorID}
	if err := s.repo.CreateAttendanceSession(ctx, sess); err != nil {
		return nil, err
	}
	return s.repo.GetAttendanceSession(ctx, sess.ID)
}

// CloseSession is idempotent. Existing records are kept.
func (s *Service) CloseSession(ctx context.Context, actorID, id uint) (*AttendanceSession, error) {
	sess, err := s.repo.CloseAttendanceSession(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, queue.SessionClosed, &actorID, id, sess.Title)
	return sess, nil
}

// RecordAttendance stores a check-in. Closed sessions accept records unless
// the service was built with RequireActiveSession.
func (s *Service) RecordAttendance(ctx context.Context, in NewRecord) (*AttendanceRecord, error) {
	if !slices.Contains(attendanceStatuses, in.Status) {
		return nil, invalid("status", "must be present, absent or late")
	}
	sess, err := s.repo.GetAttendanceSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if s.requireActive && !sess.IsActive {
		return nil, ErrSessionClosed
	}
	if err := s.requireParticipant(ctx, "participantId", in.ParticipantID); err != nil {
		return nil, err
	}
	rec := &AttendanceRecord{
		SessionID:     in.SessionID,
		ParticipantID: in.ParticipantID,
		Status:        in.Status,
		Notes:         in.Notes,
		CheckInTime:   s.now(),
	}
	if err := s.repo.CreateAttendanceRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SessionRecords lists the records of an existing session.
func (s *Service) SessionRecords(ctx context.Context, sessionID uint) ([]AttendanceRecord, error) {
	if _, err := s.repo.GetAttendanceSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListAttendanceRecords(ctx, sessionID)
}

// UpdateRecord validates the status before applying patch.
func (s *Service) UpdateRecord(ctx context.Context, id uint, patch RecordPatch) (*AttendanceRecord, error) {
	if patch.Status != nil && !slices.Contains(attendanceStatuses, *patch.Status) {
		return nil, invalid("status", "must be present, absent or late")
	}
	return s.repo.UpdateAttendanceRecord(ctx, id, patch)
}

// --- grades ---

// NewGrade carries scores; nil means not graded yet.
type NewGrade struct {
	ParticipantID   uint
	AssignmentScore *int
	ExamScore       *int
	FinalScore      *int
}

// GradePatch holds optional score changes.
type GradePatch struct {
	AssignmentScore *int
	ExamScore       *int
	FinalScore      *int
}

// CreateGrade rejects scores outside 0..100.
func (s *Service) CreateGrade(ctx context.Context, in NewGrade) (*Grade, error) {
	if err := checkScores(in.AssignmentScore, in.ExamScore, in.FinalScore); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, "participantId", in.ParticipantID); err != nil {
		return nil, err
	}
	g := &Grade{
		ParticipantID:   in.ParticipantID,
		AssignmentScore: in.AssignmentScore,
		ExamScore:       in.ExamScore,
		FinalScore:      in.FinalScore,
	}
	if err := s.repo.CreateGrade(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// UpdateGrade rejects scores outside 0..100.
func (s *Service) UpdateGrade(ctx context.Context, id uint, patch GradePatch) (*Grade, error) {
	if err := checkScores(patch.AssignmentScore, patch.ExamScore, patch.FinalScore); err != nil {
		return nil, err
	}
	return s.repo.UpdateGrade(ctx, id, patch)
}

func checkScores(assignment, exam, final *int) error {
	for _, f := range []struct {
		name  string
		score *int
	}{{"assignmentScore", assignment}, {"examScore", exam}, {"finalScore", final}} {
		if f.score != nil && (*f.score < 0 || *f.score > 100) {
			return invalid(f.name, "must be between 0 and 100")
		}
	}
	return nil
}

// --- certificates ---

// NewCertificate is an organizer's issue request.
type NewCertificate struct {
	ParticipantID   uint
	CertificateType string
	Status          string
	Notes           *string
}

// CertificatePatch holds optional certificate changes.
type CertificatePatch struct {
	CertificateType *string
	Status          *string
	Notes           *string
}

var certificateStatuses = []string{CertificateDraft, CertificateIssued, CertificateRevoked}

// IssueCertificate creates a certificate. Repeats for the same participant are allowed.
func (s *Service) IssueCertificate(ctx context.Context, actorID uint, in NewCertificate) (*Certificate, error) {
	if in.Status != "" && !slices.Contains(certificateStatuses, in.Status) {
		return nil, invalid("status", "must be draft, issued or revoked")
	}
	if err := s.requireParticipant(ctx, "participantId", in.ParticipantID); err != nil {
		return nil, err
	}
	c := &Certificate{
		ParticipantID:   in.ParticipantID,
		CertificateType: strings.TrimSpace(in.CertificateType),
		Status:          in.Status,
		Notes:           in.Notes,
	}
	if err := s.repo.CreateCertificate(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, queue.CertificateIssued, &actorID, c.ParticipantID, c.CertificateType)
	return c, nil
}

// UpdateCertificate validates the status before applying patch.
func (s *Service) UpdateCertificate(ctx context.Context, id uint, patch CertificatePatch) (*Certificate, error) {
	if patch.Status != nil && !slices.Contains(certificateStatuses, *patch.Status) {
		return nil, invalid("status", "must be draft, issued or revoked")
	}
	if patch.CertificateType != nil && strings.TrimSpace(*patch.CertificateType) == "" {
		return nil, invalid("certificateType", "must not be empty")
	}
	return s.repo.UpdateCertificate(ctx, id, patch)
}

// requireParticipant turns an unknown or non-participant user id in a
// request body into a 400.
func (s *Service) requireParticipant(ctx context.Context, field string, id uint) error {
	if id == 0 {
		return invalid(field, "is required")
	}
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalid(field, "unknown user")
		}
		return err
	}
	if u.Role != RoleParticipant {
		return invalid(field, "must reference a participant")
	}
	return nil
}

// publish queues an activity event. Failures are logged and counted, never returned.
func (s *Service) publish(ctx context.Context, typ string, actorID *uint, subjectID uint, detail string) {
	if s.events == nil {
		return
	}
	msg, err := queue.NewMessage(typ, queue.Activity{
		ActorID:    actorID,
		SubjectID:  &subjectID,
		Detail:     detail,
		OccurredAt: s.now(),
	})
	if err == nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		err = s.events.Publish(pctx, msg)
		cancel()
	}
	if err != nil {
		metrics.QueuePublishFailures.Inc()
		s.logger.Warn("activity publish failed", "type", typ, "err", err)
	}
}
