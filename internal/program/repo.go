package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Repository persists program data through gorm.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewRepository creates a repo.
func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// Migrate creates or updates the schema. On Postgres it also adds the
// foreign keys and enum checks gorm cannot derive from the models.
func (r *Repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	for _, c := range postgresConstraints {
		stmt := fmt.Sprintf(`DO $$ BEGIN
	ALTER TABLE %s ADD CONSTRAINT %s %s;
EXCEPTION
	WHEN duplicate_object THEN null;
END $$;`, c.table, c.name, c.def)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}
	return nil
}

var postgresConstraints = []struct{ table, name, def string }{
	{"participants", "fk_participants_user", "FOREIGN KEY (user_id) REFERENCES users(id)"},
	{"instructors", "fk_instructors_user", "FOREIGN KEY (user_id) REFERENCES users(id)"},
	{"materials", "fk_materials_uploader", "FOREIGN KEY (uploaded_by) REFERENCES users(id)"},
	{"attendance_sessions", "fk_sessions_instructor", "FOREIGN KEY (instructor_id) REFERENCES users(id)"},
	{"attendance_records", "fk_records_session", "FOREIGN KEY (session_id) REFERENCES attendance_sessions(id)"},
	{"attendance_records", "fk_records_participant", "FOREIGN KEY (participant_id) REFERENCES users(id)"},
	{"grades", "fk_grades_participant", "FOREIGN KEY (participant_id) REFERENCES users(id)"},
	{"certificates", "fk_certificates_participant", "FOREIGN KEY (participant_id) REFERENCES users(id)"},
	{"users", "chk_users_role", "CHECK (role IN ('participant','instructor','organizer'))"},
	{"instructors", "chk_instructors_status", "CHECK (status IN ('active','inactive'))"},
	{"attendance_records", "chk_records_status", "CHECK (status IN ('present','absent','late'))"},
	{"certificates", "chk_certificates_status", "CHECK (status IN ('draft','issued','revoked'))"},
}

// ownerColumns receives the left-joined owning user of a row.
type ownerColumns struct {
	OwnerID        *uint      `gorm:"column:owner_id"`
	OwnerUsername  *string    `gorm:"column:owner_username"`
	OwnerRole      *string    `gorm:"column:owner_role"`
	OwnerFullName  *string    `gorm:"column:owner_full_name"`
	OwnerEmail     *string    `gorm:"column:owner_email"`
	OwnerPhone     *string    `gorm:"column:owner_phone"`
	OwnerCreatedAt *time.Time `gorm:"column:owner_created_at"`
}

func ownerSelect(alias string) string {
	return fmt.Sprintf("%[1]s.id AS owner_id, %[1]s.username AS owner_username, %[1]s.role AS owner_role, "+
		"%[1]s.full_name AS owner_full_name, %[1]s.email AS owner_email, %[1]s.phone AS owner_phone, "+
		"%[1]s.created_at AS owner_created_at", alias)
}

func (o ownerColumns) user() *User {
	if o.OwnerID == nil {
		return nil
	}
	u := &User{ID: *o.OwnerID}
	if o.OwnerUsername != nil {
		u.Username = *o.OwnerUsername
	}
	if o.OwnerRole != nil {
		u.Role = *o.OwnerRole
	}
	if o.OwnerFullName != nil {
		u.FullName = *o.OwnerFullName
	}
	if o.OwnerEmail != nil {
		u.Email = *o.OwnerEmail
	}
	if o.OwnerPhone != nil {
		u.Phone = *o.OwnerPhone
	}
	if o.OwnerCreatedAt != nil {
		u.CreatedAt = *o.OwnerCreatedAt
	}
	return u
}

// --- users ---

// CreateUserWithParticipant inserts a participant user and its profile in one transaction.
func (r *Repository) CreateUserWithParticipant(ctx context.Context, u *User, p *Participant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			if isUniqueViolation(err) {
				return duplicateUserError(err)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		p.UserID = u.ID
		if err := tx.Create(p).Error; err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		return nil
	})
}

// CreateUser inserts a bare user, used for seeded staff accounts.
func (r *Repository) CreateUser(ctx context.Context, u *User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return duplicateUserError(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByUsername returns ErrNotFound when no user matches.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetUserByID returns ErrNotFound when no user matches.
func (r *Repository) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// --- participants ---

type participantRow struct {
	Participant
	Owner ownerColumns `gorm:"embedded"`
}

// ListParticipants returns profiles with their users, newest first.
func (r *Repository) ListParticipants(ctx context.Context) ([]Participant, error) {
	var rows []participantRow
	err := r.db.WithContext(ctx).
		Table("participants AS p").
		Select("p.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = p.user_id").
		Order("p.created_at DESC, p.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Participant, 0, len(rows))
	for _, row := range rows {
		p := row.Participant
		p.User = row.Owner.user()
		out = append(out, p)
	}
	return out, nil
}

// GetParticipantByUserID returns the profile of a participant user.
func (r *Repository) GetParticipantByUserID(ctx context.Context, userID uint) (*Participant, error) {
	var p Participant
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// --- instructors ---

type instructorRow struct {
	Instructor
	Owner ownerColumns `gorm:"embedded"`
}

// CreateInstructor inserts the profile and elevates a participant user to instructor.
func (r *Repository) CreateInstructor(ctx context.Context, ins *Instructor) error {
	if ins.Status == "" {
		ins.Status = InstructorActive
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ins).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyInstructor
			}
			return fmt.Errorf("insert instructor: %w", err)
		}
		return tx.Model(&User{}).
			Where("id = ? AND role = ?", ins.UserID, RoleParticipant).
			Update("role", RoleInstructor).Error
	})
}

// ListInstructors returns instructors with their users, newest first.
func (r *Repository) ListInstructors(ctx context.Context) ([]Instructor, error) {
	var rows []instructorRow
	err := r.db.WithContext(ctx).
		Table("instructors AS i").
		Select("i.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = i.user_id").
		Order("i.created_at DESC, i.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Instructor, 0, len(rows))
	for _, row := range rows {
		ins := row.Instructor
		ins.User = row.Owner.user()
		out = append(out, ins)
	}
	return out, nil
}

// GetInstructor returns ErrNotFound when no instructor matches.
func (r *Repository) GetInstructor(ctx context.Context, id uint) (*Instructor, error) {
	var ins Instructor
	if err := r.db.WithContext(ctx).First(&ins, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ins, nil
}

// UpdateInstructor applies the non-nil fields of patch.
func (r *Repository) UpdateInstructor(ctx context.Context, id uint, patch InstructorPatch) (*Instructor, error) {
	updates := map[string]any{}
	if patch.Specialization != nil {
		updates["specialization"] = *patch.Specialization
	}
	if patch.CV != nil {
		updates["cv"] = *patch.CV
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if err := r.update(ctx, &Instructor{}, id, updates); err != nil {
		return nil, err
	}
	return r.GetInstructor(ctx, id)
}

// DeleteInstructor removes the profile and reports whether a row was deleted.
// A user whose role is still instructor falls back to participant.
func (r *Repository) DeleteInstructor(ctx context.Context, id uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ins Instructor
		if err := tx.First(&ins, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		res := tx.Delete(&Instructor{}, id)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return tx.Model(&User{}).
			Where("id = ? AND role = ?", ins.UserID, RoleInstructor).
			Update("role", RoleParticipant).Error
	})
	return deleted, err
}

// update applies a column map to one row, ErrNotFound if the id is unknown.
func (r *Repository) update(ctx context.Context, model any, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return nil
	}
	res := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// deleteByID hard-deletes one row and reports whether it existed.
func (r *Repository) deleteByID(ctx context.Context, model any, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(model, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
