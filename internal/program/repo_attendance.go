package program

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type sessionRow struct {
	AttendanceSession
	Owner ownerColumns `gorm:"embedded"`
}

type recordRow struct {
	AttendanceRecord
	Owner ownerColumns `gorm:"embedded"`
}

func (r *Repository) sessionQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("attendance_sessions AS s").
		Select("s.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = s.instructor_id")
}

// CreateAttendanceSession opens a new active session.
func (r *Repository) CreateAttendanceSession(ctx context.Context, s *AttendanceSession) error {
	s.IsActive = true
	s.ClosedAt = nil
	return r.db.WithContext(ctx).Create(s).Error
}

// ListAttendanceSessions returns sessions with their instructor, newest first.
func (r *Repository) ListAttendanceSessions(ctx context.Context) ([]AttendanceSession, error) {
	var rows []sessionRow
	if err := r.sessionQuery(ctx).Order("s.created_at DESC, s.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]AttendanceSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.session())
	}
	return out, nil
}

// GetAttendanceSession returns one session with its instructor.
func (r *Repository) GetAttendanceSession(ctx context.Context, id uint) (*AttendanceSession, error) {
	var rows []sessionRow
	if err := r.sessionQuery(ctx).Where("s.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	s := rows[0].session()
	return &s, nil
}

func (row sessionRow) session() AttendanceSession {
	s := row.AttendanceSession
	s.Instructor = row.Owner.user()
	return s
}

// CloseAttendanceSession deactivates a session. Closing twice keeps the first closedAt.
func (r *Repository) CloseAttendanceSession(ctx context.Context, id uint, now time.Time) (*AttendanceSession, error) {
	res := r.db.WithContext(ctx).
		Model(&AttendanceSession{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"is_active": false,
			"closed_at": gorm.Expr("COALESCE(closed_at, ?)", now),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetAttendanceSession(ctx, id)
}

// CreateAttendanceRecord inserts a check-in. It does not look at the session state.
func (r *Repository) CreateAttendanceRecord(ctx context.Context, rec *AttendanceRecord) error {
	if rec.CheckInTime.IsZero() {
		rec.CheckInTime = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListAttendanceRecords returns a session's records with their participant, latest check-in first.
func (r *Repository) ListAttendanceRecords(ctx context.Context, sessionID uint) ([]AttendanceRecord, error) {
	var rows []recordRow
	err := r.db.WithContext(ctx).
		Table("attendance_records AS ar").
		Select("ar.*, "+ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = ar.participant_id").
		Where("ar.session_id = ?", sessionID).
		Order("ar.check_in_time DESC, ar.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		rec := row.AttendanceRecord
		rec.Participant = row.Owner.user()
		out = append(out, rec)
	}
	return out, nil
}

// GetAttendanceRecord returns ErrNotFound when no record matches.
func (r *Repository) GetAttendanceRecord(ctx context.Context, id uint) (*AttendanceRecord, error) {
	var rec AttendanceRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// UpdateAttendanceRecord applies the non-nil fields of patch.
func (r *Repository) UpdateAttendanceRecord(ctx context.Context, id uint, patch RecordPatch) (*AttendanceRecord, error) {
	updates := map[string]any{}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if err := r.update(ctx, &AttendanceRecord{}, id, updates); err != nil {
		return nil, err
	}
	return r.GetAttendanceRecord(ctx, id)
}
