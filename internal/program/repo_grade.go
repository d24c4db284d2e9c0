package program

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type gradeRow struct {
	Grade
	Owner ownerColumns `gorm:"embedded"`
}

type certificateRow struct {
	Certificate
	Owner ownerColumns `gorm:"embedded"`
}

func (r *Repository) gradeQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("grades AS g").
		Select("g.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = g.participant_id")
}

func (r *Repository) scanGrades(q *gorm.DB) ([]Grade, error) {
	var rows []gradeRow
	if err := q.Order("g.created_at DESC, g.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Grade, 0, len(rows))
	for _, row := range rows {
		g := row.Grade
		g.Participant = row.Owner.user()
		out = append(out, g)
	}
	return out, nil
}

// CreateGrade stores scores as given. Range checks belong to the caller.
func (r *Repository) CreateGrade(ctx context.Context, g *Grade) error {
	return r.db.WithContext(ctx).Create(g).Error
}

// ListGrades returns grades with their participant, newest first.
func (r *Repository) ListGrades(ctx context.Context) ([]Grade, error) {
	return r.scanGrades(r.gradeQuery(ctx))
}

// GetGrade returns ErrNotFound when no grade matches.
func (r *Repository) GetGrade(ctx context.Context, id uint) (*Grade, error) {
	var g Grade
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

// GetGradeByParticipant returns the participant's most recent grade.
func (r *Repository) GetGradeByParticipant(ctx context.Context, participantID uint) (*Grade, error) {
	grades, err := r.scanGrades(r.gradeQuery(ctx).Where("g.participant_id = ?", participantID).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(grades) == 0 {
		return nil, ErrNotFound
	}
	return &grades[0], nil
}

// UpdateGrade applies the non-nil scores of patch and refreshes updatedAt.
func (r *Repository) UpdateGrade(ctx context.Context, id uint, patch GradePatch) (*Grade, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if patch.AssignmentScore != nil {
		updates["assignment_score"] = *patch.AssignmentScore
	}
	if patch.ExamScore != nil {
		updates["exam_score"] = *patch.ExamScore
	}
	if patch.FinalScore != nil {
		updates["final_score"] = *patch.FinalScore
	}
	if err := r.update(ctx, &Grade{}, id, updates); err != nil {
		return nil, err
	}
	return r.GetGrade(ctx, id)
}

// --- certificates ---

func (r *Repository) scanCertificates(q *gorm.DB) ([]Certificate, error) {
	var rows []certificateRow
	err := q.Table("certificates AS c").
		Select("c.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = c.participant_id").
		Order("c.issued_at DESC, c.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Certificate, 0, len(rows))
	for _, row := range rows {
		c := row.Certificate
		c.Participant = row.Owner.user()
		out = append(out, c)
	}
	return out, nil
}

// CreateCertificate stamps issuedAt and fills the default type and status.
// A participant may hold several certificates of the same type.
func (r *Repository) CreateCertificate(ctx context.Context, c *Certificate) error {
	if c.CertificateType == "" {
		c.CertificateType = DefaultCertificateType
	}
	if c.Status == "" {
		c.Status = CertificateDraft
	}
	c.IssuedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(c).Error
}

// ListCertificates returns certificates with their participant, latest issue first.
func (r *Repository) ListCertificates(ctx context.Context) ([]Certificate, error) {
	return r.scanCertificates(r.db.WithContext(ctx))
}

// ListCertificatesByParticipant returns one participant's certificates, latest issue first.
func (r *Repository) ListCertificatesByParticipant(ctx context.Context, participantID uint) ([]Certificate, error) {
	return r.scanCertificates(r.db.WithContext(ctx).Where("c.participant_id = ?", participantID))
}

// GetCertificate returns ErrNotFound when no certificate matches.
func (r *Repository) GetCertificate(ctx context.Context, id uint) (*Certificate, error) {
	var c Certificate
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// UpdateCertificate applies the non-nil fields of patch.
func (r *Repository) UpdateCertificate(ctx context.Context, id uint, patch CertificatePatch) (*Certificate, error) {
	updates := map[string]any{}
	if patch.CertificateType != nil {
		updates["certificate_type"] = *patch.CertificateType
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if err := r.update(ctx, &Certificate{}, id, updates); err != nil {
		return nil, err
	}
	return r.GetCertificate(ctx, id)
}

// DeleteCertificate hard-deletes a certificate and reports whether it existed.
func (r *Repository) DeleteCertificate(ctx context.Context, id uint) (bool, error) {
	return r.deleteByID(ctx, &Certificate{}, id)
}
