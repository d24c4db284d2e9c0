package program

import (
	"context"

	"gorm.io/gorm"
)

type materialRow struct {
	Material
	Owner ownerColumns `gorm:"embedded"`
}

func (r *Repository) materialQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("materials AS m").
		Select("m.*, " + ownerSelect("u")).
		Joins("LEFT JOIN users u ON u.id = m.uploaded_by")
}

// CreateMaterial inserts a material with a zero download count.
func (r *Repository) CreateMaterial(ctx context.Context, m *Material) error {
	m.DownloadCount = 0
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMaterials returns materials with their uploader, newest first.
func (r *Repository) ListMaterials(ctx context.Context) ([]Material, error) {
	var rows []materialRow
	if err := r.materialQuery(ctx).Order("m.created_at DESC, m.id DESC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Material, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.material())
	}
	return out, nil
}

// GetMaterial returns one material with its uploader.
func (r *Repository) GetMaterial(ctx context.Context, id uint) (*Material, error) {
	var rows []materialRow
	if err := r.materialQuery(ctx).Where("m.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	m := rows[0].material()
	return &m, nil
}

func (row materialRow) material() Material {
	m := row.Material
	m.UploadedBy = row.Owner.user()
	return m
}

// UpdateMaterial applies the non-nil fields of patch.
func (r *Repository) UpdateMaterial(ctx context.Context, id uint, patch MaterialPatch) (*Material, error) {
	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if err := r.update(ctx, &Material{}, id, updates); err != nil {
		return nil, err
	}
	return r.GetMaterial(ctx, id)
}

// DeleteMaterial hard-deletes a material and reports whether it existed.
func (r *Repository) DeleteMaterial(ctx context.Context, id uint) (bool, error) {
	return r.deleteByID(ctx, &Material{}, id)
}

// IncrementDownloadCount adds one in the database so concurrent downloads never lose updates.
func (r *Repository) IncrementDownloadCount(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&Material{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
