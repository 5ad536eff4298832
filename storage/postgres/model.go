package postgres

import (
	"time"

	"github.com/poiesic/lexsync/core"
	"gorm.io/datatypes"
)

// documentRow is the gorm model of the legal_documents table.
type documentRow struct {
	ID             string            `gorm:"column:id;primaryKey;size:36"`
	Title          string            `gorm:"column:title"`
	FileName       string            `gorm:"column:file_name;not null"`
	NormalizedName string            `gorm:"column:normalized_name;index"`
	FilePath       string            `gorm:"column:file_path;not null;uniqueIndex"`
	FileType       string            `gorm:"column:file_type"`
	Status         string            `gorm:"column:status;not null;default:'processing';index"`
	PIIStatus      string            `gorm:"column:pii_status;not null;default:'unchecked'"`
	ExtractedText  *string           `gorm:"column:extracted_text;type:text"`
	Summary        *string           `gorm:"column:summary;type:text"`
	ContentHash    string            `gorm:"column:content_hash;index"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata"`
	OwnerID        string            `gorm:"column:owner_id"`
	CreatedAt      time.Time         `gorm:"column:created_at;not null;index"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;not null"`
}

func (documentRow) TableName() string { return "legal_documents" }

func toRow(rec *core.DocumentRecord) *documentRow {
	return &documentRow{
		ID:             rec.ID,
		Title:          rec.Title,
		FileName:       rec.FileName,
		NormalizedName: rec.NormalizedName,
		FilePath:       rec.FilePath,
		FileType:       rec.FileType,
		Status:         string(rec.Status),
		PIIStatus:      string(rec.PIIStatus),
		ExtractedText:  rec.ExtractedText,
		Summary:        rec.Summary,
		ContentHash:    rec.ContentHash,
		Metadata:       datatypes.JSONMap(rec.Metadata),
		OwnerID:        rec.OwnerID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func (r *documentRow) toRecord() *core.DocumentRecord {
	return &core.DocumentRecord{
		ID:             r.ID,
		Title:          r.Title,
		FileName:       r.FileName,
		NormalizedName: r.NormalizedName,
		FilePath:       r.FilePath,
		FileType:       r.FileType,
		Status:         core.Status(r.Status),
		PIIStatus:      core.PIIStatus(r.PIIStatus),
		ExtractedText:  r.ExtractedText,
		Summary:        r.Summary,
		ContentHash:    r.ContentHash,
		Metadata:       map[string]any(r.Metadata),
		OwnerID:        r.OwnerID,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}
