package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/csuvg/PG-2025-21169/internal/apperr"
)

const previewRows = 5

// Service manages uploaded tabular sources.
type Service struct {
	Blobs BlobStorage
}

// NewService builds a source service over the blob collaborator.
func NewService(blobs BlobStorage) *Service {
	return &Service{Blobs: blobs}
}

// UploadInput carries a new source upload.
type UploadInput struct {
	Name        string
	Description string
	FileName    string
	Content     []byte
	CreatedBy   string
}

// Upload stores the file with the blob collaborator and records the source
// with its column list and a short preview.
func (s *Service) Upload(ctx context.Context, db *gorm.DB, in UploadInput) (*Source, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("source name is required").WithField("nombre", "required")
	}
	if len(in.Content) == 0 {
		return nil, apperr.Validation("source file is empty").WithField("archivo", "empty")
	}

	fileType := FileTypeCSV
	switch strings.ToLower(filepath.Ext(in.FileName)) {
	case ".csv":
	case ".xlsx", ".xls":
		fileType = FileTypeExcel
	default:
		return nil, apperr.Validation("unsupported file type %q", filepath.Ext(in.FileName)).
			WithField("archivo", "must be .csv, .xlsx or .xls")
	}

	var columns []string
	var preview [][]string
	if fileType == FileTypeCSV {
		table, err := DecodeCSV(bytes.NewReader(in.Content))
		if err != nil {
			return nil, err
		}
		if _, err := table.columnIndex(); err != nil {
			return nil, err
		}
		columns = table.Columns
		preview = table.Rows
		if len(preview) > previewRows {
			preview = preview[:previewRows]
		}
	}

	blobName, url, err := s.Blobs.Upload(ctx, in.FileName, in.Content)
	if err != nil {
		return nil, err
	}

	columnsJSON, _ := json.Marshal(columns)
	previewJSON, _ := json.Marshal(preview)

	source := &Source{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		FileName:    in.FileName,
		BlobName:    blobName,
		BlobURL:     url,
		FileType:    fileType,
		Columns:     datatypes.JSON(columnsJSON),
		Preview:     datatypes.JSON(previewJSON),
		Active:      true,
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
	}
	if err := db.WithContext(ctx).Create(source).Error; err != nil {
		return nil, err
	}
	return source, nil
}

// List returns all sources, newest first.
func (s *Service) List(ctx context.Context, db *gorm.DB) ([]Source, error) {
	var sources []Source
	if err := db.WithContext(ctx).Order("fecha_subida DESC").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

// Find returns a source by id.
func (s *Service) Find(ctx context.Context, db *gorm.DB, id string) (*Source, error) {
	var source Source
	if err := db.WithContext(ctx).First(&source, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("data source", id)
		}
		return nil, err
	}
	return &source, nil
}

// Download returns the raw bytes of a source file.
func (s *Service) Download(ctx context.Context, db *gorm.DB, id string) (*Source, []byte, error) {
	source, err := s.Find(ctx, db, id)
	if err != nil {
		return nil, nil, err
	}
	content, err := s.Blobs.Download(ctx, source.BlobName)
	if err != nil {
		return nil, nil, err
	}
	return source, content, nil
}

// Delete removes a source. It is refused while any materialized field value
// still references it; the blob is removed best-effort after the row.
func (s *Service) Delete(ctx context.Context, db *gorm.DB, id string) error {
	source, err := s.Find(ctx, db, id)
	if err != nil {
		return err
	}

	var dependents int64
	if err := db.WithContext(ctx).Model(&Value{}).Where("fuente_id = ?", id).
		Distinct("campo_id").Count(&dependents).Error; err != nil {
		return err
	}
	if dependents > 0 {
		return apperr.Conflict("cannot delete: %d field(s) use this source", dependents).
			WithHint("remove or repoint the dataset fields first").
			WithMeta("fields_count", dependents)
	}

	if err := db.WithContext(ctx).Delete(&Source{}, "id = ?", id).Error; err != nil {
		return err
	}

	if _, err := s.Blobs.Delete(ctx, source.BlobName); err != nil {
		log.Printf("dataset: failed to delete blob %s: %v", source.BlobName, err)
	}
	return nil
}
