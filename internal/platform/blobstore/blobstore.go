// Package blobstore stores uploaded prescription scans and record
// attachments. Content lives in Postgres next to its metadata.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBlobNotFound       = errors.New("file not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only pdf, png and jpeg files are accepted")
	ErrMissingFileName    = errors.New("file name is required")
	ErrEmptyFile          = errors.New("file is empty")
)

// DefaultMaxSize is the upload limit when none is configured.
const DefaultMaxSize = 10 << 20

// AllowedContentTypes lists accepted upload types.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Metadata describes a stored file.
type Metadata struct {
	ID          uuid.UUID  `json:"id"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	Size        int64      `json:"size"`
	SHA256      string     `json:"sha256"`
	OwnerID     uuid.UUID  `json:"ownerId"`
	PatientID   *uuid.UUID `json:"patientId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Store is the persistence contract for files.
type Store interface {
	Save(ctx context.Context, meta *Metadata, content []byte) error
	Get(ctx context.Context, id uuid.UUID) (*Metadata, []byte, error)
	GetMetadata(ctx context.Context, id uuid.UUID) (*Metadata, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service validates uploads before storing them.
type Service struct {
	store   Store
	maxSize int64
}

// NewService returns a Service. maxSize <= 0 selects DefaultMaxSize.
func NewService(store Store, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{store: store, maxSize: maxSize}
}

// MaxSize is the configured upload limit in bytes.
func (s *Service) MaxSize() int64 { return s.maxSize }

// Upload reads content up to the limit, hashes it and stores it.
func (s *Service) Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return nil, ErrInvalidContentType
	}
	data, err := io.ReadAll(io.LimitReader(content, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	sum := sha256.Sum256(data)
	meta.ID = uuid.New()
	meta.Size = int64(len(data))
	meta.SHA256 = hex.EncodeToString(sum[:])
	meta.CreatedAt = time.Now().UTC()

	if err := s.store.Save(ctx, &meta, data); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Download returns the file and its metadata.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (*Metadata, []byte, error) {
	return s.store.Get(ctx, id)
}

// Metadata returns metadata without content.
func (s *Service) Metadata(ctx context.Context, id uuid.UUID) (*Metadata, error) {
	return s.store.GetMetadata(ctx, id)
}

// Exists reports whether a file id is known. Orders and patient records use
// it to validate references.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.Exists(ctx, id)
}

// CanRead reports whether userID may read meta: the uploader, the patient the
// file belongs to, or any non-patient role.
func CanRead(meta *Metadata, userID uuid.UUID, isPatient bool) bool {
	if !isPatient {
		return true
	}
	if meta.OwnerID == userID {
		return true
	}
	return meta.PatientID != nil && *meta.PatientID == userID
}
