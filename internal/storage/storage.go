// Package storage keeps role attachments on local disk or in a MinIO bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxAttachmentBytes is the attachment limit when none is configured.
const DefaultMaxAttachmentBytes = 5 << 20

var (
	ErrEmptyAttachment    = errors.New("attachment is empty")
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
	ErrNotPDF             = errors.New("attachment must be a PDF")
)

// Store persists attachment objects by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ValidatePDF checks that data is a non-empty PDF no larger than max bytes.
// A max of zero or less uses DefaultMaxAttachmentBytes.
func ValidatePDF(data []byte, max int64) error {
	if max <= 0 {
		max = DefaultMaxAttachmentBytes
	}
	if len(data) == 0 {
		return ErrEmptyAttachment
	}
	if int64(len(data)) > max {
		return fmt.Errorf("%w (%d bytes, max %d)", ErrAttachmentTooLarge, len(data), max)
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return fmt.Errorf("%w, got %s", ErrNotPDF, mt.String())
	}
	return nil
}

// NewKey returns a fresh object key for an attachment of the given service line.
func NewKey(lineKey string) string {
	return path.Join(lineKey, uuid.New().String()+".pdf")
}
