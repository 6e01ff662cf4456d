package repository

import (
	"context"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
)

// AttachmentStore owns resume bytes. Failures other than a missing object
// are reported as *domain.StorageError.
type AttachmentStore interface {
	// Store persists data under a fresh key that does not depend on candidateID.
	Store(ctx context.Context, candidateID string, data []byte, filename, mimeType string) (domain.Attachment, error)
	// Retrieve returns domain.ErrAttachmentNotFound when the object is gone.
	Retrieve(ctx context.Context, handle domain.Attachment) (*domain.AttachmentContent, error)
	// Delete is idempotent.
	Delete(ctx context.Context, handle domain.Attachment) error
	List(ctx context.Context) ([]domain.StoredObject, error)
}
