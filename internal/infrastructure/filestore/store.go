// Package filestore keeps resume attachments on the local filesystem.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/google/uuid"
)

type Store struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &Store{root: root, logger: logger.With("component", "filestore")}, nil
}

// path shards keys by their first two characters to keep directories small.
func (s *Store) path(key string) (string, error) {
	if len(key) < 3 || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("invalid attachment key %q", key)
	}
	return filepath.Join(s.root, key[:2], key), nil
}

func (s *Store) Store(ctx context.Context, candidateID string, data []byte, filename, mimeType string) (domain.Attachment, error) {
	key := uuid.NewString()
	p, err := s.path(key)
	if err != nil {
		return domain.Attachment{}, &domain.StorageError{Op: "store", Err: err}
	}

	err = run(ctx, func() error { return writeFile(p, data) })
	if err != nil {
		return domain.Attachment{}, storageError("store", err)
	}

	s.logger.DebugContext(ctx, "attachment stored", "key", key, "candidate_id", candidateID, "size", len(data))
	return domain.Attachment{
		Key:      key,
		Filename: filename,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

func (s *Store) Retrieve(ctx context.Context, handle domain.Attachment) (*domain.AttachmentContent, error) {
	p, err := s.path(handle.Key)
	if err != nil {
		return nil, domain.ErrAttachmentNotFound
	}

	var data []byte
	err = run(ctx, func() error {
		var readErr error
		data, readErr = os.ReadFile(p)
		return readErr
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrAttachmentNotFound
		}
		return nil, storageError("retrieve", err)
	}

	return &domain.AttachmentContent{Data: data, Filename: handle.Filename, MimeType: handle.MimeType}, nil
}

func (s *Store) Delete(ctx context.Context, handle domain.Attachment) error {
	p, err := s.path(handle.Key)
	if err != nil {
		return nil
	}

	err = run(ctx, func() error { return os.Remove(p) })
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageError("delete", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.StoredObject, error) {
	var objects []domain.StoredObject
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, domain.StoredObject{Key: d.Name(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, storageError("list", err)
	}
	return objects, nil
}

// writeFile writes through a hidden temp file and renames it into place so
// a key never points at a partial resume.
func writeFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// run executes fn but stops waiting once ctx is done. Filesystem calls
// cannot be cancelled, so fn may still finish in the background.
func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func storageError(op string, err error) error {
	return &domain.StorageError{
		Op:        op,
		Transient: errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}
