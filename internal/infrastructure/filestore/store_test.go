package filestore_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/referral-tracker/internal/domain"
	"github.com/ErlanBelekov/referral-tracker/internal/infrastructure/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pdf = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

func newStore(t *testing.T) *filestore.Store {
	t.Helper()
	s, err := filestore.New(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	h, err := s.Store(ctx, "cand-1", pdf, "cv.pdf", "application/pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, h.Key)
	assert.NotContains(t, h.Key, "cand-1")
	assert.Equal(t, int64(len(pdf)), h.Size)

	got, err := s.Retrieve(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, pdf, got.Data)
	assert.Equal(t, "cv.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.MimeType)
}

func TestStore_KeysAreUnique(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.Store(ctx, "cand-1", pdf, "a.pdf", "application/pdf")
	require.NoError(t, err)
	b, err := s.Store(ctx, "cand-1", pdf, "a.pdf", "application/pdf")
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
}

func TestDelete_IsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	h, err := s.Store(ctx, "cand-1", pdf, "cv.pdf", "application/pdf")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, h))
	require.NoError(t, s.Delete(ctx, h))

	_, err = s.Retrieve(ctx, h)
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestRetrieve_UnknownKey(t *testing.T) {
	s := newStore(t)

	_, err := s.Retrieve(context.Background(), domain.Attachment{Key: "0d2f6a7e-missing"})
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)

	_, err = s.Retrieve(context.Background(), domain.Attachment{Key: "../../etc/passwd"})
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestList_ReturnsStoredKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.Store(ctx, "cand-1", pdf, "a.pdf", "application/pdf")
	require.NoError(t, err)
	b, err := s.Store(ctx, "cand-2", pdf, "b.pdf", "application/pdf")
	require.NoError(t, err)

	objects, err := s.List(ctx)
	require.NoError(t, err)

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
		assert.False(t, o.ModifiedAt.IsZero())
	}
	assert.ElementsMatch(t, []string{a.Key, b.Key}, keys)
}

func TestStore_CancelledContext_IsStorageError(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Store(ctx, "cand-1", pdf, "cv.pdf", "application/pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.True(t, errors.Is(err, context.Canceled))
}
