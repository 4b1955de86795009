package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir() + "/nested/uploads")
	require.NoError(t, err)
	ctx := context.Background()

	path, err := s.Save(ctx, "reimbursement-1-invoice", "Nota Fiscal.PDF", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "reimbursement-1-invoice-"))
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	f, err := s.Open(path)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body))

	require.NoError(t, s.Remove(path))
	_, err = s.Open(path)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.NoError(t, s.Remove(path), "removing twice is fine")
	assert.NoError(t, s.Remove(""))
}

func TestLocalStore_StaysInsideRoot(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"../etc/passwd", "/etc/passwd", "a/b.pdf", ".", ""} {
		_, err := s.Open(p)
		assert.ErrorIs(t, err, ErrFileNotFound, p)
	}
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Save(ctx, "p", "a.pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
