package backup

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/item-crawler/internal/clock"
	"github.com/JakeFAU/item-crawler/internal/hash/sha256"
	"github.com/JakeFAU/item-crawler/internal/storage/memory"
)

type fakeSnapshotter struct {
	data string
	err  error
}

func (f fakeSnapshotter) Snapshot(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.data)
	return err
}

func testClock() *clock.Manual {
	return clock.NewManual(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
}

func TestUploadWritesSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	u := New(blobs, "/backups/", testClock(), nil)

	art, err := u.Upload(context.Background(), fakeSnapshotter{data: "SQLite format 3"})
	require.NoError(t, err)
	assert.Equal(t, "memory://backups/items-20260304T050607Z.db", art.URI)
	assert.Equal(t, sha256.Hash([]byte("SQLite format 3")), art.SHA256)
	assert.Equal(t, int64(len("SQLite format 3")), art.Size)

	got, ok := blobs.Object("backups/items-20260304T050607Z.db")
	require.True(t, ok)
	assert.Equal(t, "SQLite format 3", string(got))
}

func TestUploadPropagatesSnapshotError(t *testing.T) {
	t.Parallel()

	boom := errors.New("database is locked")
	u := New(memory.NewBlobStore(), "", testClock(), nil)

	_, err := u.Upload(context.Background(), fakeSnapshotter{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestObjectPathWithoutPrefix(t *testing.T) {
	t.Parallel()

	u := New(memory.NewBlobStore(), "", testClock(), nil)
	assert.Equal(t, "items-20260304T050607Z.db", u.ObjectPath())
}
