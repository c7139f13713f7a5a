// Package backup uploads a consistent copy of the item store after a run.
package backup

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/item-crawler/internal/crawler"
	"github.com/JakeFAU/item-crawler/internal/hash/sha256"
)

const contentType = "application/vnd.sqlite3"

// Uploader streams store snapshots into a BlobStore.
type Uploader struct {
	blobs  crawler.BlobStore
	prefix string
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds an Uploader. Objects are written under prefix.
func New(blobs crawler.BlobStore, prefix string, clock crawler.Clock, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
		logger: logger.Named("backup"),
	}
}

// ObjectPath names the backup object taken at the current time.
func (u *Uploader) ObjectPath() string {
	name := "items-" + u.clock.Now().UTC().Format("20060102T150405Z") + ".db"
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Artifact describes an uploaded snapshot.
type Artifact struct {
	URI    string
	SHA256 string
	Size   int64
}

// Upload snapshots src and uploads it. The digest covers the bytes handed to
// the blob store.
func (u *Uploader) Upload(ctx context.Context, src crawler.Snapshotter) (Artifact, error) {
	objectPath := u.ObjectPath()
	hasher := sha256.New()
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(src.Snapshot(ctx, io.MultiWriter(pw, hasher)))
	}()

	uri, err := u.blobs.PutObject(ctx, objectPath, contentType, pr)
	// Unblock the snapshot writer if the upload stopped reading early.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return Artifact{}, fmt.Errorf("upload backup %s: %w", objectPath, err)
	}
	art := Artifact{URI: uri, SHA256: hasher.Sum(), Size: hasher.Size()}
	u.logger.Info("store backup uploaded",
		zap.String("uri", art.URI),
		zap.String("sha256", art.SHA256),
		zap.Int64("bytes", art.Size),
	)
	return art, nil
}
