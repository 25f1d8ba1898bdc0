package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"schoold/internal/storage"
)

// Owner identifies which record kind an attachment list hangs off.
type Owner string

const (
	OwnerAssignment Owner = "assignment"
	OwnerSubmission Owner = "submission"
	OwnerModule     Owner = "module"
)

// Table maps the owner kind to its backing table. Only these three tables
// carry an attachments column.
func (o Owner) Table() (string, error) {
	switch o {
	case OwnerAssignment:
		return "assignments", nil
	case OwnerSubmission:
		return "submissions", nil
	case OwnerModule:
		return "modules", nil
	}
	return "", fmt.Errorf("unknown attachment owner %q", o)
}

// Blob is the slice of the blob-store client the ledger needs.
type Blob interface {
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}

// Records persists attachment path lists on owning rows.
type Records interface {
	AppendPath(ctx context.Context, owner Owner, id uuid.UUID, path string) error
	RemovePath(ctx context.Context, owner Owner, id uuid.UUID, path string) error
	ClearPaths(ctx context.Context, owner Owner, id uuid.UUID) error
}

// Ledger mediates between domain records and the blob store. It never holds
// bytes itself; records reference blob paths, appended only after the client
// confirms a successful upload.
type Ledger struct {
	blob    Blob
	records Records
	bucket  string
	log     zerolog.Logger
}

func New(blob Blob, records Records, bucket string, log zerolog.Logger) *Ledger {
	return &Ledger{blob: blob, records: records, bucket: bucket, log: log}
}

// BuildPath constructs the canonical object path
// {context}/{ownerIDs...}/{timestamp}_{filename}. The timestamp avoids
// collisions; grouping by owner enables prefix deletes later.
func BuildPath(kind string, filename string, ownerIDs ...string) string {
	name := strings.ReplaceAll(filename, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	parts := append([]string{kind}, ownerIDs...)
	return fmt.Sprintf("%s/%d_%s", strings.Join(parts, "/"), time.Now().UnixMilli(), name)
}

// OwnerPrefix is the blob-store prefix holding every attachment for one owner.
func OwnerPrefix(kind string, ownerIDs ...string) string {
	parts := append([]string{kind}, ownerIDs...)
	return strings.Join(parts, "/") + "/"
}

// CreateSignedUploadURL returns a short-lived write URL for path.
func (l *Ledger) CreateSignedUploadURL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	return l.blob.PresignPut(ctx, l.bucket, path, storage.UploadTTL)
}

// SignedDownloadURL returns a read URL. Profile assets get a week-long TTL
// because they are fetched on every page view; everything else is
// transactional and short-lived.
func (l *Ledger) SignedDownloadURL(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	ttl := storage.DownloadTTL
	if strings.HasPrefix(path, "profile-pictures/") {
		ttl = storage.ProfileAssetTTL
	}
	return l.blob.PresignGet(ctx, l.bucket, path, ttl)
}

// Upload pushes bytes server-side for clients that cannot use presigned PUTs.
func (l *Ledger) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return l.blob.PutObject(ctx, l.bucket, path, r, size, contentType)
}

// RecordAttachment appends path to the owner's attachment list. Append-only:
// a client retry can record the same path twice, and callers tolerate that.
func (l *Ledger) RecordAttachment(ctx context.Context, owner Owner, id uuid.UUID, path string) error {
	if path == "" {
		return errors.New("empty path")
	}
	return l.records.AppendPath(ctx, owner, id, path)
}

// DeleteAttachment removes path from the owner's list. The blob delete is
// best-effort: a storage-provider error must never block the list update, so
// it is logged and swallowed.
func (l *Ledger) DeleteAttachment(ctx context.Context, owner Owner, id uuid.UUID, path string) error {
	if path == "" {
		return errors.New("empty path")
	}

	if err := l.blob.Delete(ctx, l.bucket, path); err != nil {
		l.log.Error().Err(err).Str("path", path).Msg("blob delete failed, removing record anyway")
	}
	return l.records.RemovePath(ctx, owner, id, path)
}

// DeleteAllAttachments removes the owner's whole blob prefix, then clears the
// list. Unlike single deletes, a prefix-delete failure propagates: orphaning
// a bulk of large blobs is worse than failing the caller's delete.
func (l *Ledger) DeleteAllAttachments(ctx context.Context, owner Owner, id uuid.UUID, prefix string) error {
	if prefix == "" {
		return errors.New("empty prefix")
	}

	if err := l.blob.DeletePrefix(ctx, l.bucket, prefix); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	return l.records.ClearPaths(ctx, owner, id)
}
