// ABOUTME: Attachment resolution: fetch, cache, and classify referenced files
// ABOUTME: Content-addressed by file id with single-flight fetch coalescing

package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/2389/threadloom/internal/platform"
)

// ErrUnsupportedMedia is returned for declared media types the backend cannot
// consume. Callers substitute a placeholder block rather than failing the turn.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Kind classifies an attachment for context assembly.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
	KindText  Kind = "text"
)

// Attachment is a resolved file: classified bytes ready for a backend turn.
type Attachment struct {
	FileID   string
	Filename string
	MimeType string
	Kind     Kind
	Data     []byte
}

// ByteCache stores raw attachment bytes keyed by file id. Expiry policy
// belongs to the implementation.
type ByteCache interface {
	Get(ctx context.Context, fileID string) ([]byte, bool, error)
	Put(ctx context.Context, fileID string, data []byte) error
}

// Fetcher downloads attachment bytes. platform.Transport satisfies this.
type Fetcher interface {
	FetchAttachment(ctx context.Context, ref platform.AttachmentRef) ([]byte, error)
}

// Resolver resolves attachment references idempotently: repeated references
// to the same file id hit the cache, and concurrent resolution of one id
// shares a single in-flight fetch.
type Resolver struct {
	fetcher Fetcher
	cache   ByteCache
	group   singleflight.Group
	logger  *slog.Logger
}

// NewResolver creates a resolver backed by the given fetcher and cache.
func NewResolver(fetcher Fetcher, cache ByteCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger.With("component", "attach"),
	}
}

// Resolve returns the classified attachment for a file reference, fetching
// bytes only when the cache has no valid entry. Unsupported media types fail
// with ErrUnsupportedMedia before any fetch happens.
func (r *Resolver) Resolve(ctx context.Context, ref platform.AttachmentRef) (*Attachment, error) {
	kind, ok := classify(ref.MimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedMedia, ref.Filename, ref.MimeType)
	}

	data, err, _ := r.group.Do(ref.FileID, func() (any, error) {
		return r.fetchCached(ctx, ref)
	})
	if err != nil {
		return nil, err
	}

	return &Attachment{
		FileID:   ref.FileID,
		Filename: ref.Filename,
		MimeType: ref.MimeType,
		Kind:     kind,
		Data:     data.([]byte),
	}, nil
}

// fetchCached returns cached bytes or downloads and caches them.
func (r *Resolver) fetchCached(ctx context.Context, ref platform.AttachmentRef) ([]byte, error) {
	if cached, ok, err := r.cache.Get(ctx, ref.FileID); err != nil {
		r.logger.Warn("cache read failed", "file_id", ref.FileID, "error", err)
	} else if ok {
		r.logger.Debug("using cached file", "file_id", ref.FileID, "size", len(cached))
		return cached, nil
	}

	r.logger.Info("downloading file", "file_id", ref.FileID, "name", ref.Filename)
	data, err := r.fetcher.FetchAttachment(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment %s: %w", ref.FileID, err)
	}

	if err := r.cache.Put(ctx, ref.FileID, data); err != nil {
		// A cache write failure only costs a refetch later.
		r.logger.Warn("cache write failed", "file_id", ref.FileID, "error", err)
	}
	return data, nil
}

// classify maps a declared media type to a backend-consumable kind.
func classify(mimeType string) (Kind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage, true
	case mimeType == "application/pdf":
		return KindPDF, true
	case strings.HasPrefix(mimeType, "text/"):
		return KindText, true
	}
	return "", false
}
