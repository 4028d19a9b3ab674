// ABOUTME: Tests for attachment resolution and the SQLite byte cache
// ABOUTME: Covers classification, cache idempotency, and unsupported media

package attach

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/threadloom/internal/platform"
)

// mockFetcher counts downloads per file id.
type mockFetcher struct {
	mu      sync.Mutex
	fetches atomic.Int64
	data    map[string][]byte
}

func (f *mockFetcher) FetchAttachment(_ context.Context, ref platform.AttachmentRef) ([]byte, error) {
	f.fetches.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[ref.FileID], nil
}

func TestResolver_Classification(t *testing.T) {
	fetcher := &mockFetcher{data: map[string][]byte{"f1": []byte("bytes")}}
	r := NewResolver(fetcher, NewMemoryCache(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		mime string
		want Kind
	}{
		{"png image", "image/png", KindImage},
		{"jpeg image", "image/jpeg", KindImage},
		{"pdf document", "application/pdf", KindPDF},
		{"plain text", "text/plain", KindText},
		{"csv text", "text/csv", KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := r.Resolve(ctx, platform.AttachmentRef{FileID: "f1", Filename: "x", MimeType: tt.mime})
			require.NoError(t, err)
			assert.Equal(t, tt.want, att.Kind)
			assert.Equal(t, []byte("bytes"), att.Data)
		})
	}
}

func TestResolver_UnsupportedMedia(t *testing.T) {
	fetcher := &mockFetcher{data: map[string][]byte{}}
	r := NewResolver(fetcher, NewMemoryCache(), nil)

	_, err := r.Resolve(context.Background(), platform.AttachmentRef{
		FileID:   "f1",
		Filename: "movie.mp4",
		MimeType: "video/mp4",
	})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
	// Unsupported media is rejected before any network fetch.
	assert.Equal(t, int64(0), fetcher.fetches.Load())
}

func TestResolver_SecondResolveHitsCache(t *testing.T) {
	fetcher := &mockFetcher{data: map[string][]byte{"f1": []byte("payload")}}
	r := NewResolver(fetcher, NewMemoryCache(), nil)
	ctx := context.Background()
	ref := platform.AttachmentRef{FileID: "f1", Filename: "a.png", MimeType: "image/png"}

	_, err := r.Resolve(ctx, ref)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetcher.fetches.Load())
}

// gatedFetcher blocks every download until released, forcing callers to pile
// up in flight.
type gatedFetcher struct {
	fetches atomic.Int64
	release chan struct{}
	data    []byte
}

func (f *gatedFetcher) FetchAttachment(context.Context, platform.AttachmentRef) ([]byte, error) {
	f.fetches.Add(1)
	<-f.release
	return f.data, nil
}

func TestResolver_ConcurrentResolveSharesOneFetch(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{}), data: []byte("payload")}
	r := NewResolver(fetcher, NewMemoryCache(), nil)
	ctx := context.Background()
	ref := platform.AttachmentRef{FileID: "f1", Filename: "a.png", MimeType: "image/png"}

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	atts := make([]*Attachment, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			atts[i], errs[i] = r.Resolve(ctx, ref)
		}(i)
	}

	// Let the callers stack up behind the single in-flight download, then
	// let it complete.
	close(fetcher.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("payload"), atts[i].Data)
	}
	assert.Equal(t, int64(1), fetcher.fetches.Load())
}

func TestSQLiteCache_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := NewSQLiteCache(path)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "f1", []byte("hello")))

	data, ok, err := cache.Get(ctx, "f1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	// Replacing an entry keeps the cache content-addressed by file id.
	require.NoError(t, cache.Put(ctx, "f1", []byte("world")))
	data, ok, err = cache.Get(ctx, "f1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("world"), data)
}
