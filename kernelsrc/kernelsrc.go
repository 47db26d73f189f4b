// Package kernelsrc acquires kernel source text for a pipeline.
//
// A source location is one of:
//
//	builtin:<entry>     the builtin source for the backend, launching <entry>
//	builtin:<file>      a builtin file by name, e.g. builtin:sample.cl
//	s3://<bucket>/<key> an object in S3-compatible storage
//	file://<path>       a file; a location without a scheme is a path too
//
// Sources are bounded by dispatch.MaxSourceSize. Every failure wraps
// dispatch.ErrKernelSource.
package kernelsrc

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/kernels"
)

const (
	schemeBuiltin = "builtin:"
	schemeS3      = "s3://"
	schemeFile    = "file://"
)

// ObjectStore opens objects in a bucket.
type ObjectStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Option configures a Loader.
type Option func(*Loader)

// WithObjectStore sets the store used for s3:// locations instead of a
// MinIO client built from the storage configuration.
func WithObjectStore(s ObjectStore) Option {
	return func(l *Loader) { l.store = s }
}

// Loader resolves source locations into kernels.
type Loader struct {
	backend string
	storage dispatch.StorageConfig

	mu    sync.Mutex
	store ObjectStore
}

// New creates a loader for the named backend. storage is only used, and
// validated, when an s3:// location is loaded.
func New(backend string, storage dispatch.StorageConfig, opts ...Option) *Loader {
	l := &Loader{backend: backend, storage: storage}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the source at location. entryPoint selects the kernel to
// launch; when empty, a builtin:<entry> location names it, and otherwise
// dispatch.DefaultEntryPoint is used.
func (l *Loader) Load(ctx context.Context, location, entryPoint string) (dispatch.Kernel, error) {
	var (
		src string
		err error
	)
	switch {
	case strings.HasPrefix(location, schemeBuiltin):
		var entry string
		src, entry, err = l.builtin(strings.TrimPrefix(location, schemeBuiltin))
		if entryPoint == "" {
			entryPoint = entry
		}
	case strings.HasPrefix(location, schemeS3):
		src, err = l.object(ctx, strings.TrimPrefix(location, schemeS3))
	default:
		src, err = readFile(strings.TrimPrefix(location, schemeFile))
	}
	if err != nil {
		return dispatch.Kernel{}, fmt.Errorf("%w: %s: %w", dispatch.ErrKernelSource, location, err)
	}
	if strings.TrimSpace(src) == "" {
		return dispatch.Kernel{}, fmt.Errorf("%w: %s: empty source", dispatch.ErrKernelSource, location)
	}
	if entryPoint == "" {
		entryPoint = dispatch.DefaultEntryPoint
	}
	return dispatch.Kernel{Source: src, EntryPoint: entryPoint}, nil
}

// builtin resolves name as a builtin file (when it has an extension) or as
// an entry point of the backend's builtin source.
func (l *Loader) builtin(name string) (src, entry string, err error) {
	if path.Ext(name) != "" {
		src, err = kernels.Read(name)
		return src, "", err
	}
	switch name {
	case kernels.EntrySample, kernels.EntryIncrement:
	default:
		return "", "", fmt.Errorf("unknown builtin kernel %q (have %s, %s)",
			name, kernels.EntrySample, kernels.EntryIncrement)
	}
	src, err = kernels.ForBackend(l.backend)
	return src, name, err
}

func (l *Loader) object(ctx context.Context, bucketKey string) (string, error) {
	bucket, key, ok := strings.Cut(bucketKey, "/")
	if !ok || bucket == "" || key == "" {
		return "", fmt.Errorf("location must be s3://bucket/key")
	}
	store, err := l.objectStore()
	if err != nil {
		return "", err
	}
	rc, err := store.Open(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return readBounded(rc)
}

func (l *Loader) objectStore() (ObjectStore, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store != nil {
		return l.store, nil
	}
	s, err := NewMinIOStore(l.storage)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}

func readFile(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return readBounded(f)
}

// readBounded reads r completely, failing when it holds more than
// dispatch.MaxSourceSize bytes.
func readBounded(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, dispatch.MaxSourceSize+1))
	if err != nil {
		return "", err
	}
	if len(b) > dispatch.MaxSourceSize {
		return "", fmt.Errorf("source exceeds %d bytes", dispatch.MaxSourceSize)
	}
	return string(b), nil
}
