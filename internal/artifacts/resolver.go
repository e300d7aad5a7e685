// Package artifacts turns file references emitted by sandboxed code
// execution into downloaded payloads the bot can attach to a reply.
package artifacts

import (
	"context"
	"fmt"

	"github.com/namielle/summabot/internal/observability"
)

// DefaultMaxBytes caps downloads at 25 MiB, matching what a Discord
// attachment can realistically carry.
const DefaultMaxBytes int64 = 25 << 20

// Ref identifies one file produced during a conversation.
type Ref struct {
	FileID string
}

// Metadata describes a stored file before download.
type Metadata struct {
	Filename  string
	SizeBytes int64
	MimeType  string
}

// Resolved is a downloaded artifact ready to attach.
type Resolved struct {
	FileID   string
	Filename string
	MimeType string
	Data     []byte
}

// FileStore fetches stored file metadata and content. The production
// implementation wraps the Anthropic Files API; tests use fakes.
type FileStore interface {
	Metadata(ctx context.Context, fileID string) (Metadata, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Resolver downloads artifacts with per-reference failure isolation: a
// reference that cannot be resolved is logged and skipped, never aborting
// the rest.
type Resolver struct {
	store    FileStore
	maxBytes int64
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMaxBytes overrides the download size ceiling.
func WithMaxBytes(n int64) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a resolver over a file store.
func NewResolver(store FileStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:    store,
		maxBytes: DefaultMaxBytes,
		logger:   observability.NewLogger(observability.LogConfig{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve downloads the referenced artifacts, preserving discovery order.
// Each reference is attempted exactly once: metadata fetch, size check,
// download. Failures and oversize files are skipped individually.
func (r *Resolver) Resolve(ctx context.Context, refs []Ref) []Resolved {
	out := make([]Resolved, 0, len(refs))
	for _, ref := range refs {
		resolved, err := r.resolveOne(ctx, ref)
		if err != nil {
			r.logger.Warn(ctx, "skipping artifact", "file_id", ref.FileID, "error", err)
			continue
		}
		r.record("resolved")
		out = append(out, *resolved)
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, ref Ref) (*Resolved, error) {
	meta, err := r.store.Metadata(ctx, ref.FileID)
	if err != nil {
		r.record("metadata_error")
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if meta.SizeBytes > r.maxBytes {
		r.record("oversize")
		return nil, fmt.Errorf("file is %d bytes, over the %d byte limit", meta.SizeBytes, r.maxBytes)
	}
	data, err := r.store.Download(ctx, ref.FileID)
	if err != nil {
		r.record("download_error")
		return nil, fmt.Errorf("download: %w", err)
	}
	filename := meta.Filename
	if filename == "" {
		filename = ref.FileID
	}
	return &Resolved{
		FileID:   ref.FileID,
		Filename: filename,
		MimeType: meta.MimeType,
		Data:     data,
	}, nil
}

func (r *Resolver) record(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordArtifact(outcome)
	}
}
