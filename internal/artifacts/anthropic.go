package artifacts

import (
	"context"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicFileStore resolves file references against the Anthropic Files
// API, which holds the outputs of sandboxed code execution.
type AnthropicFileStore struct {
	client *anthropic.Client
}

// NewAnthropicFileStore wraps an Anthropic client as a FileStore.
func NewAnthropicFileStore(client *anthropic.Client) *AnthropicFileStore {
	return &AnthropicFileStore{client: client}
}

var filesBetas = []anthropic.AnthropicBeta{anthropic.AnthropicBetaFilesAPI2025_04_14}

// Metadata fetches file metadata without downloading content.
func (s *AnthropicFileStore) Metadata(ctx context.Context, fileID string) (Metadata, error) {
	meta, err := s.client.Beta.Files.GetMetadata(ctx, fileID,
		anthropic.BetaFileGetMetadataParams{Betas: filesBetas})
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Filename:  meta.Filename,
		SizeBytes: meta.SizeBytes,
		MimeType:  meta.MimeType,
	}, nil
}

// Download fetches the file content.
func (s *AnthropicFileStore) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.client.Beta.Files.Download(ctx, fileID,
		anthropic.BetaFileDownloadParams{Betas: filesBetas})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	return data, nil
}
