// Package storage keeps uploaded payment proofs.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

type ProofStore interface {
	// Put stores body at objectPath and returns a URL for reviewers.
	Put(ctx context.Context, objectPath, contentType string, body []byte) (string, error)
}

type SupabaseStore struct {
	client *supa.Client
	bucket string
}

func NewSupabaseStore(url, key, bucket string) (*SupabaseStore, error) {
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, bucket: bucket}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, objectPath, contentType string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := false
	_, err := s.client.Storage.UploadFile(s.bucket, objectPath, bytes.NewReader(body), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload proof: %w", err)
	}
	return s.client.Storage.GetPublicUrl(s.bucket, objectPath).SignedURL, nil
}

// LocalStore writes proofs under a directory. It is used in development
// when no Supabase project is configured.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func (s *LocalStore) Put(ctx context.Context, objectPath, _ string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + objectPath)
	dest := filepath.Join(s.Dir, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create proof dir: %w", err)
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write proof: %w", err)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.TrimPrefix(filepath.ToSlash(clean), "/"), nil
}
