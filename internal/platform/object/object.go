// Package object implements the content-addressed object store (spec.md
// §4.7), narrowed from internal/platform/gcp/bucket.go's BucketService to
// just Put(sha256)->Descriptor / Get(Descriptor)->io.ReadCloser, backed by
// cloud.google.com/go/storage in both real-GCS and emulator modes (mirroring
// the teacher's newStorageClientForMode switch).
package object

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/clipforge/pipeline/internal/artifact"
	"github.com/clipforge/pipeline/internal/platform/logger"
)

type Store struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

// New mirrors the teacher's mode switch: a non-empty emulatorHost selects
// the unauthenticated emulator client, otherwise a real GCS client is built.
func New(ctx context.Context, bucket, emulatorHost string, baseLog *logger.Logger) (*Store, error) {
	serviceLog := baseLog.With("service", "ObjectStore")
	client, err := newStorageClient(ctx, emulatorHost)
	if err != nil {
		return nil, fmt.Errorf("object: create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, log: serviceLog}, nil
}

func newStorageClient(ctx context.Context, emulatorHost string) (*storage.Client, error) {
	host := strings.TrimRight(strings.TrimSpace(emulatorHost), "/")
	if host == "" {
		opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
		return storage.NewClient(ctx, opts...)
	}
	_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
	return storage.NewClient(ctx, option.WithoutAuthentication())
}

// Put writes data content-addressed by its SHA-256 digest and returns the
// descriptor artifacts reference (spec.md §3's {uri, mime, bytes, sha256}).
func (s *Store) Put(ctx context.Context, mime string, data []byte) (artifact.Descriptor, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	obj := s.client.Bucket(s.bucket).Object(digest)

	w := obj.NewWriter(ctx)
	w.ContentType = mime
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return artifact.Descriptor{}, fmt.Errorf("object: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return artifact.Descriptor{}, fmt.Errorf("object: close writer: %w", err)
	}

	return artifact.Descriptor{
		URI:    fmt.Sprintf("gs://%s/%s", s.bucket, digest),
		Mime:   mime,
		Bytes:  int64(len(data)),
		SHA256: digest,
	}, nil
}

// Get opens a reader for the object addressed by d.SHA256. The returned
// ReadCloser must be closed by the caller.
func (s *Store) Get(ctx context.Context, d artifact.Descriptor) (io.ReadCloser, error) {
	if d.SHA256 == "" {
		return nil, fmt.Errorf("object: descriptor missing sha256")
	}
	rc, err := s.client.Bucket(s.bucket).Object(d.SHA256).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("object: open reader: %w", err)
	}
	return rc, nil
}

// verifyDigest is a defensive check available to callers that want to
// confirm downloaded bytes match the descriptor before trusting them.
func verifyDigest(d artifact.Descriptor, data []byte) error {
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != d.SHA256 {
		return fmt.Errorf("object: digest mismatch for %s", d.URI)
	}
	return nil
}
