// Package storage keeps document bytes on the local filesystem.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"vouch/internal/verification/models"
)

// ErrTooLarge is returned when streamed content exceeds the upload's MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

// ErrInvalidRef is returned for references this storage never issued.
var ErrInvalidRef = errors.New("invalid storage reference")

var refPattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f-]{36}$`)

// Filesystem writes each document to its own file under root. Files are
// written to a temp name, fsynced and renamed, so a returned ref is durable.
type Filesystem struct {
	root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.New("document root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create document root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Store streams the upload to disk, hashing with blake2b-256 on the way.
// The reference is a fresh UUID so identical uploads stay separate documents.
func (f *Filesystem) Store(ctx context.Context, upload models.DocumentUpload) (models.StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredDocument{}, err
	}

	name := uuid.NewString()
	ref := name[:2] + "/" + name
	dir := filepath.Join(f.root, name[:2])
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return models.StoredDocument{}, fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return models.StoredDocument{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	hash, err := blake2b.New256(nil)
	if err != nil {
		return models.StoredDocument{}, fmt.Errorf("init digest: %w", err)
	}

	src := upload.Content
	if upload.MaxBytes > 0 {
		src = io.LimitReader(src, upload.MaxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, hash), &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return models.StoredDocument{}, fmt.Errorf("write document: %w", err)
	}
	if upload.MaxBytes > 0 && n > upload.MaxBytes {
		return models.StoredDocument{}, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return models.StoredDocument{}, fmt.Errorf("sync document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.StoredDocument{}, fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return models.StoredDocument{}, fmt.Errorf("commit document: %w", err)
	}
	committed = true

	return models.StoredDocument{
		Ref:       ref,
		Digest:    hex.EncodeToString(hash.Sum(nil)),
		SizeBytes: n,
	}, nil
}

func (f *Filesystem) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := f.path(ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return file, nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (f *Filesystem) Delete(_ context.Context, ref string) error {
	path, err := f.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (f *Filesystem) path(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", ErrInvalidRef
	}
	return filepath.Join(f.root, filepath.FromSlash(ref)), nil
}

// ctxReader stops a long copy once the request is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
