package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kimhsiao/tijara/backend/internal/errors"
	"github.com/kimhsiao/tijara/backend/internal/logging"
)

// Uploader uploads one local asset and returns its remote reference.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// KeyPrefix is the object key prefix of uploaded assets.
const KeyPrefix = "assets"

// MaxAttempts is the number of upload attempts per asset.
const MaxAttempts = 3

// ContentUploader stores assets under their SHA-256 so the same image
// uploaded from two terminals, or twice after a resumed push, is stored once.
type ContentUploader struct {
	store ObjectStore

	// newBackOff builds the retry policy of one upload.
	newBackOff func() backoff.BackOff
}

// NewContentUploader creates a ContentUploader on store.
func NewContentUploader(store ObjectStore) *ContentUploader {
	return &ContentUploader{
		store: store,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return backoff.WithMaxRetries(b, MaxAttempts-1)
		},
	}
}

// HashFile calculates the SHA-256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// KeyFor returns the content-addressed key assets/{hash[0:2]}/{hash}{ext}.
func KeyFor(hash, ext string) string {
	return fmt.Sprintf("%s/%s/%s%s", KeyPrefix, hash[0:2], hash, strings.ToLower(ext))
}

// Upload stores the file at localPath unless its content is already present.
func (u *ContentUploader) Upload(ctx context.Context, localPath string) (string, error) {
	hash, err := HashFile(localPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrAssetUpload, "cannot read asset "+localPath, err)
	}

	ext := filepath.Ext(localPath)
	key := KeyFor(hash, ext)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attempt := 0
	op := func() error {
		attempt++
		exists, err := u.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			logging.Debug("Asset already stored", map[string]interface{}{"key": key})
			return nil
		}
		return u.store.PutFile(ctx, key, localPath, contentType)
	}
	notify := func(err error, wait time.Duration) {
		logging.Warn("Asset upload attempt failed", map[string]interface{}{
			"path":    localPath,
			"key":     key,
			"attempt": attempt,
			"retry":   wait.String(),
			"error":   err.Error(),
		})
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(u.newBackOff(), ctx), notify); err != nil {
		return "", errors.Wrap(errors.ErrAssetUpload, fmt.Sprintf("upload of %s failed after %d attempts", localPath, attempt), err)
	}
	return u.store.URL(key), nil
}
