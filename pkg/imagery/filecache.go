package imagery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps a downloaded image.
const MaxImageBytes = 5 << 20

// FileCache stores downloaded images on disk, one file per URL, named by
// the SHA-256 of the URL.
type FileCache struct {
	dir    string
	client *http.Client
}

// NewFileCache creates the directory if needed.
func NewFileCache(dir string, client *http.Client) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image cache directory: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &FileCache{dir: dir, client: client}, nil
}

// Path returns where the image for rawURL is (or would be) stored.
func (f *FileCache) Path(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := ".img"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return filepath.Join(f.dir, hex.EncodeToString(sum[:])+ext)
}

// Fetch returns the local path for rawURL, downloading it first when it
// is not on disk yet.
func (f *FileCache) Fetch(ctx context.Context, rawURL string) (string, error) {
	dst := f.Path(rawURL)
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat cached image: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(f.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, MaxImageBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > MaxImageBytes {
		err = fmt.Errorf("image larger than %d bytes", MaxImageBytes)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save image: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to commit image: %w", err)
	}
	return dst, nil
}
