package relay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/superclaude/superclaude/internal/errors"
	"github.com/superclaude/superclaude/internal/httpclient"
	"github.com/superclaude/superclaude/internal/logger"
	"go.uber.org/zap"
)

// Downloader fetches remote media to local disk.
type Downloader struct {
	client   *resty.Client
	mediaDir string
}

// NewDownloader stores fetched images in per-download directories under mediaDir.
func NewDownloader(client *resty.Client, mediaDir string) *Downloader {
	return &Downloader{client: client, mediaDir: mediaDir}
}

// FetchImage downloads url into a fresh directory under the media dir and
// names the file from its detected content type. Release it with Cleanup.
func (d *Downloader) FetchImage(ctx context.Context, url string) (string, error) {
	const op errors.Op = "relay.FetchImage"

	dir := filepath.Join(d.mediaDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.E(op, errors.KindIO, "create media dir", err)
	}

	raw := filepath.Join(dir, "image")
	if err := d.fetch(ctx, op, url, raw); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	mtype, err := mimetype.DetectFile(raw)
	if err != nil {
		os.RemoveAll(dir)
		return "", errors.E(op, errors.KindIO, "detect content type", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		logger.ComponentLogger("relay").Warn("downloaded media is not an image", zap.String("mime", mtype.String()))
	}

	path := raw + mtype.Extension()
	if err := os.Rename(raw, path); err != nil {
		os.RemoveAll(dir)
		return "", errors.E(op, errors.KindIO, "rename", err)
	}
	return path, nil
}

// SaveDocument downloads url into workDir under the base name of filename.
// An existing file of that name is overwritten, but only once the download
// has completed.
func (d *Downloader) SaveDocument(ctx context.Context, url, workDir, filename string) (string, error) {
	const op errors.Op = "relay.SaveDocument"

	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "" || name == "/" || name == "." || name == ".." {
		return "", errors.E(op, errors.KindInvalid, fmt.Sprintf("invalid file name %q", filename))
	}

	dest := filepath.Join(workDir, name)
	part := filepath.Join(workDir, "."+name+"."+uuid.NewString()[:8]+".part")
	if err := d.fetch(ctx, op, url, part); err != nil {
		os.Remove(part)
		return "", err
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return "", errors.E(op, errors.KindIO, "move into place", err)
	}
	logger.ComponentLogger("relay").Info("document saved", zap.String("path", dest))
	return dest, nil
}

func (d *Downloader) fetch(ctx context.Context, op errors.Op, url, dest string) error {
	resp, err := d.client.R().SetContext(ctx).SetOutput(dest).Get(url)
	if err != nil {
		// File URLs may embed API tokens; keep only the cause.
		return errors.E(op, errors.KindNetwork, "download failed", httpclient.StripURL(err))
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return errors.E(op, errors.KindNetwork, fmt.Sprintf("download failed: HTTP %d", resp.StatusCode()))
	}
	return nil
}

// Cleanup removes a fetched image together with its directory. Paths outside
// the media dir are left alone.
func (d *Downloader) Cleanup(path string) {
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(d.mediaDir, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.Contains(rel, string(filepath.Separator)) {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.ComponentLogger("relay").Warn("cleanup failed", zap.String("dir", dir), zap.Error(err))
	}
}
