// Package thumbnail extracts a preview frame from video files with ffmpeg.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

var ErrNoFrame = errors.New("ffmpeg produced no frame")

type FFmpeg struct {
	Path    string
	Width   int
	Timeout time.Duration
}

func NewFFmpeg(path string, width int) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if width <= 0 {
		width = 480
	}
	return &FFmpeg{Path: path, Width: width, Timeout: 30 * time.Second}
}

// Thumbnail writes a JPEG frame of src next to it and returns its path.
// The caller removes the file.
func (f *FFmpeg) Thumbnail(ctx context.Context, src string) (string, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	dst := filepath.Join(filepath.Dir(src), filepath.Base(src)+".thumbnail.jpg")

	// Seek past the first second; clips shorter than that fall back to the
	// first frame.
	if err := f.run(ctx, src, dst, "1"); err == nil && nonEmpty(dst) {
		return dst, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err := f.run(ctx, src, dst, "0"); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if !nonEmpty(dst) {
		return "", ErrNoFrame
	}
	return dst, nil
}

func nonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func (f *FFmpeg) run(ctx context.Context, src, dst, offset string) error {
	cmd := exec.CommandContext(ctx, f.Path,
		"-y",
		"-loglevel", "error",
		"-ss", offset,
		"-i", src,
		"-frames:v", "1",
		"-vf", "scale="+strconv.Itoa(f.Width)+":-2",
		"-q:v", "3",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
