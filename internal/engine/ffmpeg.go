// Package engine invokes ffmpeg to apply a declarative operation set to raw
// video bytes. It knows nothing about jobs, queues or persistence.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/model"
)

const defaultTimeout = 15 * time.Minute

// ProgressFunc receives coarse fractional progress hints in [0,1] during a
// transform. Hints are best-effort, not guaranteed monotonic; callers clamp
// before persisting.
type ProgressFunc func(p float64)

// Transformer is the media-transform capability injected into the worker.
type Transformer interface {
	Transform(ctx context.Context, input []byte, ops model.Operations, onProgress ProgressFunc) ([]byte, error)
}

// TransformError carries ffmpeg's diagnostic output alongside the cause.
type TransformError struct {
	Stderr string
	Err    error
}

func (e *TransformError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Stderr)
	}
	return e.Err.Error()
}

func (e *TransformError) Unwrap() error { return e.Err }

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	path    string
	tempDir string
	timeout time.Duration
}

func NewFFmpeg(path, tempDir string, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FFmpeg{
		path:    path,
		tempDir: tempDir,
		timeout: timeout,
	}
}

// Transform writes input to a scratch file, runs ffmpeg with arguments built
// from ops, and reads the result back. Scratch files are removed on every
// exit path; cleanup failures never mask the primary error.
func (f *FFmpeg) Transform(ctx context.Context, input []byte, ops model.Operations, onProgress ProgressFunc) ([]byte, error) {
	id := uuid.New().String()
	inputPath := filepath.Join(f.tempDir, "input-"+id+".mp4")
	outputPath := filepath.Join(f.tempDir, "output-"+id+".mp4")
	defer func() {
		_ = os.Remove(inputPath)
		_ = os.Remove(outputPath)
	}()

	if err := os.WriteFile(inputPath, input, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch input: %w", err)
	}

	args := BuildArgs(inputPath, outputPath, ops)

	report(onProgress, 0.1)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TransformError{
				Stderr: tail(stderr.String()),
				Err:    fmt.Errorf("ffmpeg timed out after %s", f.timeout),
			}
		}
		return nil, &TransformError{
			Stderr: tail(stderr.String()),
			Err:    fmt.Errorf("ffmpeg failed: %w", err),
		}
	}

	report(onProgress, 0.9)

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read scratch output: %w", err)
	}

	report(onProgress, 1.0)
	return output, nil
}

// BuildArgs produces a deterministic ffmpeg argument sequence for ops.
func BuildArgs(inputPath, outputPath string, ops model.Operations) []string {
	args := []string{"-i", inputPath}

	if ops.Trim != nil {
		args = append(args, "-ss", formatSeconds(ops.Trim.Start))
		if ops.Trim.End != nil {
			args = append(args, "-to", formatSeconds(*ops.Trim.End))
		}
	}

	var filters []string

	// Placeholder overlay; speech-to-text subtitles land as a filter-chain
	// substitution here.
	if ops.Captions {
		filters = append(filters, "drawtext=text='Auto-captions enabled':fontsize=24:fontcolor=white:x=(w-text_w)/2:y=h-100")
	}

	// Fixed fade placement; a duration-aware engine would derive these.
	if len(ops.Transitions) > 0 {
		filters = append(filters, "fade=t=in:st=0:d=1", "fade=t=out:st=28:d=2")
	}

	// Vertical 9:16 canvas, content scaled to fit and centered.
	if ops.Format == model.FormatSocial {
		filters = append(filters,
			"scale=1080:1920:force_original_aspect_ratio=decrease",
			"pad=1080:1920:(ow-iw)/2:(oh-ih)/2",
		)
	}

	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	args = append(args, "-af", "loudnorm")

	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)

	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func report(onProgress ProgressFunc, p float64) {
	if onProgress != nil {
		onProgress(p)
	}
}

// tail keeps the end of ffmpeg's stderr, where the actual failure is printed.
func tail(s string) string {
	const max = 2048
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
