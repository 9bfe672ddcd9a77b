package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/bellhopd/bellhop/logger"
)

// FFmpeg error types.
var (
	ErrFFmpegNotFound = fmt.Errorf("ffmpeg not found in PATH")
	ErrFFmpegTimeout  = fmt.Errorf("ffmpeg execution timed out")
)

const (
	// DefaultFFmpegPath is the ffmpeg binary resolved from PATH.
	DefaultFFmpegPath = "ffmpeg"

	// DefaultTranscodeTimeout bounds a single ffmpeg run.
	DefaultTranscodeTimeout = 30 * time.Second

	// defaultMP3BitRate is the encode bitrate for playback artifacts.
	defaultMP3BitRate = "192k"

	ffmpegCheckTimeout = 5 * time.Second
)

// Transcoder converts provider WAV output into the MP3 artifacts the
// playback path consumes, via an ffmpeg subprocess.
type Transcoder struct {
	ffmpegPath string
	bitRate    string
	timeout    time.Duration
}

// TranscoderOption configures the transcoder.
type TranscoderOption func(*Transcoder)

// WithFFmpegPath sets the ffmpeg binary path.
func WithFFmpegPath(path string) TranscoderOption {
	return func(t *Transcoder) {
		t.ffmpegPath = path
	}
}

// WithBitRate sets the MP3 encode bitrate (e.g. "128k").
func WithBitRate(rate string) TranscoderOption {
	return func(t *Transcoder) {
		t.bitRate = rate
	}
}

// WithTranscodeTimeout sets the per-run timeout.
func WithTranscodeTimeout(d time.Duration) TranscoderOption {
	return func(t *Transcoder) {
		t.timeout = d
	}
}

// NewTranscoder creates an ffmpeg-backed transcoder.
func NewTranscoder(opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		ffmpegPath: DefaultFFmpegPath,
		bitRate:    defaultMP3BitRate,
		timeout:    DefaultTranscodeTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WAVToMP3 converts the WAV file at inputPath into an MP3 at outputPath.
// On failure no partial artifact remains at outputPath.
func (t *Transcoder) WAVToMP3(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", t.bitRate,
		outputPath,
	}

	if err := t.run(ctx, args); err != nil {
		_ = os.Remove(outputPath)
		return err
	}
	return nil
}

// run executes ffmpeg with timeout.
func (t *Transcoder) run(ctx context.Context, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("running ffmpeg", "args", args)

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return ErrFFmpegTimeout
		}
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return ErrFFmpegNotFound
		}
		return fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}
	return nil
}

// CheckFFmpegAvailable checks if ffmpeg is available in PATH.
func CheckFFmpegAvailable(ffmpegPath string) error {
	if ffmpegPath == "" {
		ffmpegPath = DefaultFFmpegPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), ffmpegCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		if execErr, ok := err.(*exec.Error); ok && execErr.Err == exec.ErrNotFound {
			return ErrFFmpegNotFound
		}
		return fmt.Errorf("ffmpeg check failed: %w", err)
	}
	return nil
}
