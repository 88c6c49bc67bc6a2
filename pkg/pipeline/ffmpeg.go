package pipeline

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// Transcoder spawns ffmpeg processes that emit raw s16le PCM on stdout.
type Transcoder struct {
	ffmpeg FFmpegConfig
	opus   OpusConfig
	logger Logger
}

// NewTranscoder creates a transcoder from the pipeline configuration.
func NewTranscoder(config *PipelineConfig, logger Logger) *Transcoder {
	return &Transcoder{
		ffmpeg: config.FFmpeg,
		opus:   config.Opus,
		logger: logger.With(String("component", "ffmpeg")),
	}
}

// URLArgs returns the ffmpeg arguments for decoding a network locator, with
// input side auto-reconnect enabled.
func (t *Transcoder) URLArgs(locator string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", t.ffmpeg.LogLevel,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", strconv.Itoa(t.ffmpeg.ReconnectDelayMax),
		"-i", locator,
	}
	return append(args, t.outputArgs()...)
}

// PipeArgs returns the ffmpeg arguments for decoding whatever arrives on stdin.
func (t *Transcoder) PipeArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", t.ffmpeg.LogLevel,
		"-i", "pipe:0",
	}
	return append(args, t.outputArgs()...)
}

func (t *Transcoder) outputArgs() []string {
	return []string{
		"-vn",
		"-f", "s16le",
		"-ar", strconv.Itoa(t.opus.SampleRate),
		"-ac", strconv.Itoa(t.opus.Channels),
		"pipe:1",
	}
}

// PCMFromURL starts ffmpeg on a direct media locator.
func (t *Transcoder) PCMFromURL(locator string) (*ProcessReader, error) {
	cmd := exec.Command(t.ffmpeg.BinaryPath, t.URLArgs(locator)...)
	stdout, err := StartPiped(cmd, t.logger, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	t.logger.Debug("Started ffmpeg on locator", Int("pid", cmd.Process.Pid))
	return NewProcessReader(stdout, []*exec.Cmd{cmd}), nil
}

// PCMFromStream starts ffmpeg decoding in. Closing the returned reader also
// closes in.
func (t *Transcoder) PCMFromStream(in io.ReadCloser) (*ProcessReader, error) {
	cmd := exec.Command(t.ffmpeg.BinaryPath, t.PipeArgs()...)
	cmd.Stdin = in
	stdout, err := StartPiped(cmd, t.logger, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	t.logger.Debug("Started ffmpeg on pipe", Int("pid", cmd.Process.Pid))
	return NewProcessReader(stdout, []*exec.Cmd{cmd}, in), nil
}
