package pipeline

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *PipelineConfig)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *PipelineConfig) {}},
		{name: "empty ffmpeg path", mutate: func(c *PipelineConfig) { c.FFmpeg.BinaryPath = "" }, wantErr: true},
		{name: "wrong sample rate", mutate: func(c *PipelineConfig) { c.Opus.SampleRate = 44100 }, wantErr: true},
		{name: "mono", mutate: func(c *PipelineConfig) { c.Opus.Channels = 1 }, wantErr: true},
		{name: "odd frame size", mutate: func(c *PipelineConfig) { c.Opus.FrameSize = 1000 }, wantErr: true},
		{name: "bitrate too high", mutate: func(c *PipelineConfig) { c.Opus.Bitrate = 1_000_000 }, wantErr: true},
		{name: "zero first byte timeout", mutate: func(c *PipelineConfig) { c.FirstByteTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultPipelineConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoggingConfigValidate(t *testing.T) {
	assert.NoError(t, (&LoggingConfig{Level: "debug", Format: "json"}).Validate())
	assert.Error(t, (&LoggingConfig{Level: "verbose", Format: "json"}).Validate())
	assert.Error(t, (&LoggingConfig{Level: "info", Format: "xml"}).Validate())
}

func TestStructuredLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cozycat.log")
	logger := NewStructuredLogger(LoggingConfig{Level: "debug", Format: "json", Output: path, MaxSizeMB: 1})

	logger.With(String("guild_id", "g1")).Info("track started",
		String("title", "Song X"),
		Int("position", 1),
		Duration("elapsed", time.Second),
		Bool("loop", true),
	)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	data := string(raw)
	assert.Contains(t, data, `"guild_id":"g1"`)
	assert.Contains(t, data, `"title":"Song X"`)
	assert.Contains(t, data, `"message":"track started"`)
}

func TestNullLoggerDiscards(t *testing.T) {
	logger := NullLogger()
	assert.NotPanics(t, func() {
		logger.With(String("k", "v")).Error("nothing", Error(io.EOF))
	})
}

func pcmBytes(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func TestGainScalesSamples(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		in     []int16
		want   []int16
	}{
		{name: "unity", volume: 1.0, in: []int16{1000, -1000}, want: []int16{1000, -1000}},
		{name: "half", volume: 0.5, in: []int16{1000, -1000}, want: []int16{500, -500}},
		{name: "double", volume: 2.0, in: []int16{1000, -1000}, want: []int16{2000, -2000}},
		{name: "clips at max", volume: 2.0, in: []int16{30000, -30000}, want: []int16{32767, -32768}},
		{name: "silent", volume: 0, in: []int16{1000, -1000}, want: []int16{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGain(bytes.NewReader(pcmBytes(tt.in...)), 1, tt.volume)
			out := make([]int16, 2)
			n, err := g.ReadFrame(out)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestGainVolumeChangeAppliesToNextFrame(t *testing.T) {
	g := NewGain(bytes.NewReader(pcmBytes(100, 100, 100, 100)), 1, 1.0)
	out := make([]int16, 2)

	_, err := g.ReadFrame(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{100, 100}, out)

	g.SetVolume(0.5)
	assert.Equal(t, 0.5, g.Volume())
	_, err = g.ReadFrame(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{50, 50}, out)

	_, err = g.ReadFrame(out)
	assert.ErrorIs(t, err, io.EOF)
}

func TestGainSetVolumeWhileReadIsBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	g := NewGain(pr, 1, 1.0)

	type result struct {
		out []int16
		err error
	}
	read := make(chan result, 1)
	go func() {
		out := make([]int16, 2)
		_, err := g.ReadFrame(out)
		read <- result{out: out, err: err}
	}()

	set := make(chan struct{})
	go func() {
		g.SetVolume(0.5)
		close(set)
	}()
	select {
	case <-set:
	case <-time.After(time.Second):
		t.Fatal("SetVolume blocked behind a stalled read")
	}
	assert.Equal(t, 0.5, g.Volume())

	_, err := pw.Write(pcmBytes(1000, 1000))
	require.NoError(t, err)
	select {
	case r := <-read:
		require.NoError(t, r.err)
		assert.Len(t, r.out, 2)
	case <-time.After(time.Second):
		t.Fatal("read never completed")
	}

	go func() { _, _ = pw.Write(pcmBytes(1000, -1000)) }()
	out := make([]int16, 2)
	_, err = g.ReadFrame(out)
	require.NoError(t, err)
	assert.Equal(t, []int16{500, -500}, out)
}

func TestGainPadsShortFrame(t *testing.T) {
	g := NewGain(bytes.NewReader(pcmBytes(7, 7)), 4, 1.0)
	out := []int16{9, 9, 9, 9, 9, 9, 9, 9}
	n, err := g.ReadFrame(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int16{7, 7, 0, 0, 0, 0, 0, 0}, out)
}

func TestTranscoderArgs(t *testing.T) {
	tr := NewTranscoder(DefaultPipelineConfig(), NullLogger())

	args := tr.URLArgs("https://media.example/a.webm")
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-i", "https://media.example/a.webm",
		"-vn", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1",
	}, args)

	pipeArgs := tr.PipeArgs()
	assert.Contains(t, pipeArgs, "pipe:0")
	assert.NotContains(t, pipeArgs, "-reconnect")
}

func TestProcessReaderCloseKillsProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	cmd := exec.Command("sleep", "30")
	stdout, err := StartPiped(cmd, NullLogger(), "sleep")
	require.NoError(t, err)

	pr := NewProcessReader(stdout, []*exec.Cmd{cmd})
	done := make(chan struct{})
	go func() {
		_ = pr.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.NotNil(t, cmd.ProcessState)
	assert.NoError(t, pr.Close(), "second close is a no-op")
}

func TestDeviceWithoutVoiceConnection(t *testing.T) {
	config := DefaultPipelineConfig()
	device := NewDevice(config, NewTranscoder(config, NullLogger()), NullLogger(), NoopMetrics{})

	stream := &Stream{ReadCloser: io.NopCloser(bytes.NewReader(pcmBytes(1, 2))), Encoding: EncodingRaw, Strategy: "test"}
	res, err := device.CreateResource(stream, 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.ID)
	assert.Equal(t, 0.5, res.Volume())

	assert.ErrorIs(t, device.Play(res), ErrNoVoiceConnection)
	assert.False(t, device.Stop())
	assert.False(t, device.Pause())
	assert.False(t, device.Unpause())
	assert.Equal(t, StatusIdle, device.Status())
	assert.False(t, device.Connected())
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector("cozycat", NullLogger())

	c.RecordCounter("acquire_attempts", 1, map[string]string{"strategy": "innertube", "result": "ok"})
	c.RecordCounter("acquire_attempts", 2, map[string]string{"strategy": "innertube", "result": "ok"})
	c.RecordGauge("active_drivers", 3, nil)
	c.RecordTiming("acquire", 250*time.Millisecond, map[string]string{"strategy": "innertube"})
	// mismatched label set is dropped rather than panicking
	c.RecordCounter("acquire_attempts", 1, map[string]string{"other": "x"})

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 3.0, values["cozycat_acquire_attempts_total"])
	assert.Equal(t, 3.0, values["cozycat_active_drivers"])
	assert.Equal(t, 1.0, values["cozycat_acquire_seconds"])
}
