package pipeline

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync/atomic"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

// Gain applies an adjustable linear volume to an s16le stereo PCM stream.
// SetVolume and Volume are safe to call while a read is blocked; ReadFrame
// itself has a single caller.
type Gain struct {
	src    *pcmStreamer
	volume *effects.Volume
	linear atomic.Uint64 // math.Float64bits of the factor
	buf    [][2]float64
}

// NewGain wraps r. linear is the initial factor, 1.0 leaves samples untouched.
func NewGain(r io.Reader, frameSize int, linear float64) *Gain {
	src := &pcmStreamer{r: r, raw: make([]byte, frameSize*4)}
	g := &Gain{
		src:    src,
		volume: &effects.Volume{Streamer: src, Base: 2},
		buf:    make([][2]float64, frameSize),
	}
	g.SetVolume(linear)
	return g
}

// SetVolume changes the factor for every frame read from now on.
func (g *Gain) SetVolume(linear float64) {
	g.linear.Store(math.Float64bits(linear))
}

// Volume returns the current linear factor.
func (g *Gain) Volume() float64 {
	return math.Float64frombits(g.linear.Load())
}

func (g *Gain) apply(linear float64) {
	if linear <= 0 {
		g.volume.Silent = true
		return
	}
	g.volume.Silent = false
	g.volume.Volume = math.Log2(linear)
}

// ReadFrame fills out with interleaved stereo samples. It returns the number
// of sample frames read; a short final frame is zero padded.
func (g *Gain) ReadFrame(out []int16) (int, error) {
	g.apply(g.Volume())

	frames := len(out) / 2
	if frames > len(g.buf) {
		frames = len(g.buf)
	}
	n, ok := g.volume.Stream(g.buf[:frames])
	if !ok || n == 0 {
		if err := g.src.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	for i := 0; i < n; i++ {
		out[2*i] = toInt16(g.buf[i][0])
		out[2*i+1] = toInt16(g.buf[i][1])
	}
	for i := 2 * n; i < len(out); i++ {
		out[i] = 0
	}
	return n, nil
}

func toInt16(v float64) int16 {
	v = math.Round(v * 32768)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// pcmStreamer decodes s16le stereo bytes as a beep.Streamer.
type pcmStreamer struct {
	r   io.Reader
	raw []byte
	err error
}

var _ beep.Streamer = (*pcmStreamer)(nil)

func (s *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.err != nil {
		return 0, false
	}
	want := len(samples) * 4
	if want > len(s.raw) {
		s.raw = make([]byte, want)
	}
	n, err := io.ReadFull(s.r, s.raw[:want])
	frames := n / 4
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(s.raw[4*i:]))
		r := int16(binary.LittleEndian.Uint16(s.raw[4*i+2:]))
		samples[i][0] = float64(l) / 32768
		samples[i][1] = float64(r) / 32768
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.err = err
	}
	if frames == 0 {
		return 0, false
	}
	return frames, true
}

func (s *pcmStreamer) Err() error {
	return s.err
}
