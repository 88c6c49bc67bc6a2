package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

// prefetchFrames is how many encoded-ready PCM frames are read ahead.
const prefetchFrames = 8

// Resource is one playable item: decoded PCM behind an adjustable gain stage.
type Resource struct {
	ID       uint64
	Encoding Encoding
	Strategy string

	pcm  io.ReadCloser
	gain *Gain
}

// ResourceID returns the id idle events carry for this resource.
func (r *Resource) ResourceID() uint64 {
	return r.ID
}

// SetVolume changes the gain of a resource, also while it plays.
func (r *Resource) SetVolume(linear float64) {
	r.gain.SetVolume(linear)
}

// Volume returns the current gain factor.
func (r *Resource) Volume() float64 {
	return r.gain.Volume()
}

// Close releases the PCM source and every process behind it.
func (r *Resource) Close() error {
	return r.pcm.Close()
}

// Device feeds one resource at a time to a Discord voice connection.
type Device struct {
	config     *PipelineConfig
	transcoder *Transcoder
	logger     Logger
	metrics    MetricsCollector
	nextID     atomic.Uint64

	mu       sync.Mutex
	vc       *discordgo.VoiceConnection
	status   Status
	current  *Resource
	cancel   context.CancelFunc
	done     chan struct{}
	paused   bool
	resumeCh chan struct{}
	onIdle   IdleHandler
}

// NewDevice creates an unattached device.
func NewDevice(config *PipelineConfig, transcoder *Transcoder, logger Logger, metrics MetricsCollector) *Device {
	return &Device{
		config:     config,
		transcoder: transcoder,
		logger:     logger.With(String("component", "device")),
		metrics:    metrics,
	}
}

// Attach binds the device to a voice connection.
func (d *Device) Attach(vc *discordgo.VoiceConnection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vc = vc
}

// Detach stops playback and unbinds the voice connection, returning it.
func (d *Device) Detach() *discordgo.VoiceConnection {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := d.vc
	d.vc = nil
	return vc
}

// Connected reports whether a voice connection is attached.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vc != nil
}

// SetIdleHandler registers the receiver of idle events.
func (d *Device) SetIdleHandler(h IdleHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onIdle = h
}

// Status returns the device status.
func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// CreateResource decodes stream to PCM unless it already is raw PCM and
// applies the initial volume.
func (d *Device) CreateResource(stream *Stream, volume float64) (*Resource, error) {
	var pcm io.ReadCloser = stream
	if stream.Encoding != EncodingRaw {
		decoded, err := d.transcoder.PCMFromStream(stream)
		if err != nil {
			_ = stream.Close()
			return nil, err
		}
		pcm = decoded
	}

	res := &Resource{
		ID:       d.nextID.Add(1),
		Encoding: stream.Encoding,
		Strategy: stream.Strategy,
		pcm:      pcm,
		gain:     NewGain(pcm, d.config.Opus.FrameSize, volume),
	}
	d.logger.Debug("Created resource",
		Int64("resource_id", int64(res.ID)),
		String("encoding", stream.Encoding.String()),
		String("strategy", stream.Strategy),
	)
	return res, nil
}

// Play starts feeding res. The idle handler fires exactly once when it ends.
func (d *Device) Play(res *Resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return ErrNoVoiceConnection
	}
	if d.current != nil {
		return ErrDeviceBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.current = res
	d.cancel = cancel
	d.done = make(chan struct{})
	d.status = StatusBuffering
	d.paused = false
	d.resumeCh = nil

	go d.run(ctx, d.vc, res, d.done)
	return nil
}

// Stop ends the current resource and waits for its feed loop to exit.
func (d *Device) Stop() bool {
	d.mu.Lock()
	cancel, done, res := d.cancel, d.done, d.current
	if d.paused {
		d.paused = false
		close(d.resumeCh)
	}
	d.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	// unblocks a pending read on the source
	_ = res.Close()
	<-done
	return true
}

// Pause suspends the current resource. It returns false when nothing plays.
func (d *Device) Pause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.paused {
		return false
	}
	d.paused = true
	d.resumeCh = make(chan struct{})
	d.status = StatusPaused
	return true
}

// Unpause resumes a paused resource. It returns false when not paused.
func (d *Device) Unpause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return false
	}
	d.paused = false
	close(d.resumeCh)
	d.status = StatusPlaying
	return true
}

func (d *Device) run(ctx context.Context, vc *discordgo.VoiceConnection, res *Resource, done chan struct{}) {
	log := d.logger.With(Int64("resource_id", int64(res.ID)))
	start := time.Now()

	err := d.feed(ctx, vc, res, log)
	_ = res.Close()
	stopped := ctx.Err() != nil

	d.mu.Lock()
	if d.current == res {
		d.current = nil
		d.cancel = nil
		d.status = StatusIdle
		d.paused = false
	}
	handler := d.onIdle
	d.mu.Unlock()
	close(done)

	if err != nil && !stopped {
		d.metrics.RecordCounter("device_errors", 1, nil)
		log.Error("Resource ended with device error", Error(err))
	} else {
		err = nil
		log.Debug("Resource ended", Duration("played", time.Since(start)), Bool("stopped", stopped))
	}

	if handler != nil {
		handler(IdleEvent{ResourceID: res.ID, Err: err, Stopped: stopped})
	}
}

func (d *Device) feed(ctx context.Context, vc *discordgo.VoiceConnection, res *Resource, log Logger) error {
	opusCfg := d.config.Opus
	encoder, err := gopus.NewEncoder(opusCfg.SampleRate, opusCfg.Channels, gopus.Audio)
	if err != nil {
		return NewDeviceError(fmt.Errorf("failed to create opus encoder: %w", err), CategoryProcess)
	}
	encoder.SetBitrate(opusCfg.Bitrate)

	if err := d.waitForVoiceReady(ctx, vc); err != nil {
		return NewDeviceError(err, CategoryVoice)
	}

	frames, errc := d.prefetch(ctx, res)

	if err := vc.Speaking(true); err != nil {
		log.Warn("Failed to set speaking state", Error(err))
	}
	defer func() {
		_ = vc.Speaking(false)
	}()

	frameCount := 0
	for {
		if !d.waitIfPaused(ctx) {
			return nil
		}

		var pcm []int16
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case pcm, ok = <-frames:
			if !ok {
				if err := <-errc; !errors.Is(err, io.EOF) {
					return NewDeviceError(err, CategoryStream)
				}
				return nil
			}
		case <-time.After(d.config.ReadTimeout):
			return NewDeviceError(ErrReadTimeout, CategoryStream)
		}

		if frameCount == 0 {
			d.setStatus(StatusPlaying)
		}

		packet, err := encoder.Encode(pcm, opusCfg.FrameSize, opusCfg.FrameBytes())
		if err != nil {
			log.Warn("Opus encoding error", Error(err))
			continue
		}

		select {
		case vc.OpusSend <- packet:
			frameCount++
		case <-ctx.Done():
			return nil
		case <-time.After(d.config.Discord.SendTimeout):
			log.Warn("OpusSend channel blocked, skipping frame")
		}
	}
}

// prefetch reads frames ahead of the encoder. On the first read error the
// frame channel is closed and the error is left on errc.
func (d *Device) prefetch(ctx context.Context, res *Resource) (<-chan []int16, <-chan error) {
	frames := make(chan []int16, prefetchFrames)
	errc := make(chan error, 1)
	samples := d.config.Opus.FrameSize * d.config.Opus.Channels

	go func() {
		defer close(frames)
		for {
			pcm := make([]int16, samples)
			if _, err := res.gain.ReadFrame(pcm); err != nil {
				errc <- err
				return
			}
			select {
			case frames <- pcm:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return frames, errc
}

func (d *Device) waitIfPaused(ctx context.Context) bool {
	d.mu.Lock()
	if !d.paused {
		d.mu.Unlock()
		return true
	}
	ch := d.resumeCh
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return false
	case <-ch:
		return ctx.Err() == nil
	}
}

func (d *Device) setStatus(s Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil && !d.paused {
		d.status = s
	}
}

func (d *Device) waitForVoiceReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	timeout := time.After(d.config.Discord.ReadyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrVoiceNotReady
		case <-ticker.C:
		}
	}
}
