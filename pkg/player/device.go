package player

import (
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// pipelineDevice adapts *pipeline.Device to Device.
type pipelineDevice struct {
	*pipeline.Device
}

// NewPipelineDevice wraps a pipeline device.
func NewPipelineDevice(d *pipeline.Device) Device {
	return pipelineDevice{Device: d}
}

func (p pipelineDevice) CreateResource(stream *pipeline.Stream, volume float64) (Resource, error) {
	res, err := p.Device.CreateResource(stream, volume)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p pipelineDevice) Play(res Resource) error {
	r, ok := res.(*pipeline.Resource)
	if !ok {
		return pipeline.ErrNoResource
	}
	return p.Device.Play(r)
}

// PipelineDevices returns a DeviceFactory that builds one pipeline device per
// guild on a shared transcoder.
func PipelineDevices(config *pipeline.PipelineConfig, transcoder *pipeline.Transcoder, logger pipeline.Logger, metrics pipeline.MetricsCollector) DeviceFactory {
	return func(guildID string) Device {
		return NewPipelineDevice(pipeline.NewDevice(config, transcoder, logger.With(pipeline.String("guild_id", guildID)), metrics))
	}
}
