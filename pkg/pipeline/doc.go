// Package pipeline turns acquired audio byte streams into Opus frames on a
// Discord voice connection.
//
// # Core Components
//
//   - Device: feeds one Resource at a time to a voice connection and reports
//     the end of every resource through an IdleHandler
//   - Resource: decoded s16le PCM behind a Gain stage, so volume changes apply
//     to every encoding while a track plays
//   - Transcoder: ffmpeg subprocesses emitting raw PCM, from a network
//     locator or from a piped container stream
//   - ProcessReader: subprocess stdout whose Close kills the whole chain
//   - Structured logging on zerolog, with lumberjack rotation for file output
//   - Metrics collection on a prometheus registry
//
// # Usage Example
//
//	config := pipeline.DefaultPipelineConfig()
//	logger := pipeline.NewStructuredLogger(pipeline.LoggingConfig{Level: "info", Format: "json"})
//	metrics := pipeline.NewPrometheusCollector("cozycat", logger)
//
//	device := pipeline.NewDevice(config, pipeline.NewTranscoder(config, logger), logger, metrics)
//	device.Attach(voiceConnection)
//	device.SetIdleHandler(func(ev pipeline.IdleEvent) {
//		// advance the queue
//	})
//
//	res, err := device.CreateResource(stream, 1.0)
//	if err != nil {
//		return err
//	}
//	return device.Play(res)
package pipeline
