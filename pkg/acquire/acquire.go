// Package acquire turns resolved media info into a readable audio stream by
// walking an ordered chain of strategies over every candidate URL.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/extractor"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// Config tunes the acquirer.
type Config struct {
	// FirstByteTimeout is how long an opened stream may stay silent before
	// it counts as failed.
	FirstByteTimeout time.Duration
}

// Acquirer runs the strategy chain.
type Acquirer struct {
	strategies []Strategy
	searcher   extractor.Searcher
	config     Config
	logger     pipeline.Logger
	metrics    pipeline.MetricsCollector
}

// New creates an acquirer. searcher may be nil, which disables the
// search-and-retry fallback.
func New(cfg Config, strategies []Strategy, searcher extractor.Searcher, logger pipeline.Logger, metrics pipeline.MetricsCollector) *Acquirer {
	if cfg.FirstByteTimeout <= 0 {
		cfg.FirstByteTimeout = 15 * time.Second
	}
	return &Acquirer{
		strategies: strategies,
		searcher:   searcher,
		config:     cfg,
		logger:     logger.With(pipeline.String("component", "acquirer")),
		metrics:    metrics,
	}
}

// Candidates lists the URLs worth trying for info in discovery order without
// duplicates.
func Candidates(info *common.MediaInfo) []string {
	if info == nil {
		return nil
	}
	seen := make(map[string]bool, 4)
	var out []string
	for _, u := range []string{info.URL, info.WebpageURL, common.YouTubeWatchURL(info.ID), info.StreamURL} {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// Acquire returns the first stream any strategy opens for any candidate. Each
// strategy is tried on every candidate before the next strategy runs. If all
// of them fail and a title is known, the title is searched and the chain runs
// once more on the top hit.
//
// ctx must outlive the returned stream; cancelling it tears the stream down.
func (a *Acquirer) Acquire(ctx context.Context, info *common.MediaInfo) (*pipeline.Stream, error) {
	title := ""
	if info != nil {
		title = info.Title
	}
	log := a.logger.With(pipeline.String("title", title))
	acqErr := &AcquisitionError{Title: title}

	candidates := Candidates(info)
	if len(candidates) == 0 {
		acqErr.Attempts = append(acqErr.Attempts, Attempt{Strategy: "candidates", Err: ErrNoCandidates})
	}
	if stream := a.runChain(ctx, candidates, acqErr, log); stream != nil {
		return stream, nil
	}

	if title != "" && a.searcher != nil && ctx.Err() == nil {
		hits, err := a.searcher.Search(ctx, title, 1)
		if err != nil || len(hits) == 0 {
			if err == nil {
				err = extractor.ErrNoResults
			}
			acqErr.Attempts = append(acqErr.Attempts, Attempt{Strategy: "search", URL: title, Err: err})
			log.Warn("Search fallback found nothing", pipeline.Error(err))
		} else {
			log.Info("Retrying with search hit", pipeline.String("url", hits[0].CanonicalURL()))
			if stream := a.runChain(ctx, Candidates(hits[0]), acqErr, log); stream != nil {
				return stream, nil
			}
		}
	}

	log.Error("All strategies failed", pipeline.Int("attempts", len(acqErr.Attempts)))
	return nil, acqErr
}

func (a *Acquirer) runChain(ctx context.Context, candidates []string, acqErr *AcquisitionError, log pipeline.Logger) *pipeline.Stream {
	for _, strategy := range a.strategies {
		for _, link := range candidates {
			if ctx.Err() != nil {
				acqErr.Attempts = append(acqErr.Attempts, Attempt{Strategy: strategy.Name, URL: link, Err: ctx.Err()})
				return nil
			}
			stream, err := a.try(ctx, strategy, link)
			if err == nil {
				log.Info("Stream acquired",
					pipeline.String("strategy", strategy.Name),
					pipeline.String("url", link),
					pipeline.String("encoding", stream.Encoding.String()),
				)
				return stream
			}
			acqErr.Attempts = append(acqErr.Attempts, Attempt{Strategy: strategy.Name, URL: link, Err: err})
			log.Warn("Strategy failed",
				pipeline.String("strategy", strategy.Name),
				pipeline.String("url", link),
				pipeline.Error(err),
			)
		}
	}
	return nil
}

func (a *Acquirer) try(ctx context.Context, strategy Strategy, link string) (*pipeline.Stream, error) {
	start := time.Now()
	stream, err := strategy.Open(ctx, link)
	if err == nil {
		stream, err = a.awaitFirstByte(stream, strategy.Sniff)
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	tags := map[string]string{"strategy": strategy.Name}
	a.metrics.RecordTiming("acquire", time.Since(start), tags)
	a.metrics.RecordCounter("acquire_attempts", 1, map[string]string{"strategy": strategy.Name, "result": result})
	if err != nil {
		return nil, err
	}

	stream.Strategy = strategy.Name
	stream.Source = link
	return stream, nil
}

// bufferedStream keeps the peeked header in front of the original reader.
type bufferedStream struct {
	*bufio.Reader
	io.Closer
}

// awaitFirstByte blocks until the stream yields data, fails, or stays silent
// past the first-byte timeout. A failed stream is closed.
func (a *Acquirer) awaitFirstByte(stream *pipeline.Stream, sniff bool) (*pipeline.Stream, error) {
	br := bufio.NewReader(stream.ReadCloser)
	type peekResult struct {
		header []byte
		err    error
	}
	done := make(chan peekResult, 1)
	go func() {
		if _, err := br.Peek(1); err != nil {
			done <- peekResult{err: err}
			return
		}
		var header []byte
		if sniff {
			// a stream shorter than the magic still counts as data
			header, _ = br.Peek(sniffLen)
		}
		done <- peekResult{header: header}
	}()

	timer := time.NewTimer(a.config.FirstByteTimeout)
	defer timer.Stop()

	var res peekResult
	select {
	case res = <-done:
	case <-timer.C:
		_ = stream.Close()
		return nil, ErrFirstByteTimeout
	}
	if res.err != nil {
		_ = stream.Close()
		if errors.Is(res.err, io.EOF) {
			return nil, ErrEmptyStream
		}
		return nil, res.err
	}

	encoding := stream.Encoding
	if sniff {
		encoding = Sniff(res.header)
	}
	return &pipeline.Stream{
		ReadCloser: bufferedStream{Reader: br, Closer: stream.ReadCloser},
		Encoding:   encoding,
		Strategy:   stream.Strategy,
		Source:     stream.Source,
	}, nil
}
