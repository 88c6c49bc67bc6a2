package acquire

import (
	"bytes"
	"context"
	"fmt"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/extractor"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// OpenFunc opens an audio stream for one page URL. ctx bounds the lifetime of
// the returned stream.
type OpenFunc func(ctx context.Context, link string) (*pipeline.Stream, error)

// Strategy is one way of turning a page URL into audio bytes.
type Strategy struct {
	Name string
	Open OpenFunc
	// Sniff asks the acquirer to tag the encoding from the stream header.
	Sniff bool
}

var (
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	oggMagic  = []byte("OggS")
)

// sniffLen is how many header bytes Sniff looks at.
const sniffLen = 4

// Sniff tags a container from its first bytes.
func Sniff(header []byte) pipeline.Encoding {
	switch {
	case bytes.HasPrefix(header, ebmlMagic):
		return pipeline.EncodingWebMOpus
	case bytes.HasPrefix(header, oggMagic):
		return pipeline.EncodingOggOpus
	default:
		return pipeline.EncodingArbitrary
	}
}

// DefaultStrategies is the production chain: innertube, then yt-dlp piped
// into the decoder, then yt-dlp URL resolution fed to ffmpeg.
func DefaultStrategies(it *extractor.Innertube, yt *extractor.YtDlp, tr *pipeline.Transcoder) []Strategy {
	return []Strategy{
		{Name: "innertube", Open: innertubeOpen(it)},
		{Name: "ytdlp-pipe", Open: ytdlpPipeOpen(yt), Sniff: true},
		{Name: "ytdlp-ffmpeg", Open: ytdlpFFmpegOpen(yt, tr)},
	}
}

func innertubeOpen(it *extractor.Innertube) OpenFunc {
	return func(ctx context.Context, link string) (*pipeline.Stream, error) {
		stream, err := it.OpenStream(ctx, link)
		if err == nil {
			return stream, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		// signed stream URLs go stale; a fresh info fetch gets new ones
		stream, retryErr := it.OpenStream(ctx, link)
		if retryErr != nil {
			return nil, fmt.Errorf("%w (retry: %v)", err, retryErr)
		}
		return stream, nil
	}
}

func ytdlpPipeOpen(yt *extractor.YtDlp) OpenFunc {
	return func(ctx context.Context, link string) (*pipeline.Stream, error) {
		if common.ExtractYouTubeVideoID(link) == "" {
			return nil, fmt.Errorf("%w: %s", extractor.ErrUnsupportedURL, link)
		}
		pr, err := yt.OpenPipe(ctx, link)
		if err != nil {
			return nil, err
		}
		return &pipeline.Stream{ReadCloser: pr, Encoding: pipeline.EncodingArbitrary}, nil
	}
}

func ytdlpFFmpegOpen(yt *extractor.YtDlp, tr *pipeline.Transcoder) OpenFunc {
	return func(ctx context.Context, link string) (*pipeline.Stream, error) {
		locator, err := yt.DirectURL(ctx, link)
		if err != nil {
			return nil, err
		}
		pr, err := tr.PCMFromURL(locator)
		if err != nil {
			return nil, err
		}
		return &pipeline.Stream{ReadCloser: pr, Encoding: pipeline.EncodingRaw}, nil
	}
}
