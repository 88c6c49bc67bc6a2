// Package extractor wraps the sources media information and audio streams are
// pulled from: the innertube client, the yt-dlp binary, plain page metadata
// and the Spotify catalogue.
//
// Every provider failure is an expected condition. Callers walk providers in
// order and move on when one returns an error.
package extractor

import (
	"context"
	"errors"
	"strings"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

var (
	ErrUnsupportedURL = errors.New("unsupported url")
	ErrNoAudioFormat  = errors.New("no audio format available")
	ErrNoResults      = errors.New("no results")
	ErrIncompleteInfo = errors.New("incomplete media info")
)

// InfoProvider fetches full media info for a single page URL.
type InfoProvider interface {
	Name() string
	Info(ctx context.Context, link string) (*common.MediaInfo, error)
}

// Searcher returns up to n ranked hits for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, n int) ([]*common.MediaInfo, error)
}

// Playlist is an enumerated playlist. Entries carry whatever the listing
// exposes and are completed lazily.
type Playlist struct {
	ID      string
	Title   string
	Entries []*common.MediaInfo
	Total   int // members available upstream, may exceed len(Entries)
}

// EncodingFromMime maps a container MIME type to a stream encoding tag.
func EncodingFromMime(mime string) pipeline.Encoding {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "audio/webm") && strings.Contains(mime, "opus"):
		return pipeline.EncodingWebMOpus
	case strings.HasPrefix(mime, "audio/ogg"):
		return pipeline.EncodingOggOpus
	default:
		return pipeline.EncodingArbitrary
	}
}
