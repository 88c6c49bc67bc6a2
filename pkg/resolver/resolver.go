// Package resolver turns what a user typed into an ordered list of playable
// items: a single video, the members of a playlist, or the best search hit.
package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/extractor"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// Kind tells single results from playlists.
type Kind string

const (
	KindSingle   Kind = "single"
	KindPlaylist Kind = "playlist"
)

// QueryKind is the classification of a raw query.
type QueryKind int

const (
	QueryText QueryKind = iota
	QueryURL
	QueryYouTubePlaylist
	QuerySpotifyTrack
	QuerySpotifyCollection
)

func (q QueryKind) String() string {
	switch q {
	case QueryURL:
		return "url"
	case QueryYouTubePlaylist:
		return "youtube_playlist"
	case QuerySpotifyTrack:
		return "spotify_track"
	case QuerySpotifyCollection:
		return "spotify_collection"
	default:
		return "text"
	}
}

// Entry is one resolved item. Info is nil for playlist members, which are
// completed right before they play.
type Entry struct {
	Title string
	URL   string
	Info  *common.MediaInfo
}

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	Kind           Kind
	Title          string
	Entries        []Entry
	TotalAvailable int
}

// QueueItems turns the entries into queue items for requestedBy.
func (r *Resolved) QueueItems(requestedBy string) []*common.QueueItem {
	items := make([]*common.QueueItem, 0, len(r.Entries))
	for _, e := range r.Entries {
		items = append(items, common.NewQueueItem(e.Title, e.URL, requestedBy, e.Info))
	}
	return items
}

// PlaylistSource enumerates video site playlists.
type PlaylistSource interface {
	Playlist(ctx context.Context, link string) (*extractor.Playlist, error)
}

// Catalog looks up music catalogue objects.
type Catalog interface {
	Track(ctx context.Context, id string) (*common.MediaInfo, error)
	Playlist(ctx context.Context, id string, max int) (*extractor.Playlist, error)
	Album(ctx context.Context, id string, max int) (*extractor.Playlist, error)
}

// Sources are the collaborators a resolver queries. Catalog may be nil.
type Sources struct {
	Providers []extractor.InfoProvider
	Searcher  extractor.Searcher
	Playlists PlaylistSource
	Catalog   Catalog
}

// Config bounds resolution.
type Config struct {
	PlaylistMax      int
	SearchCandidates int
}

// Resolver implements query resolution and lazy info fetches.
type Resolver struct {
	config  Config
	sources Sources
	logger  pipeline.Logger
	metrics pipeline.MetricsCollector
}

func New(cfg Config, sources Sources, logger pipeline.Logger, metrics pipeline.MetricsCollector) *Resolver {
	if cfg.PlaylistMax < 1 {
		cfg.PlaylistMax = 100
	}
	if cfg.SearchCandidates < 1 {
		cfg.SearchCandidates = 3
	}
	return &Resolver{
		config:  cfg,
		sources: sources,
		logger:  logger.With(pipeline.String("component", "resolver")),
		metrics: metrics,
	}
}

// Classify decides how a query is resolved. Catalogue links count as plain
// URLs when no catalogue is configured.
func Classify(query string, catalogEnabled bool) QueryKind {
	query = strings.TrimSpace(query)
	if !common.IsURL(query) {
		return QueryText
	}
	if common.IsYouTubePlaylistURL(query) {
		return QueryYouTubePlaylist
	}
	if kind, _, ok := common.ParseSpotifyURL(query); ok && catalogEnabled {
		if kind == common.SpotifyTrack {
			return QuerySpotifyTrack
		}
		return QuerySpotifyCollection
	}
	return QueryURL
}

// Resolve turns query into entries. Failures are *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Resolved, error) {
	query = strings.TrimSpace(query)
	kind := Classify(query, r.sources.Catalog != nil)
	if kind != QueryText {
		query = common.NormalizeURL(query)
	}
	log := r.logger.With(pipeline.String("query", query), pipeline.String("kind", kind.String()))

	var (
		res *Resolved
		err error
	)
	switch kind {
	case QueryYouTubePlaylist:
		res, err = r.resolvePlaylist(ctx, query)
	case QuerySpotifyCollection:
		res, err = r.resolveCatalogCollection(ctx, query)
	case QuerySpotifyTrack:
		res, err = r.resolveCatalogTrack(ctx, query)
	case QueryURL:
		res, err = r.resolveURL(ctx, query)
	default:
		res, err = r.resolveText(ctx, query)
	}

	result := "ok"
	if err != nil {
		result = "error"
		log.Warn("Resolution failed", pipeline.Error(err))
	} else {
		log.Info("Resolved query",
			pipeline.String("title", res.Title),
			pipeline.Int("entries", len(res.Entries)),
			pipeline.Int("total", res.TotalAvailable),
		)
	}
	r.metrics.RecordCounter("resolutions", 1, map[string]string{"kind": kind.String(), "result": result})
	return res, err
}

func (r *Resolver) resolvePlaylist(ctx context.Context, link string) (*Resolved, error) {
	if r.sources.Playlists == nil {
		return nil, &ResolutionError{Query: link, Reason: ErrEmptyPlaylist, Cause: errors.New("no playlist source")}
	}
	pl, err := r.sources.Playlists.Playlist(ctx, link)
	if err != nil {
		return nil, &ResolutionError{Query: link, Reason: ErrEmptyPlaylist, Cause: err}
	}
	return r.collection(link, pl, func(e *common.MediaInfo) string { return e.CanonicalURL() })
}

func (r *Resolver) resolveCatalogCollection(ctx context.Context, link string) (*Resolved, error) {
	kind, id, _ := common.ParseSpotifyURL(link)
	var (
		pl  *extractor.Playlist
		err error
	)
	if kind == common.SpotifyAlbum {
		pl, err = r.sources.Catalog.Album(ctx, id, r.config.PlaylistMax)
	} else {
		pl, err = r.sources.Catalog.Playlist(ctx, id, r.config.PlaylistMax)
	}
	if err != nil {
		return nil, &ResolutionError{Query: link, Reason: ErrEmptyPlaylist, Cause: err}
	}
	return r.collection(link, pl, func(e *common.MediaInfo) string { return e.URL })
}

// collection truncates pl to the playlist cap. Members stay unresolved.
func (r *Resolver) collection(link string, pl *extractor.Playlist, urlOf func(*common.MediaInfo) string) (*Resolved, error) {
	entries := make([]Entry, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e == nil || e.Title == "" || urlOf(e) == "" {
			continue
		}
		entries = append(entries, Entry{Title: e.Title, URL: urlOf(e)})
	}
	if len(entries) == 0 {
		return nil, &ResolutionError{Query: link, Reason: ErrEmptyPlaylist}
	}

	total := pl.Total
	if total < len(entries) {
		total = len(entries)
	}
	if len(entries) > r.config.PlaylistMax {
		entries = entries[:r.config.PlaylistMax]
	}
	return &Resolved{Kind: KindPlaylist, Title: pl.Title, Entries: entries, TotalAvailable: total}, nil
}

func (r *Resolver) resolveCatalogTrack(ctx context.Context, link string) (*Resolved, error) {
	_, id, _ := common.ParseSpotifyURL(link)
	track, err := r.sources.Catalog.Track(ctx, id)
	if err != nil {
		return nil, &ResolutionError{Query: link, Reason: ErrInfoUnavailable, Cause: err}
	}
	return r.resolveText(ctx, track.Title)
}

func (r *Resolver) resolveURL(ctx context.Context, link string) (*Resolved, error) {
	info, err := r.fetchInfo(ctx, link)
	if err != nil {
		return nil, &ResolutionError{Query: link, Reason: ErrInfoUnavailable, Cause: err}
	}
	return single(info), nil
}

// resolveText probes the top hits in rank order and keeps the first whose
// info can be fetched.
func (r *Resolver) resolveText(ctx context.Context, query string) (*Resolved, error) {
	if r.sources.Searcher == nil {
		return nil, &ResolutionError{Query: query, Reason: ErrNoResolvableCandidate, Cause: errors.New("no searcher")}
	}
	hits, err := r.sources.Searcher.Search(ctx, query, r.config.SearchCandidates)
	if err != nil {
		return nil, &ResolutionError{Query: query, Reason: ErrNoResolvableCandidate, Cause: err}
	}

	var lastErr error
	for i, hit := range hits {
		if i >= r.config.SearchCandidates {
			break
		}
		info, err := r.fetchInfo(ctx, hit.CanonicalURL())
		if err == nil {
			return single(info), nil
		}
		lastErr = err
		r.logger.Debug("Search candidate rejected",
			pipeline.Int("rank", i+1),
			pipeline.String("url", hit.CanonicalURL()),
			pipeline.Error(err),
		)
	}
	return nil, &ResolutionError{Query: query, Reason: ErrNoResolvableCandidate, Cause: lastErr}
}

// FetchInfo completes an unresolved item before playback. Catalogue links
// are searched by title since they cannot be streamed.
func (r *Resolver) FetchInfo(ctx context.Context, link, title string) (*common.MediaInfo, error) {
	if _, _, ok := common.ParseSpotifyURL(link); ok && title != "" {
		res, err := r.resolveText(ctx, title)
		if err != nil {
			return nil, err
		}
		return res.Entries[0].Info, nil
	}
	info, err := r.fetchInfo(ctx, link)
	if err != nil {
		return nil, &ResolutionError{Query: link, Reason: ErrInfoUnavailable, Cause: err}
	}
	return info, nil
}

// fetchInfo walks the provider chain and returns the first playable info.
func (r *Resolver) fetchInfo(ctx context.Context, link string) (*common.MediaInfo, error) {
	if link == "" {
		return nil, extractor.ErrIncompleteInfo
	}
	var lastErr error = extractor.ErrIncompleteInfo
	for _, p := range r.sources.Providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := p.Info(ctx, link)
		if err != nil {
			lastErr = err
			r.logger.Debug("Info provider failed", pipeline.String("provider", p.Name()), pipeline.String("url", link), pipeline.Error(err))
			continue
		}
		if !info.Playable() {
			lastErr = extractor.ErrIncompleteInfo
			continue
		}
		return info, nil
	}
	return nil, lastErr
}

func single(info *common.MediaInfo) *Resolved {
	return &Resolved{
		Kind:           KindSingle,
		Title:          info.Title,
		Entries:        []Entry{{Title: info.Title, URL: info.CanonicalURL(), Info: info}},
		TotalAvailable: 1,
	}
}
