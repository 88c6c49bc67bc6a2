package extractor

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	youtube "github.com/kkdai/youtube/v2"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

// InnertubeConfig configures the innertube client.
type InnertubeConfig struct {
	Cookie  string
	Proxy   string // http://, https:// or socks5://
	RPS     float64
	Burst   int
	Timeout time.Duration
}

// Innertube talks to YouTube's internal API through kkdai/youtube.
type Innertube struct {
	client  *youtube.Client
	limiter *rate.Limiter
	logger  pipeline.Logger
}

// NewInnertube builds the client. A malformed proxy is an error rather than a
// silent fallback to a direct connection.
func NewInnertube(cfg InnertubeConfig, logger pipeline.Logger) (*Innertube, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Innertube{
		client:  &youtube.Client{HTTPClient: httpClient},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(pipeline.String("provider", "innertube")),
	}, nil
}

func newHTTPClient(cfg InnertubeConfig) (*http.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", cfg.Proxy, err)
		}
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5":
			var auth *proxy.Auth
			if proxyURL.User != nil {
				auth = &proxy.Auth{User: proxyURL.User.Username()}
				auth.Password, _ = proxyURL.User.Password()
			}
			dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 10 * time.Second,
			})
			if err != nil {
				return nil, fmt.Errorf("socks5 dialer: %w", err)
			}
			transport.Proxy = nil
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", proxyURL.Scheme)
		}
	}

	// streams are long lived, so only the response headers are bounded
	transport.ResponseHeaderTimeout = timeout

	var rt http.RoundTripper = transport
	if cfg.Cookie != "" {
		rt = &cookieTransport{cookie: cfg.Cookie, base: transport}
	}
	return &http.Client{Transport: rt}, nil
}

// cookieTransport adds the site cookie to every request.
type cookieTransport struct {
	cookie string
	base   http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Cookie", t.cookie)
	return t.base.RoundTrip(req)
}

func (it *Innertube) Name() string { return "innertube" }

func (it *Innertube) video(ctx context.Context, link string) (*youtube.Video, error) {
	if common.ExtractYouTubeVideoID(link) == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURL, link)
	}
	if err := it.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	video, err := it.client.GetVideoContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("innertube video: %w", err)
	}
	return video, nil
}

// Info fetches video metadata and a direct stream URL for the best audio
// format when one can be deciphered.
func (it *Innertube) Info(ctx context.Context, link string) (*common.MediaInfo, error) {
	video, err := it.video(ctx, link)
	if err != nil {
		return nil, err
	}

	info := videoInfo(video)
	if format, err := bestAudioFormat(video.Formats); err == nil {
		if streamURL, err := it.client.GetStreamURLContext(ctx, video, format); err == nil {
			info.StreamURL = streamURL
		} else {
			it.logger.Debug("No stream url for video", pipeline.String("video_id", video.ID), pipeline.Error(err))
		}
	}
	return info, nil
}

// OpenStream opens the best audio-only format of the video behind link. ctx
// bounds the whole stream, not just the request.
func (it *Innertube) OpenStream(ctx context.Context, link string) (*pipeline.Stream, error) {
	video, err := it.video(ctx, link)
	if err != nil {
		return nil, err
	}
	format, err := bestAudioFormat(video.Formats)
	if err != nil {
		return nil, err
	}
	body, _, err := it.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("innertube stream: %w", err)
	}
	it.logger.Debug("Opened stream",
		pipeline.String("video_id", video.ID),
		pipeline.Int("itag", format.ItagNo),
		pipeline.String("mime", format.MimeType),
	)
	return &pipeline.Stream{
		ReadCloser: body,
		Encoding:   EncodingFromMime(format.MimeType),
		Source:     link,
	}, nil
}

// Playlist enumerates a YouTube playlist.
func (it *Innertube) Playlist(ctx context.Context, link string) (*Playlist, error) {
	if err := it.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	pl, err := it.client.GetPlaylistContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("innertube playlist: %w", err)
	}
	out := &Playlist{ID: pl.ID, Title: pl.Title, Entries: make([]*common.MediaInfo, 0, len(pl.Videos))}
	for _, entry := range pl.Videos {
		if entry == nil || entry.ID == "" {
			continue
		}
		out.Entries = append(out.Entries, &common.MediaInfo{
			ID:         entry.ID,
			Title:      entry.Title,
			URL:        common.YouTubeWatchURL(entry.ID),
			WebpageURL: common.YouTubeWatchURL(entry.ID),
			Thumbnail:  common.GetYouTubeThumbnailURL(entry.ID),
			Author:     entry.Author,
			Duration:   entry.Duration,
			Source:     it.Name(),
		})
	}
	out.Total = len(out.Entries)
	return out, nil
}

func videoInfo(video *youtube.Video) *common.MediaInfo {
	thumb := common.GetYouTubeThumbnailURL(video.ID)
	if n := len(video.Thumbnails); n > 0 {
		thumb = video.Thumbnails[n-1].URL
	}
	return &common.MediaInfo{
		ID:         video.ID,
		Title:      video.Title,
		URL:        common.YouTubeWatchURL(video.ID),
		WebpageURL: common.YouTubeWatchURL(video.ID),
		Thumbnail:  thumb,
		Author:     video.Author,
		Duration:   video.Duration,
		Source:     "innertube",
	}
}

// bestAudioFormat prefers audio-only formats, opus over anything else, then
// the highest bitrate.
func bestAudioFormat(formats youtube.FormatList) (*youtube.Format, error) {
	candidates := formats.Type("audio")
	if len(candidates) == 0 {
		candidates = formats.WithAudioChannels()
	}
	if len(candidates) == 0 {
		return nil, ErrNoAudioFormat
	}

	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		f := &candidates[i]
		fOpus, bestOpus := isOpus(f.MimeType), isOpus(best.MimeType)
		if fOpus != bestOpus {
			if fOpus {
				best = f
			}
			continue
		}
		if f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best, nil
}

func isOpus(mime string) bool {
	return strings.Contains(strings.ToLower(mime), "opus")
}
