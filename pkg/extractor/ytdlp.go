package extractor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/lrstanley/go-ytdlp"
)

const (
	searchTemplate = "%(url)s\t%(title)s\t%(uploader)s\t%(duration)s"
	infoTemplate   = "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(thumbnail)s"
)

// YtDlpConfig configures the yt-dlp provider.
type YtDlpConfig struct {
	Cookie string
	Proxy  string
}

// YtDlp drives the yt-dlp binary through go-ytdlp.
type YtDlp struct {
	config YtDlpConfig
	logger pipeline.Logger
}

func NewYtDlp(cfg YtDlpConfig, logger pipeline.Logger) *YtDlp {
	return &YtDlp{config: cfg, logger: logger.With(pipeline.String("provider", "ytdlp"))}
}

func (y *YtDlp) Name() string { return "ytdlp" }

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if y.config.Proxy != "" {
		cmd.Proxy(y.config.Proxy)
	}
	return cmd
}

// args appends the shared raw arguments to the target.
func (y *YtDlp) args(target string) []string {
	var args []string
	if y.config.Cookie != "" {
		args = append(args, "--add-header", "Cookie:"+y.config.Cookie)
	}
	return append(args, target)
}

// Search returns up to n ranked hits for query.
func (y *YtDlp) Search(ctx context.Context, query string, n int) ([]*common.MediaInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" || n < 1 {
		return nil, ErrNoResults
	}
	res, err := y.command().
		FlatPlaylist().
		Print(searchTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", n)).
		Run(ctx, y.args(fmt.Sprintf("ytsearch%d:%s", n, query))...)
	if err != nil {
		return nil, fmt.Errorf("ytdlp search: %w", err)
	}
	hits := parseSearchOutput(res.Stdout)
	if len(hits) == 0 {
		return nil, ErrNoResults
	}
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// Info fetches full metadata for a single video.
func (y *YtDlp) Info(ctx context.Context, link string) (*common.MediaInfo, error) {
	res, err := y.command().
		NoPlaylist().
		Print(infoTemplate).
		Run(ctx, y.args(link)...)
	if err != nil {
		return nil, fmt.Errorf("ytdlp info: %w", err)
	}
	info := parseInfoOutput(res.Stdout)
	if info == nil {
		return nil, ErrIncompleteInfo
	}
	return info, nil
}

// DirectURL resolves the direct media locator of the best audio format.
func (y *YtDlp) DirectURL(ctx context.Context, link string) (string, error) {
	res, err := y.command().
		NoPlaylist().
		Format("bestaudio/best").
		Print("urls").
		Run(ctx, y.args(link)...)
	if err != nil {
		return "", fmt.Errorf("ytdlp url: %w", err)
	}
	locator := firstLine(res.Stdout)
	if locator == "" {
		return "", fmt.Errorf("ytdlp url: %w", ErrNoAudioFormat)
	}
	return locator, nil
}

// PipeCommand builds a yt-dlp process that writes the best audio format of
// link to its stdout. The caller starts it.
func (y *YtDlp) PipeCommand(ctx context.Context, link string) *exec.Cmd {
	return y.command().
		Format("bestaudio").
		Output("-").
		NoPlaylist().
		NoPart().
		NoSimulate().
		BuildCommand(ctx, y.args(link)...)
}

// OpenPipe starts PipeCommand. Closing the reader kills yt-dlp.
func (y *YtDlp) OpenPipe(ctx context.Context, link string) (*pipeline.ProcessReader, error) {
	cmd := y.PipeCommand(ctx, link)
	stdout, err := pipeline.StartPiped(cmd, y.logger, "yt-dlp")
	if err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}
	return pipeline.NewProcessReader(stdout, []*exec.Cmd{cmd}), nil
}

func parseSearchOutput(stdout string) []*common.MediaInfo {
	var hits []*common.MediaInfo
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 4 || parts[0] == "" {
			continue
		}
		link := parts[0]
		id := common.ExtractYouTubeVideoID(link)
		if id == "" {
			continue
		}
		hits = append(hits, &common.MediaInfo{
			ID:         id,
			Title:      parts[1],
			URL:        link,
			WebpageURL: common.YouTubeWatchURL(id),
			Thumbnail:  common.GetYouTubeThumbnailURL(id),
			Author:     field(parts[2]),
			Duration:   parseSeconds(parts[3]),
			Source:     "ytdlp",
		})
	}
	return hits
}

func parseInfoOutput(stdout string) *common.MediaInfo {
	parts := strings.Split(firstLine(stdout), "\t")
	if len(parts) < 6 || field(parts[1]) == "" {
		return nil
	}
	return &common.MediaInfo{
		ID:         field(parts[0]),
		Title:      parts[1],
		URL:        field(parts[4]),
		WebpageURL: field(parts[4]),
		Thumbnail:  field(parts[5]),
		Author:     field(parts[2]),
		Duration:   parseSeconds(parts[3]),
		Source:     "ytdlp",
	}
}

// field maps yt-dlp's placeholder for missing values to "".
func field(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

func parseSeconds(s string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
