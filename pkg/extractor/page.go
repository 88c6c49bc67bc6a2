package extractor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

const pageUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// PageMeta reads Open Graph and microdata tags from the watch page itself.
// It is the last resort when neither innertube nor yt-dlp answer.
type PageMeta struct {
	client *http.Client
	cookie string
	logger pipeline.Logger
}

func NewPageMeta(cookie string, logger pipeline.Logger) *PageMeta {
	return &PageMeta{
		client: &http.Client{Timeout: 10 * time.Second},
		cookie: cookie,
		logger: logger.With(pipeline.String("provider", "page")),
	}
}

func (p *PageMeta) Name() string { return "page" }

func (p *PageMeta) Info(ctx context.Context, link string) (*common.MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", pageUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if p.cookie != "" {
		req.Header.Set("Cookie", p.cookie)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page fetch: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page parse: %w", err)
	}
	info := parsePageMeta(doc, link)
	if info.Title == "" {
		return nil, ErrIncompleteInfo
	}
	p.logger.Debug("Parsed page metadata", pipeline.String("url", link), pipeline.String("title", info.Title))
	return info, nil
}

func parsePageMeta(doc *goquery.Document, link string) *common.MediaInfo {
	meta := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}

	title := meta(`meta[property="og:title"]`)
	if title == "" {
		title = meta(`meta[name="title"]`)
	}
	if title == "" {
		title = strings.TrimSpace(strings.TrimSuffix(doc.Find("title").First().Text(), "- YouTube"))
	}

	canonical, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if canonical == "" {
		canonical = meta(`meta[property="og:url"]`)
	}
	if canonical == "" {
		canonical = link
	}

	id := meta(`meta[itemprop="videoId"]`)
	if id == "" {
		id = meta(`meta[itemprop="identifier"]`)
	}
	if id == "" {
		id = common.ExtractYouTubeVideoID(canonical)
	}

	author, _ := doc.Find(`span[itemprop="author"] link[itemprop="name"]`).First().Attr("content")

	return &common.MediaInfo{
		ID:         id,
		Title:      title,
		URL:        canonical,
		WebpageURL: canonical,
		Thumbnail:  meta(`meta[property="og:image"]`),
		Author:     strings.TrimSpace(author),
		Source:     "page",
	}
}
