package common

import (
	"fmt"
	"sync"
	"time"
)

// MediaInfo is the set of facts an extractor knows about a single media item.
type MediaInfo struct {
	ID         string
	Title      string
	URL        string // primary playable page URL
	WebpageURL string // canonical page URL as reported by the extractor
	StreamURL  string // direct media locator, short lived
	Thumbnail  string
	Author     string
	Duration   time.Duration
	Source     string // provider that produced this info
}

// Playable reports whether the info carries the fields playback needs.
func (m *MediaInfo) Playable() bool {
	return m != nil && m.Title != "" && (m.URL != "" || m.WebpageURL != "" || m.ID != "")
}

// CanonicalURL returns the best page URL for display and re-resolution.
func (m *MediaInfo) CanonicalURL() string {
	switch {
	case m == nil:
		return ""
	case m.WebpageURL != "":
		return m.WebpageURL
	case m.URL != "":
		return m.URL
	case m.ID != "":
		return YouTubeWatchURL(m.ID)
	}
	return ""
}

// QueueItem represents a single entry in a guild's play queue.
//
// Everything except the metadata is fixed at creation. Metadata may be filled
// in once, lazily, right before the item is played.
type QueueItem struct {
	Title       string
	URL         string
	RequestedBy string
	AddedAt     time.Time

	mu       sync.RWMutex
	metadata *MediaInfo
}

// NewQueueItem creates an item. info may be nil for lazily resolved items.
func NewQueueItem(title, url, requestedBy string, info *MediaInfo) *QueueItem {
	return &QueueItem{
		Title:       title,
		URL:         url,
		RequestedBy: requestedBy,
		AddedAt:     time.Now(),
		metadata:    info,
	}
}

// Metadata returns the resolved media info, or nil if not resolved yet.
func (qi *QueueItem) Metadata() *MediaInfo {
	qi.mu.RLock()
	defer qi.mu.RUnlock()
	return qi.metadata
}

// SetMetadata stores info fetched after the item was queued.
func (qi *QueueItem) SetMetadata(info *MediaInfo) {
	qi.mu.Lock()
	defer qi.mu.Unlock()
	qi.metadata = info
}

// DisplayTitle prefers the resolved title over the one given at enqueue time.
func (qi *QueueItem) DisplayTitle() string {
	if info := qi.Metadata(); info != nil && info.Title != "" {
		return info.Title
	}
	if qi.Title != "" {
		return qi.Title
	}
	return "Unknown Title"
}

func (qi *QueueItem) String() string {
	return fmt.Sprintf("%s <%s>", qi.DisplayTitle(), qi.URL)
}

// FormatDuration renders a track length as m:ss or h:mm:ss.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
