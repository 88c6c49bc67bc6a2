package common

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// NormalizeURL adds an https scheme to links typed without one, such as
// youtu.be/ID or www.example.com/a.mp3.
func NormalizeURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.Contains(link, "://") {
		return link
	}
	return "https://" + link
}

func parseLink(link string) (*url.URL, error) {
	return url.Parse(NormalizeURL(link))
}

// IsYouTubeURL checks if a URL appears to be from YouTube
func IsYouTubeURL(urlStr string) bool {
	u, err := parseLink(urlStr)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be", "youtube-nocookie.com":
		return true
	}
	return false
}

// ExtractYouTubeVideoID extracts the video ID from a YouTube URL
func ExtractYouTubeVideoID(youtubeURL string) string {
	youtubeURL = strings.TrimSpace(youtubeURL)
	if videoIDPattern.MatchString(youtubeURL) {
		return youtubeURL
	}
	if !IsYouTubeURL(youtubeURL) {
		return ""
	}
	parsedURL, err := parseLink(youtubeURL)
	if err != nil {
		return ""
	}

	var candidate string
	switch {
	case strings.EqualFold(strings.TrimPrefix(parsedURL.Hostname(), "www."), "youtu.be"):
		candidate = strings.Trim(parsedURL.Path, "/")
	case parsedURL.Query().Get("v") != "":
		candidate = parsedURL.Query().Get("v")
	default:
		// /embed/ID, /shorts/ID, /live/ID, /v/ID
		parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "embed", "shorts", "live", "v":
				candidate = parts[1]
			}
		}
	}

	if videoIDPattern.MatchString(candidate) {
		return candidate
	}
	return ""
}

// ExtractYouTubePlaylistID returns the list= parameter of a YouTube URL.
func ExtractYouTubePlaylistID(youtubeURL string) string {
	if !IsYouTubeURL(youtubeURL) {
		return ""
	}
	parsedURL, err := parseLink(youtubeURL)
	if err != nil {
		return ""
	}
	return parsedURL.Query().Get("list")
}

// IsYouTubePlaylistURL reports whether the URL names a playlist rather than a
// video inside one. watch?v=X&list=Y plays X alone.
func IsYouTubePlaylistURL(youtubeURL string) bool {
	if ExtractYouTubePlaylistID(youtubeURL) == "" {
		return false
	}
	parsedURL, err := parseLink(youtubeURL)
	if err != nil {
		return false
	}
	if strings.Trim(parsedURL.Path, "/") == "playlist" {
		return true
	}
	return ExtractYouTubeVideoID(youtubeURL) == ""
}

// YouTubeWatchURL builds the canonical watch URL for a video ID.
func YouTubeWatchURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + videoID
}

// GetYouTubeThumbnailURL generates a thumbnail URL from a video ID
func GetYouTubeThumbnailURL(videoID string) string {
	if videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", videoID)
}

// IsURL checks if a string appears to be a URL
func IsURL(str string) bool {
	str = strings.TrimSpace(str)
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.") || IsYouTubeURL(str)
}

// SpotifyKind is the kind of catalogue object a Spotify link points to.
type SpotifyKind string

const (
	SpotifyTrack    SpotifyKind = "track"
	SpotifyPlaylist SpotifyKind = "playlist"
	SpotifyAlbum    SpotifyKind = "album"
)

// ParseSpotifyURL splits an open.spotify.com link into kind and ID.
func ParseSpotifyURL(link string) (SpotifyKind, string, bool) {
	u, err := parseLink(link)
	if err != nil || !strings.EqualFold(u.Hostname(), "open.spotify.com") {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// locale prefixed links look like /intl-de/track/ID
	if len(parts) == 3 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	switch kind := SpotifyKind(parts[0]); kind {
	case SpotifyTrack, SpotifyPlaylist, SpotifyAlbum:
		return kind, parts[1], true
	}
	return "", "", false
}
