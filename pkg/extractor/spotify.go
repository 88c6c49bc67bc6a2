package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/zmb3/spotify"
	"golang.org/x/oauth2/clientcredentials"
)

const spotifyPageSize = 100

var ErrSpotifyDisabled = errors.New("spotify credentials not configured")

// spotifyAPI is the part of the catalogue client the provider needs.
type spotifyAPI interface {
	GetTrack(id spotify.ID) (*spotify.FullTrack, error)
	GetPlaylist(id spotify.ID) (*spotify.FullPlaylist, error)
	GetPlaylistTracksOpt(id spotify.ID, opt *spotify.Options, fields string) (*spotify.PlaylistTrackPage, error)
	GetAlbum(id spotify.ID) (*spotify.FullAlbum, error)
}

// Spotify looks up catalogue objects. Spotify audio is never streamed; tracks
// become search queries for the other providers.
type Spotify struct {
	creds  *clientcredentials.Config
	logger pipeline.Logger

	mu      sync.Mutex
	api     spotifyAPI
	expires time.Time
}

// NewSpotify returns nil when the credentials are empty.
func NewSpotify(clientID, clientSecret string, logger pipeline.Logger) *Spotify {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &Spotify{
		creds: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotify.TokenURL,
		},
		logger: logger.With(pipeline.String("provider", "spotify")),
	}
}

// client returns an API client, fetching a new token once the old one expired.
// Client credential tokens cannot be refreshed.
func (s *Spotify) client(ctx context.Context) (spotifyAPI, error) {
	if s == nil {
		return nil, ErrSpotifyDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.api != nil && (s.creds == nil || time.Now().Before(s.expires)) {
		return s.api, nil
	}
	token, err := s.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("spotify token: %w", err)
	}
	c := spotify.NewAuthenticator("").NewClient(token)
	s.api = &c
	s.expires = token.Expiry.Add(-time.Minute)
	s.logger.Debug("Fetched spotify token", pipeline.Duration("valid_for", time.Until(token.Expiry)))
	return s.api, nil
}

// Track returns the track as a search-ready MediaInfo.
func (s *Spotify) Track(ctx context.Context, id string) (*common.MediaInfo, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	track, err := api.GetTrack(spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify track: %w", err)
	}
	info := trackInfo(track.SimpleTrack)
	if len(track.Album.Images) > 0 {
		info.Thumbnail = track.Album.Images[0].URL
	}
	return info, nil
}

// Playlist enumerates up to max tracks of a playlist.
func (s *Spotify) Playlist(ctx context.Context, id string, max int) (*Playlist, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	pl, err := api.GetPlaylist(spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify playlist: %w", err)
	}

	out := &Playlist{ID: id, Title: pl.Name, Total: pl.Tracks.Total}
	page := &pl.Tracks
	for {
		for _, pt := range page.Tracks {
			if len(out.Entries) >= max {
				return out, nil
			}
			if pt.Track.ID == "" {
				// local files and removed tracks
				continue
			}
			out.Entries = append(out.Entries, trackInfo(pt.Track.SimpleTrack))
		}
		offset := page.Offset + len(page.Tracks)
		if page.Next == "" || len(page.Tracks) == 0 || offset >= page.Total {
			return out, nil
		}
		limit := spotifyPageSize
		next, err := api.GetPlaylistTracksOpt(spotify.ID(id), &spotify.Options{Limit: &limit, Offset: &offset}, "")
		if err != nil {
			return nil, fmt.Errorf("spotify playlist page: %w", err)
		}
		page = next
	}
}

// Album enumerates up to max tracks of an album's first page.
func (s *Spotify) Album(ctx context.Context, id string, max int) (*Playlist, error) {
	api, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	album, err := api.GetAlbum(spotify.ID(id))
	if err != nil {
		return nil, fmt.Errorf("spotify album: %w", err)
	}

	out := &Playlist{ID: id, Title: album.Name, Total: album.Tracks.Total}
	for _, track := range album.Tracks.Tracks {
		if len(out.Entries) >= max {
			break
		}
		info := trackInfo(track)
		if len(album.Images) > 0 {
			info.Thumbnail = album.Images[0].URL
		}
		out.Entries = append(out.Entries, info)
	}
	if out.Total < len(album.Tracks.Tracks) {
		out.Total = len(album.Tracks.Tracks)
	}
	return out, nil
}

func trackInfo(track spotify.SimpleTrack) *common.MediaInfo {
	artists := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		artists = append(artists, a.Name)
	}
	link := "https://open.spotify.com/track/" + string(track.ID)
	return &common.MediaInfo{
		ID:         string(track.ID),
		Title:      SearchQuery(track.Name, artists),
		URL:        link,
		WebpageURL: link,
		Author:     strings.Join(artists, ", "),
		Duration:   time.Duration(track.Duration) * time.Millisecond,
		Source:     "spotify",
	}
}

// SearchQuery is the free-text query used to find a catalogue track on the
// video site: "title artist".
func SearchQuery(title string, artists []string) string {
	q := strings.TrimSpace(title)
	if len(artists) > 0 && artists[0] != "" {
		q += " " + artists[0]
	}
	return q
}
