package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"music-locker/internal/domain"
)

const (
	DefaultAPIURL   = "https://api.spotify.com/v1"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

var (
	// ErrBadReference means no track identifier could be extracted from the reference.
	ErrBadReference = errors.New("bad track reference")
	// ErrProviderFailure covers transport errors, non-2xx answers and unusable payloads.
	ErrProviderFailure = errors.New("metadata provider failure")
)

// Resolver turns an external track reference into canonical metadata.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (*domain.TrackMetadata, error)
}

type Config struct {
	ClientID     string
	ClientSecret string
	APIURL       string
	TokenURL     string
	// HTTPClient is used for both token and API calls when set.
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// SpotifyResolver looks tracks up through the Spotify Web API using client credentials.
type SpotifyResolver struct {
	client *http.Client
	apiURL string
	logger *logrus.Logger
}

func NewSpotifyResolver(cfg Config) (*SpotifyResolver, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("spotify client id and secret are required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	// the token source outlives any single request
	tokenCtx := context.Background()
	if cfg.HTTPClient != nil {
		tokenCtx = context.WithValue(tokenCtx, oauth2.HTTPClient, cfg.HTTPClient)
	}

	return &SpotifyResolver{
		client: cc.Client(tokenCtx),
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		logger: cfg.Logger,
	}, nil
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []spotifyArtist `json:"artists"`
	Album      spotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
}

func (r *SpotifyResolver) Resolve(ctx context.Context, reference string) (*domain.TrackMetadata, error) {
	id, err := TrackID(reference)
	if err != nil {
		return nil, err
	}
	logger := r.logger.WithField("track_id", id)

	var track spotifyTrack
	if err := r.doRequest(ctx, "/tracks/"+url.PathEscape(id), &track); err != nil {
		logger.Warnf("spotify lookup failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	meta, err := track.toMetadata()
	if err != nil {
		logger.Warnf("spotify payload rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return meta, nil
}

func (r *SpotifyResolver) doRequest(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.apiURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (t spotifyTrack) toMetadata() (*domain.TrackMetadata, error) {
	title := strings.TrimSpace(t.Name)
	if title == "" {
		return nil, errors.New("track has no name")
	}
	if len(t.Artists) == 0 || strings.TrimSpace(t.Artists[0].Name) == "" {
		return nil, errors.New("track has no artist")
	}
	if t.DurationMS < 0 {
		return nil, fmt.Errorf("negative duration %d", t.DurationMS)
	}

	meta := &domain.TrackMetadata{
		Title:           title,
		Artist:          strings.TrimSpace(t.Artists[0].Name),
		Album:           strings.TrimSpace(t.Album.Name),
		DurationSeconds: t.DurationMS / 1000,
	}
	if len(t.Album.Images) > 0 && t.Album.Images[0].URL != "" {
		cover := t.Album.Images[0].URL
		meta.CoverArtURL = &cover
	}
	return meta, nil
}

// TrackID extracts the track identifier from a share URL or a spotify:track: URI.
func TrackID(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", fmt.Errorf("%w: empty reference", ErrBadReference)
	}

	var id string
	if rest, ok := strings.CutPrefix(reference, "spotify:track:"); ok {
		id = rest
	} else {
		u, err := url.Parse(reference)
		if err != nil || u.Host == "" {
			return "", fmt.Errorf("%w: %q is not a url", ErrBadReference, reference)
		}
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		id = segments[len(segments)-1]
	}

	if id == "" || !isBase62(id) {
		return "", fmt.Errorf("%w: no track id in %q", ErrBadReference, reference)
	}
	return id, nil
}

func isBase62(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

var _ Resolver = (*SpotifyResolver)(nil)
