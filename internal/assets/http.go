package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HTTPStore fetches resources from a remote asset server.
// A resource id maps to GET {baseURL}/{id}{ext}. Downloads are cached in
// memory so rewinding a loop body never touches the network.
type HTTPStore struct {
	baseURL string
	apiKey  string
	ext     string
	http    *http.Client
	log     zerolog.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

// NewHTTPStore creates a remote asset store client.
func NewHTTPStore(baseURL, apiKey, ext string, log zerolog.Logger) *HTTPStore {
	if ext == "" {
		ext = ".ogg"
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		ext:     ext,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
		cache:   make(map[string][]byte),
	}
}

// WaitForHealthy blocks until the asset server answers its health check.
func (s *HTTPStore) WaitForHealthy(ctx context.Context, interval time.Duration) error {
	s.log.Info().Str("url", s.baseURL).Msg("waiting for asset server")
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("create health request: %w", err)
		}
		resp, err := s.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				s.log.Info().Msg("asset server is healthy")
				return nil
			}
		}

		s.log.Debug().Err(err).Dur("retry_in", interval).Msg("asset server not ready")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Open downloads (or returns the cached copy of) a resource.
func (s *HTTPStore) Open(id string) (io.ReadCloser, error) {
	return s.OpenContext(context.Background(), id)
}

// OpenContext is Open with a caller-controlled context.
func (s *HTTPStore) OpenContext(ctx context.Context, id string) (io.ReadCloser, error) {
	name, err := resourceName(id, s.ext)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, ok := s.cache[name]
	s.mu.Unlock()
	if ok {
		return NewReader(data), nil
	}

	data, err = s.download(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = data
	s.mu.Unlock()
	return NewReader(data), nil
}

// Forget drops a cached resource so the next Open downloads it again.
func (s *HTTPStore) Forget(id string) {
	name, err := resourceName(id, s.ext)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.cache, name)
	s.mu.Unlock()
}

func (s *HTTPStore) download(ctx context.Context, name string) ([]byte, error) {
	u := s.baseURL + "/" + (&url.URL{Path: name}).EscapedPath()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download %s: unexpected status %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	s.log.Debug().Str("resource", name).Int("bytes", len(data)).Msg("downloaded resource")
	return data, nil
}
