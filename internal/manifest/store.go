package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Store reads and writes manifest documents by location (path or URL).
type Store interface {
	Read(ctx context.Context, location string) ([]byte, error)
	Write(ctx context.Context, location string, data []byte) error
}

// FileStore serves plain paths and file:// URLs from the local disk.
type FileStore struct{}

func localPath(location string) string {
	if u, err := url.Parse(location); err == nil && strings.EqualFold(u.Scheme, "file") {
		return filepath.FromSlash(u.Path)
	}
	return location
}

func (FileStore) Read(_ context.Context, location string) ([]byte, error) {
	return os.ReadFile(localPath(location))
}

func (FileStore) Write(_ context.Context, location string, data []byte) error {
	path := localPath(location)
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("file written")
	return nil
}

// HTTPStore reads documents over http(s) and writes them with the ADLS Gen2
// create/append/flush sequence. Token, when set, is sent as a bearer token;
// SAS tokens can be carried in the location's query string instead.
type HTTPStore struct {
	Client *http.Client
	Token  string
}

func (s HTTPStore) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s HTTPStore) do(ctx context.Context, method, location string, query url.Values, body []byte) (*http.Response, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q[k] = v
		}
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-ms-version", "2021-08-06")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return s.client().Do(req)
}

func (s HTTPStore) Read(ctx context.Context, location string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, location, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("GET %s: %w", location, fs.ErrNotExist)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("GET %s: unexpected status %s", location, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s HTTPStore) Write(ctx context.Context, location string, data []byte) error {
	steps := []struct {
		method string
		query  url.Values
		body   []byte
	}{
		{http.MethodPut, url.Values{"resource": {"file"}}, nil},
		{http.MethodPatch, url.Values{"action": {"append"}, "position": {"0"}}, data},
		{http.MethodPatch, url.Values{"action": {"flush"}, "position": {fmt.Sprint(len(data))}}, nil},
	}
	for _, st := range steps {
		resp, err := s.do(ctx, st.method, location, st.query, st.body)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("%s %s (%s): unexpected status %s", st.method, location, st.query.Encode(), resp.Status)
		}
	}
	log.Debug().Str("url", location).Int("bytes", len(data)).Msg("document uploaded")
	return nil
}

// MuxStore sends http(s) locations to Remote and everything else to Local.
type MuxStore struct {
	Local  Store
	Remote Store
}

// NewStore returns the default store: local disk plus http(s) with an optional bearer token.
func NewStore(token string) MuxStore {
	return MuxStore{Local: FileStore{}, Remote: HTTPStore{Token: token}}
}

func (m MuxStore) pick(location string) (Store, error) {
	u, err := url.Parse(location)
	if err == nil && (strings.EqualFold(u.Scheme, "http") || strings.EqualFold(u.Scheme, "https")) {
		if m.Remote == nil {
			return nil, errors.New("no remote store configured")
		}
		return m.Remote, nil
	}
	if m.Local == nil {
		return nil, errors.New("no local store configured")
	}
	return m.Local, nil
}

func (m MuxStore) Read(ctx context.Context, location string) ([]byte, error) {
	s, err := m.pick(location)
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, location)
}

func (m MuxStore) Write(ctx context.Context, location string, data []byte) error {
	s, err := m.pick(location)
	if err != nil {
		return err
	}
	return s.Write(ctx, location, data)
}
