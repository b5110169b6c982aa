package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/steelcutops/railtube/railtube/filemanager"
)

const DefaultTimeout = 5 * time.Minute

// FetchError reports a network or HTTP failure. Status is zero when no
// response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether source names an http(s) location rather than a
// local path.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

type Fetcher struct {
	Client *http.Client
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}}
}

// Get opens url. Any non-2xx status is a FetchError. The caller closes the
// returned body.
func (f *Fetcher) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}
	return resp.Body, nil
}

// ReadSource returns the bytes behind a local path or an http(s) URL.
func (f *Fetcher) ReadSource(ctx context.Context, source string) ([]byte, error) {
	if !IsRemote(source) {
		return filemanager.ReadFile(source)
	}
	body, err := f.Get(ctx, source)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: source, Err: err}
	}
	return data, nil
}

// Download saves url to dst.
func (f *Fetcher) Download(ctx context.Context, url, dst string) error {
	body, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	return filemanager.WriteFile(dst, body)
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}
