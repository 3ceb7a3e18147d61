package syndication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; feedsync/1.0)"
	maxBodySize      = 16 << 20
)

// FetchError reports a network, proxy or HTTP status failure for a URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Config holds HTTP fetcher configuration.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Fetcher downloads raw feed and page content, optionally through a proxy.
type Fetcher struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewFetcher(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Fetcher{
		cfg:     cfg,
		logger:  logger.With("component", "fetcher"),
		clients: make(map[string]*http.Client),
	}
}

// Fetch returns the body at rawURL. With more than one attempt configured,
// failures are retried with exponential backoff; 4xx responses are not.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, proxy *string) ([]byte, error) {
	client, err := f.client(proxy)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	var body []byte
	operation := func() error {
		var opErr error
		body, opErr = f.doRequest(ctx, client, rawURL)
		var fe *FetchError
		if errors.As(opErr, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
			return backoff.Permanent(opErr)
		}
		return opErr
	}

	err = backoff.RetryNotify(operation, f.policy(ctx), func(err error, wait time.Duration) {
		f.logger.Warn("request failed, retrying",
			"url", rawURL,
			"backoff", wait,
			"error", err,
		)
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	return body, nil
}

func (f *Fetcher) policy(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if f.cfg.InitialBackoff > 0 {
		b.InitialInterval = f.cfg.InitialBackoff
	}
	if f.cfg.MaxBackoff > 0 {
		b.MaxInterval = f.cfg.MaxBackoff
	}
	b.MaxElapsedTime = 0

	retries := uint64(f.cfg.MaxAttempts - 1)
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

func (f *Fetcher) doRequest(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(&FetchError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)})
	}

	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	return body, nil
}

// client returns one client per proxy so connections are reused across
// cycles. An unparseable proxy is a fetch failure, not a silent bypass.
func (f *Fetcher) client(proxy *string) (*http.Client, error) {
	key := ""
	if proxy != nil {
		key = *proxy
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c, nil
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if key != "" {
		proxyURL, err := url.Parse(key)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", key)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	c := &http.Client{
		Timeout:   f.cfg.Timeout,
		Transport: transport,
	}
	f.clients[key] = c
	return c, nil
}
