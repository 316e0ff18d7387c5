package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"series-observer/src/helpers"
	"series-observer/src/logger"
	"series-observer/src/models"
)

const (
	defaultUserAgent = "series-observer/1.0"
	maxBodyBytes     = 256 << 20
)

type AsyncNetworkManager struct {
	Config    *models.MConfig
	Client    *http.Client
	Logger    *logger.Logger
	BaseDelay time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) (*AsyncNetworkManager, error) {
	nm := &AsyncNetworkManager{
		Config:    cfg,
		Logger:    log,
		BaseDelay: time.Second,
	}
	client, err := nm.createClient()
	if err != nil {
		return nil, err
	}
	nm.Client = client
	return nm, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxy := nm.Config.Network.Proxy; proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, helpers.NewConfigurationError("invalid proxy %q: %v", proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(nm.Config.Network.RequestTimeout) * time.Second,
	}, nil
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries and exponential backoff. Client
// errors other than 408 and 429 are not retried.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, helpers.NewConfigurationError("invalid url %q: %v", urlStr, err)
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	return helpers.RetryWithBackoff(ctx, nm.Logger, "GET "+reqURL.Host, nm.Config.Network.MaxRetries+1, nm.BaseDelay, func() ([]byte, error) {
		return nm.fetch(ctx, finalURL)
	})
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) fetch(ctx context.Context, finalURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, helpers.NewConfigurationError("build request: %v", err)
	}

	userAgent := nm.Config.Network.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, helpers.WrapNetworkError("request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, helpers.NewNotFoundError("%s returned 404", finalURL)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout:
		return nil, helpers.WrapNetworkError("request", fmt.Errorf("blocked (status %d)", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, helpers.NewConfigurationError("%s rejected the request (status %d)", finalURL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, helpers.WrapNetworkError("request", fmt.Errorf("bad status: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, helpers.WrapNetworkError("read body", err)
	}
	return body, nil
}
