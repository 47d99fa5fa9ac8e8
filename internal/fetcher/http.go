package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/version"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Options parameterise an HTTP rate source.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type httpSource struct {
	url       string
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

func newHTTPSource(opts Options, defaultURL, component string, logger zerolog.Logger) httpSource {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	url := strings.TrimSpace(opts.BaseURL)
	if url == "" {
		url = defaultURL
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = version.UserAgent()
	}

	return httpSource{
		url:       url,
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", component).Logger(),
	}
}

// getJSON performs a GET and decodes a successful JSON body into out.
func (s httpSource) getJSON(ctx context.Context, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

type errorResponse struct {
	ErrorDescription string `json:"errorDescription"`
	Message          string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.ErrorDescription != "" {
			return fmt.Errorf("provider error (%d): %s", status, apiErr.ErrorDescription)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("provider error (%d): %s", status, apiErr.Message)
		}
	}
	if body := strings.TrimSpace(string(payload)); body != "" {
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Errorf("provider error (%d): %s", status, body)
	}
	return fmt.Errorf("provider error (%d)", status)
}

// normalize rounds a provider value to kopecks and rejects non-positive values.
func normalize(v decimal.Decimal) (decimal.Decimal, bool) {
	v = v.Round(2)
	if !v.IsPositive() {
		return decimal.Decimal{}, false
	}
	return v, true
}
