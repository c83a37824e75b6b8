package oracle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/viant/handlegen/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBody = 4 << 20

// DefaultURLTemplate is the profile page probed for an identifier.
const DefaultURLTemplate = "https://www.instagram.com/%s/"

// DefaultNotFoundMarkers are body fragments of the "no such profile" page.
var DefaultNotFoundMarkers = []string{
	"Sorry, this page isn't available.",
	"page not found",
}

// DefaultUserAgents is the client identity pool, one picked per request.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.73 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.73 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; Pixel 7 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.73 Mobile Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/127.0.6533.73 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.4; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (Android 14; Mobile; rv:127.0) Gecko/127.0 Firefox/127.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.73 Safari/537.36 Edg/127.0.2651.61",
	"Mozilla/5.0 (Linux; Android 14; Pixel 7 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.73 Mobile Safari/537.36 EdgA/127.0.2651.61",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Config represents HTTP oracle configuration.
type Config struct {
	URLTemplate     string        `yaml:"url" json:"url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
	UserAgents      []string      `yaml:"userAgents" json:"userAgents"`
	Proxy           string        `yaml:"proxy" json:"proxy"`
	NotFoundMarkers []string      `yaml:"notFoundMarkers" json:"notFoundMarkers"`
}

// DefaultConfig returns the default HTTP oracle configuration.
func DefaultConfig() Config {
	return Config{
		URLTemplate:     DefaultURLTemplate,
		Timeout:         7 * time.Second,
		UserAgents:      DefaultUserAgents,
		NotFoundMarkers: DefaultNotFoundMarkers,
	}
}

// HTTP probes a profile URL.
type HTTP struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates an HTTP oracle. Empty config fields take defaults.
func NewHTTP(config Config, logger *slog.Logger) (*HTTP, error) {
	defaults := DefaultConfig()
	if config.URLTemplate == "" {
		config.URLTemplate = defaults.URLTemplate
	}
	if !strings.Contains(config.URLTemplate, "%s") {
		return nil, fmt.Errorf("probe url %q has no %%s placeholder", config.URLTemplate)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = defaults.UserAgents
	}
	if len(config.NotFoundMarkers) == 0 {
		config.NotFoundMarkers = defaults.NotFoundMarkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", config.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}
	return &HTTP{config: config, client: client, logger: logger}, nil
}

// Probe issues one GET for id with a random user agent.
func (h *HTTP) Probe(ctx context.Context, id string) (result Result, err error) {
	ctx, span := tracing.Start(ctx, "oracle.probe", tracing.Client, tracing.AttrIdentifier.String(id))
	defer func() {
		span.SetAttributes(tracing.AttrStatus.String(result.Status.String()))
		span.End(err)
	}()

	target := fmt.Sprintf(h.config.URLTemplate, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Status: Transient, Info: err.Error()}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", h.config.UserAgents[rand.IntN(len(h.config.UserAgents))])

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{Status: Transient, Info: err.Error()}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	span.RecordHTTP(resp.StatusCode)

	var body []byte
	if resp.StatusCode == http.StatusOK {
		if body, err = io.ReadAll(io.LimitReader(resp.Body, maxBody)); err != nil {
			return Result{Status: Transient, Info: err.Error()}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	result = Classify(resp.StatusCode, body, h.config.NotFoundMarkers)
	if result.Info == InfoAmbiguous {
		h.logger.Debug("ambiguous probe response classified as taken", "identifier", id)
	}
	return result, nil
}

// Classification diagnostics.
const (
	InfoNotFound     = "404"
	InfoNotFoundBody = "not_found_in_html"
	InfoAmbiguous    = "200_with_content"
)

// Classify maps a response to a result. A 404 or a 200 whose body carries a
// not-found marker (case-insensitive) is available. Any other 200 is taken:
// a captcha or rate-limit page also lands here, so ambiguity never reads as
// available. Every other status is taken with the code as info.
func Classify(code int, body []byte, markers []string) Result {
	switch code {
	case http.StatusNotFound:
		return Result{Status: Available, Info: InfoNotFound}
	case http.StatusOK:
		lower := bytes.ToLower(body)
		for _, marker := range markers {
			if marker != "" && bytes.Contains(lower, bytes.ToLower([]byte(marker))) {
				return Result{Status: Available, Info: InfoNotFoundBody}
			}
		}
		return Result{Status: Taken, Info: InfoAmbiguous}
	default:
		return Result{Status: Taken, Info: strconv.Itoa(code)}
	}
}
