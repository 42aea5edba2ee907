package verdict

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/tidwall/gjson"

	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/types"
)

const maxBodySize = 1 << 20

var (
	once       sync.Once
	httpClient *http.Client
)

func defaultClient() *http.Client {
	once.Do(func() {
		transport := new(http.Transport)
		transport.MaxIdleConns = 100
		transport.MaxIdleConnsPerHost = 20
		transport.IdleConnTimeout = 90 * time.Second
		transport.MaxConnsPerHost = 50

		httpClient = new(http.Client)
		httpClient.Timeout = 10 * time.Second
		httpClient.Transport = transport
	})

	return httpClient
}

// HTTP asks a flight status API. The URL template may use {airline},
// {flight} and {timestamp}; Path is a gjson path to the status field, whose
// value is either a verdict name or its numeric code.
type HTTP struct {
	URL    string
	Path   string
	Client *http.Client
}

func NewHTTP(urlTemplate, path string) (*HTTP, error) {
	if urlTemplate == "" || path == "" {
		return nil, errorsmod.Wrap(types.ErrVerdictSource, "url and path are required")
	}
	if _, err := url.Parse(urlTemplate); err != nil {
		return nil, errorsmod.Wrapf(types.ErrVerdictSource, "invalid url: %v", err)
	}

	return &HTTP{URL: urlTemplate, Path: path}, nil
}

func (h *HTTP) Verdict(ctx context.Context, _ types.OracleIdentity, event types.QueryEvent) (types.StatusVerdict, error) {
	target := h.expand(event)

	body, err := h.fetch(ctx, target)
	if err != nil {
		return types.Unknown, errorsmod.Wrap(types.ErrVerdictSource, err.Error())
	}

	raw, err := extract(body, h.Path)
	if err != nil {
		return types.Unknown, errorsmod.Wrap(types.ErrVerdictSource, err.Error())
	}

	verdict, err := types.ParseVerdict(raw)
	if err != nil {
		return types.Unknown, err
	}
	log.Debugf("verdict for %s from %s: %s", event.Flight, target, verdict)

	return verdict, nil
}

func (h *HTTP) expand(event types.QueryEvent) string {
	ts := "0"
	if event.Timestamp != nil {
		ts = event.Timestamp.String()
	}

	return strings.NewReplacer(
		"{airline}", url.PathEscape(event.Airline.Hex()),
		"{flight}", url.PathEscape(event.Flight),
		"{timestamp}", ts,
	).Replace(h.URL)
}

func (h *HTTP) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "FlightSurety-Oracle/1.0")
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = defaultClient()
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", res.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}

// extract reads path from a JSON object, or from the first element when the
// response is an array of objects.
func extract(body []byte, path string) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	if root.IsArray() {
		first := root.Get("0")
		if !first.IsObject() {
			return "", fmt.Errorf("first array element is not an object")
		}
		root = first
	}

	value := root.Get(path)
	if !value.Exists() {
		return "", fmt.Errorf("path %q not found", path)
	}

	return value.String(), nil
}
