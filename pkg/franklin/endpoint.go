package franklin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raterudder/franklinwh/pkg/common"
	"github.com/raterudder/franklinwh/pkg/log"
)

// DefaultBaseURL is the FranklinWH cloud API.
const DefaultBaseURL = "https://energy.franklinwh.com"

const (
	loginPath         = "hes-gateway/terminal/initialize/appUserOrInstallerLogin"
	sendMqttPath      = "hes-gateway/terminal/sendMqtt"
	updateTouModePath = "hes-gateway/terminal/tou/updateTouMode"
	gatewayListPath   = "hes-gateway/terminal/getHomeGatewayList"

	tokenHeader = "loginToken"
)

// Response is the outer envelope returned by every FranklinWH endpoint.
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
}

// Option configures a TokenFetcher or Client.
type Option func(*endpoint)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(e *endpoint) {
		e.baseURL = baseURL
	}
}

// WithHTTPClient replaces the HTTP client. Its timeout bounds every call.
func WithHTTPClient(c *http.Client) Option {
	return func(e *endpoint) {
		e.client = common.WrapClient(c)
	}
}

type endpoint struct {
	client  *http.Client
	baseURL string
}

func newEndpoint(opts []Option) endpoint {
	e := endpoint{
		client:  common.HTTPClient(time.Minute),
		baseURL: DefaultBaseURL,
	}
	for _, o := range opts {
		o(&e)
	}
	return e
}

func (e *endpoint) url(path string, params url.Values) (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", err
	}
	u.Path, err = url.JoinPath(u.Path, path)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String(), nil
}

func (e *endpoint) newPostFormRequest(ctx context.Context, path string, data url.Values) (*http.Request, error) {
	u, err := e.url(path, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// newPostJSONRequest sends body as-is. The caller owns the encoding because
// command envelopes must not be re-serialized.
func (e *endpoint) newPostJSONRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	u, err := e.url(path, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (e *endpoint) newGetRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	u, err := e.url(path, params)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, "GET", u, nil)
}

// do performs a single round trip and decodes the outer envelope. An HTTP 401
// is folded into a Response with code 401 so the caller sees one signal for an
// expired session regardless of where the server put it.
func (e *endpoint) do(req *http.Request) (Response, error) {
	ctx := req.Context()
	resp, err := e.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return Response{Code: codeUnauthorized, Message: http.StatusText(resp.StatusCode)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "franklin http error", slog.Int("status", resp.StatusCode), slog.String("path", req.URL.Path))
		return Response{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var fr Response
	if err := json.Unmarshal(body, &fr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to decode franklin response", slog.Any("error", err), slog.String("body", string(body)))
		return Response{}, fmt.Errorf("failed to decode franklin response: %w", err)
	}
	return fr, nil
}
