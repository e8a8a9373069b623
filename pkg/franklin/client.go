package franklin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/raterudder/franklinwh/pkg/log"
)

// Client is an authenticated session against one FranklinWH gateway.
//
// The token, gateway id and sequence counter are guarded by mu. Every exported
// method holds mu for its whole duration, so a read-modify-write such as
// SetSwitchState and the re-login on an expired token can't interleave with
// another caller.
type Client struct {
	endpoint

	mu        sync.Mutex
	auth      Authenticator
	gatewayID string
	tokenStr  string
	snno      uint64

	now func() time.Time
}

// New creates a Client and logs in once. If gatewayID is empty the account
// must have exactly one gateway, which is then used.
func New(ctx context.Context, auth Authenticator, gatewayID string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:  newEndpoint(opts),
		auth:      auth,
		gatewayID: gatewayID,
		now:       time.Now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshToken(ctx); err != nil {
		return nil, err
	}

	if c.gatewayID == "" {
		id, err := c.getDefaultGatewayID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get default gateway id: %w", err)
		}
		log.Ctx(ctx).InfoContext(ctx, "automatically selected gateway", slog.String("gatewayID", id))
		c.gatewayID = id
	}
	return c, nil
}

// GatewayID returns the gateway this client controls.
func (c *Client) GatewayID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gatewayID
}

// refreshToken must be called with c.mu held.
func (c *Client) refreshToken(ctx context.Context) error {
	token, err := c.auth.Login(ctx)
	if err != nil {
		return err
	}
	c.tokenStr = token
	return nil
}

// nextSnno must be called with c.mu held. The first envelope carries 1.
func (c *Client) nextSnno() uint64 {
	c.snno++
	return c.snno
}

// call runs newReq with the current token attached. If the response says the
// session is no longer valid it logs in again and repeats the request once.
// newReq is invoked per attempt so each attempt gets a fresh envelope and
// sequence number. A second 401 is returned to the caller as-is. Must be
// called with c.mu held.
func (c *Client) call(ctx context.Context, newReq func() (*http.Request, error)) (Response, error) {
	var fr Response
	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		req, err := newReq()
		if err != nil {
			return Response{}, err
		}
		req.Header.Set(tokenHeader, c.tokenStr)

		fr, err = c.do(req)
		if err != nil {
			return Response{}, err
		}
		if fr.Code != codeUnauthorized || i > 0 {
			return fr, nil
		}

		log.Ctx(ctx).DebugContext(ctx, "franklin token expired", slog.String("message", fr.Message))
		if err := c.refreshToken(ctx); err != nil {
			return Response{}, fmt.Errorf("failed to refresh token: %w", err)
		}
	}
	return fr, nil
}

type homeGateway struct {
	ID       string `json:"id"`
	Status   int    `json:"status"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	ZoneInfo string `json:"zoneInfo"`
}

func (c *Client) getDefaultGatewayID(ctx context.Context) (string, error) {
	fr, err := c.call(ctx, func() (*http.Request, error) {
		return c.newGetRequest(ctx, gatewayListPath, nil)
	})
	if err != nil {
		return "", err
	}
	if err := checkCode(fr); err != nil {
		return "", err
	}

	var list []homeGateway
	if err := json.Unmarshal(fr.Result, &list); err != nil {
		return "", fmt.Errorf("failed to decode gateway list: %w", err)
	}
	if len(list) == 1 {
		if list[0].ID == "" {
			return "", errors.New("gateway list entry has no id")
		}
		return list[0].ID, nil
	}
	return "", fmt.Errorf("found %d gateways, expected 1", len(list))
}
