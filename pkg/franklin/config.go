package franklin

import (
	"context"
	"errors"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/franklinwh/pkg/common"
)

// Config holds the flag-provided settings needed to open a Client.
type Config struct {
	Username  string
	Password  string
	GatewayID string
	BaseURL   string
	Timeout   time.Duration
}

// Configured registers the franklin flags. The returned Config is filled in
// once lflag.Configure runs.
func Configured() *Config {
	username := lflag.String("franklin-username", "", "FranklinWH account email")
	password := lflag.String("franklin-password", "", "FranklinWH account password")
	gatewayID := lflag.String("franklin-gateway-id", "", "FranklinWH gateway id (auto-discovered if the account has exactly one)")
	baseURL := lflag.String("franklin-base-url", DefaultBaseURL, "FranklinWH API base URL")
	timeout := lflag.Duration("franklin-timeout", 30*time.Second, "Timeout for each FranklinWH API call")

	c := &Config{}
	lflag.Do(func() {
		c.Username = *username
		c.Password = *password
		c.GatewayID = *gatewayID
		c.BaseURL = *baseURL
		c.Timeout = *timeout
	})
	return c
}

// Validate checks the required settings are present.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("franklin-username is required")
	}
	if c.Password == "" {
		return errors.New("franklin-password is required")
	}
	if c.Timeout <= 0 {
		return errors.New("franklin-timeout must be positive")
	}
	return nil
}

// Dial validates the config, logs in and returns a ready Client.
func (c *Config) Dial(ctx context.Context) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithHTTPClient(common.HTTPClient(c.Timeout)),
	}
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	auth := NewTokenFetcher(c.Username, c.Password, opts...)
	return New(ctx, auth, c.GatewayID, opts...)
}
