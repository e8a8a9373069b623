package franklin

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/raterudder/franklinwh/pkg/log"
)

// Authenticator exchanges stored credentials for a session token. Every call
// performs a fresh login.
type Authenticator interface {
	Login(ctx context.Context) (string, error)
}

// TokenFetcher logs into the FranklinWH cloud with a username and password.
type TokenFetcher struct {
	endpoint
	username    string
	md5Password string
}

var _ Authenticator = (*TokenFetcher)(nil)

// NewTokenFetcher hashes password immediately; the plain text isn't retained.
func NewTokenFetcher(username, password string, opts ...Option) *TokenFetcher {
	hash := md5.Sum([]byte(password))
	return &TokenFetcher{
		endpoint:    newEndpoint(opts),
		username:    username,
		md5Password: hex.EncodeToString(hash[:]),
	}
}

type loginResult struct {
	UserID  int    `json:"userId"`
	Token   string `json:"token"`
	Version string `json:"version"`
}

// Login implements Authenticator.
func (t *TokenFetcher) Login(ctx context.Context) (string, error) {
	if t.username == "" {
		return "", errors.New("missing username")
	}

	data := url.Values{}
	data.Set("account", t.username)
	data.Set("password", t.md5Password)
	data.Set("lang", "en_US")
	data.Set("type", "1")

	req, err := t.newPostFormRequest(ctx, loginPath, data)
	if err != nil {
		return "", err
	}

	fr, err := t.do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "franklin login failed", slog.Any("error", err))
		return "", fmt.Errorf("login failed: %w", err)
	}

	switch fr.Code {
	case codeUnauthorized:
		log.Ctx(ctx).WarnContext(ctx, "franklin login rejected", slog.String("message", fr.Message))
		return "", fmt.Errorf("%w: %s", ErrInvalidCredentials, fr.Message)
	case codeBadRequest:
		log.Ctx(ctx).WarnContext(ctx, "franklin account locked", slog.String("message", fr.Message))
		return "", fmt.Errorf("%w: %s", ErrAccountLocked, fr.Message)
	}
	if err := checkCode(fr); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "franklin login returned unexpected code", slog.Int("code", fr.Code), slog.String("message", fr.Message))
		return "", err
	}

	var res loginResult
	if len(fr.Result) > 0 {
		if err := json.Unmarshal(fr.Result, &res); err != nil {
			return "", fmt.Errorf("failed to decode login result: %w", err)
		}
	}
	if res.Token == "" {
		log.Ctx(ctx).ErrorContext(ctx, "franklin login returned no token", slog.Int("code", fr.Code), slog.String("message", fr.Message))
		return "", errors.New("login response missing token")
	}
	log.Ctx(ctx).DebugContext(ctx, "franklin login success", slog.String("username", t.username))
	return res.Token, nil
}
