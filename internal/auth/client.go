// Package auth implements the OAuth2 JWT-bearer grant for the backend's
// service identity: build a short-lived signed assertion from the held
// private key, exchange it at the token endpoint for a bearer token. The
// token lives in memory for one invocation and is never cached or persisted.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/equisheet/scoresheet-tracker/internal/common"
	"github.com/equisheet/scoresheet-tracker/internal/trace"
)

const (
	grantType         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime = time.Hour
)

type Client struct {
	identity Identity
	scope    string
	http     *http.Client
	logger   *slog.Logger
}

func NewClient(identity Identity, scope string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{identity: identity, scope: scope, http: httpClient, logger: logger}
}

// assertionClaims is the claim set of the signed assertion: issuer is the
// identity email, audience is the token endpoint itself.
type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// newAssertion builds the unsigned header+claims pair.
func newAssertion(id Identity, scope string, now time.Time) *jwt.Token {
	return jwt.NewWithClaims(jwt.SigningMethodRS256, assertionClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    id.ClientEmail,
			Audience:  jwt.ClaimStrings{id.TokenURI},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
	})
}

// signAssertion produces the complete compact assertion: RSA-SHA256 over the
// base64url-joined header and claims, signature appended.
func signAssertion(tok *jwt.Token, privateKeyPEM []byte) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// Token performs a full assertion build + sign + exchange and returns the
// bearer token. Every invocation exchanges fresh; there is no cache.
func (c *Client) Token(ctx context.Context, tr *trace.Trace) (string, error) {
	now := time.Now()
	tr.Info("auth.assertion.build", "issuer", c.identity.ClientEmail, "scope", c.scope)

	assertion, err := signAssertion(newAssertion(c.identity, c.scope, now), []byte(c.identity.PrivateKey))
	if err != nil {
		tr.Error("auth.assertion.sign_failed", "error", err.Error())
		return "", common.NewAppError("AUTH_ERROR", "signing assertion", fmt.Errorf("%w: %w", common.ErrAuth, err))
	}

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.identity.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", common.NewAppError("AUTH_ERROR", "building token request", fmt.Errorf("%w: %w", common.ErrAuth, err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		tr.Error("auth.exchange.send_failed", "error", err.Error())
		return "", common.NewAppError("AUTH_ERROR", "token exchange request", fmt.Errorf("%w: %w", common.ErrAuth, err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("auth.exchange.body_close_error", "error", cerr)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		tr.Error("auth.exchange.non_2xx", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
		return "", common.NewAppError("AUTH_ERROR",
			fmt.Sprintf("token endpoint status %d", resp.StatusCode), common.ErrAuth)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		tr.Error("auth.exchange.decode_failed", "error", err.Error())
		return "", common.NewAppError("AUTH_ERROR", "decoding token response", fmt.Errorf("%w: %w", common.ErrAuth, err))
	}
	if body.AccessToken == "" {
		tr.Error("auth.exchange.no_token")
		return "", common.NewAppError("AUTH_ERROR", "token response missing access_token", common.ErrAuth)
	}

	tr.Success("auth.token.ok", "expires_in", body.ExpiresIn, "exchange_ms", time.Since(start).Milliseconds())
	return body.AccessToken, nil
}
