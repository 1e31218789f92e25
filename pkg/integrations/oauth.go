package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultExpiresIn = 3600 * time.Second
	expirySkew       = 60 * time.Second
)

// ErrTokenExpired is returned when an access token is stale and cannot be refreshed
var ErrTokenExpired = errors.New("oauth token expired")

var obtainedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// TokenExpired reports whether the OAuth credentials need a refresh at now.
// Missing or unparseable obtained_at counts as expired; expires_in defaults
// to one hour and a minute of skew is subtracted.
func TokenExpired(creds map[string]interface{}, now time.Time) bool {
	if len(creds) == 0 {
		return true
	}

	raw, _ := creds["obtained_at"].(string)
	if raw == "" {
		return true
	}

	var obtained time.Time
	var err error
	for _, layout := range obtainedAtLayouts {
		obtained, err = time.Parse(layout, raw)
		if err == nil {
			break
		}
	}
	if err != nil {
		return true
	}

	expiresIn := defaultExpiresIn
	switch v := creds["expires_in"].(type) {
	case float64:
		expiresIn = time.Duration(v) * time.Second
	case int:
		expiresIn = time.Duration(v) * time.Second
	case int64:
		expiresIn = time.Duration(v) * time.Second
	}

	return now.After(obtained.Add(expiresIn - expirySkew))
}

// TokenSource produces a fresh access token from stored credentials
type TokenSource interface {
	Token(ctx context.Context, creds map[string]interface{}) (*oauth2.Token, error)
}

// OAuthTokenSource refreshes tokens with the refresh_token grant
type OAuthTokenSource struct {
	config *oauth2.Config
}

// NewOAuthTokenSource creates a refreshing token source for one OAuth client
func NewOAuthTokenSource(clientID, clientSecret, tokenURL string) *OAuthTokenSource {
	return &OAuthTokenSource{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// Token exchanges the stored refresh token for a new access token
func (s *OAuthTokenSource) Token(ctx context.Context, creds map[string]interface{}) (*oauth2.Token, error) {
	refresh, _ := creds["refresh_token"].(string)
	if refresh == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrTokenExpired)
	}

	tok, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tok, nil
}

// BearerToken returns a valid access token for cfg. A stale token is
// refreshed through source and written back into cfg.Credentials.
func BearerToken(ctx context.Context, cfg *ServiceConfig, source TokenSource) (string, error) {
	now := time.Now().UTC()
	if !TokenExpired(cfg.Credentials, now) {
		if tok := cfg.Credential("access_token"); tok != "" {
			return tok, nil
		}
	}

	if source == nil {
		return "", ErrTokenExpired
	}

	tok, err := source.Token(ctx, cfg.Credentials)
	if err != nil {
		return "", err
	}

	if cfg.Credentials == nil {
		cfg.Credentials = make(map[string]interface{})
	}
	cfg.Credentials["access_token"] = tok.AccessToken
	cfg.Credentials["obtained_at"] = now.Format(time.RFC3339Nano)
	if !tok.Expiry.IsZero() {
		cfg.Credentials["expires_in"] = float64(int64(tok.Expiry.Sub(now) / time.Second))
	} else {
		cfg.Credentials["expires_in"] = float64(3600)
	}

	return tok.AccessToken, nil
}
