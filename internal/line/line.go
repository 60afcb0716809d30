// Package line implements the LINE Login authorization code exchange.
package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenEndpoint   = "https://api.line.me/oauth2/v2.1/token"
	defaultProfileEndpoint = "https://api.line.me/v2/profile"
	idTokenIssuer          = "https://access.line.me"
)

var ErrNotConfigured = errors.New("LINE login is not configured")

type Client struct {
	ChannelID     string
	ChannelSecret string
	RedirectURI   string

	// Overridable for tests.
	TokenEndpoint   string
	ProfileEndpoint string

	http *http.Client
}

func New(channelID, channelSecret, redirectURI string) *Client {
	return &Client{
		ChannelID:       channelID,
		ChannelSecret:   channelSecret,
		RedirectURI:     redirectURI,
		TokenEndpoint:   defaultTokenEndpoint,
		ProfileEndpoint: defaultProfileEndpoint,
		http:            &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.ChannelID != "" && c.ChannelSecret != "" && c.RedirectURI != ""
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
}

// Exchange trades an authorization code for LINE tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURI)
	form.Set("client_id", c.ChannelID)
	form.Set("client_secret", c.ChannelSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line token endpoint: status %d", resp.StatusCode)
	}
	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode line token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("no access_token in line token response")
	}
	return &tr, nil
}

type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
}

func (c *Client) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ProfileEndpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("line profile endpoint: status %d", resp.StatusCode)
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode line profile: %w", err)
	}
	if p.UserID == "" {
		return nil, errors.New("no userId in line profile")
	}
	return &p, nil
}

type idTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// EmailFromIDToken returns the email claim of a LINE id_token. LINE signs
// id_tokens with HS256 keyed by the channel secret. An empty string is
// returned when the token does not verify or carries no email.
func (c *Client) EmailFromIDToken(idToken string) string {
	if idToken == "" {
		return ""
	}
	claims := &idTokenClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims,
		func(*jwt.Token) (any, error) { return []byte(c.ChannelSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(idTokenIssuer),
		jwt.WithAudience(c.ChannelID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return ""
	}
	return claims.Email
}
