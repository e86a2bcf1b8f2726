package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/zemetsskiy/subgate/pkg/config"
)

// Profile is the subset of the Discord /users/@me payload the storefront
// cares about.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// DisplayName renders the username the way the rest of the system stores
// it: name#discriminator.
func (p Profile) DisplayName() string {
	return p.Username + "#" + p.Discriminator
}

// OAuthClient wraps the Discord authorization-code flow.
type OAuthClient struct {
	oauth      *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewOAuthClient(cfg *config.DiscordConfig, logger zerolog.Logger) *OAuthClient {
	base := strings.TrimSuffix(cfg.APIBaseURL, "/")
	return &OAuthClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:  base + "/oauth2/authorize",
				TokenURL: base + "/oauth2/token",
			},
		},
		apiBaseURL: base,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With().Str("component", "discord_oauth").Logger(),
	}
}

// AuthorizeURL builds the provider redirect for the login button.
func (c *OAuthClient) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (c *OAuthClient) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token.AccessToken, nil
}

// FetchProfile loads the authenticated user's identity.
func (c *OAuthClient) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBaseURL+"/v10/users/@me", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Profile request failed")
		return Profile{}, fmt.Errorf("profile request failed with status: %s", resp.Status)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("failed to parse profile response: %w", err)
	}
	if profile.ID == "" {
		return Profile{}, fmt.Errorf("profile response missing user id")
	}
	return profile, nil
}
