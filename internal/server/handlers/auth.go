package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DiscordLogin kicks off the OAuth flow: a random state goes into the
// cookie session and the browser is sent to the provider.
func (h *Handlers) DiscordLogin(c *gin.Context) {
	state := uuid.New().String()

	session := sessions.Default(c)
	session.Set(sessionKeyOAuthState, state)
	if err := session.Save(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to save session")
		c.String(http.StatusInternalServerError, "Failed to start login.")
		return
	}

	c.Redirect(http.StatusFound, h.OAuth.AuthorizeURL(state))
}

// OAuthCallback finishes the flow: code exchange, profile fetch, and the
// identity lands in the session as user_id plus username#discriminator.
func (h *Handlers) OAuthCallback(c *gin.Context) {
	session := sessions.Default(c)

	state, _ := session.Get(sessionKeyOAuthState).(string)
	if state == "" || c.Query("state") != state {
		h.Logger.Warn().Msg("OAuth state mismatch")
		c.String(http.StatusBadRequest, "Failed to authenticate with Discord.")
		return
	}

	code := c.Query("code")
	if code == "" {
		c.String(http.StatusBadRequest, "Failed to authenticate with Discord.")
		return
	}

	accessToken, err := h.OAuth.Exchange(c.Request.Context(), code)
	if err != nil {
		h.Logger.Error().Err(err).Msg("OAuth code exchange failed")
		c.String(http.StatusBadRequest, "Failed to authenticate with Discord.")
		return
	}

	profile, err := h.OAuth.FetchProfile(c.Request.Context(), accessToken)
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to fetch Discord profile")
		c.String(http.StatusBadRequest, "Failed to fetch Discord user information.")
		return
	}

	session.Delete(sessionKeyOAuthState)
	session.Set(sessionKeyToken, accessToken)
	session.Set(sessionKeyUserID, profile.ID)
	session.Set(sessionKeyUsername, profile.DisplayName())
	if err := session.Save(); err != nil {
		h.Logger.Error().Err(err).Msg("Failed to save session")
		c.String(http.StatusInternalServerError, "Failed to complete login.")
		return
	}

	h.Logger.Info().
		Str("user_id", profile.ID).
		Str("username", profile.DisplayName()).
		Msg("Discord login completed")

	c.Redirect(http.StatusFound, "/payment")
}
