package handlers

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zemetsskiy/subgate/internal/application/pricing"
	"github.com/zemetsskiy/subgate/internal/application/watcher"
	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/infrastructure/discord"
	"github.com/zemetsskiy/subgate/internal/infrastructure/wallet"
	"github.com/zemetsskiy/subgate/internal/repositories/staterepo"
	"github.com/zemetsskiy/subgate/internal/server/ws"
	"github.com/zemetsskiy/subgate/pkg/config"
)

// Session keys shared by the front-controller handlers.
const (
	sessionKeyPlan       = "plan"
	sessionKeyUserID     = "user_id"
	sessionKeyUsername   = "username"
	sessionKeyToken      = "access_token"
	sessionKeyWallet     = "wallet_address"
	sessionKeyOAuthState = "oauth_state"
)

// WalletSource issues a fresh deposit wallet per payment attempt.
type WalletSource interface {
	Issue() (wallet.Issued, error)
}

// OAuthProvider is the Discord authorization-code flow the auth handlers
// drive.
type OAuthProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (discord.Profile, error)
}

type Handlers struct {
	Pricing    pricing.IPricingService
	Watcher    watcher.IWatcherService
	State      staterepo.IStateStore
	Wallets    WalletSource
	OAuth      OAuthProvider
	Catalog    *domain.Catalog
	WsHub      *ws.WsHub
	Config     *config.Config
	Logger     zerolog.Logger
}

func New(
	pricingSvc pricing.IPricingService,
	watcherSvc watcher.IWatcherService,
	state staterepo.IStateStore,
	wallets WalletSource,
	oauth OAuthProvider,
	catalog *domain.Catalog,
	wsHub *ws.WsHub,
	cfg *config.Config,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		Pricing: pricingSvc,
		Watcher: watcherSvc,
		State:   state,
		Wallets: wallets,
		OAuth:   oauth,
		Catalog: catalog,
		WsHub:   wsHub,
		Config:  cfg,
		Logger:  logger,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	healthHandler := NewHealthHandler()

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	router.GET("/", h.Index)
	router.POST("/choose_plan", h.ChoosePlan)
	router.POST("/login/discord", h.DiscordLogin)
	router.GET("/oauth2/callback", h.OAuthCallback)
	router.GET("/payment", h.PaymentPage)
	router.POST("/payment", h.CreatePayment)
	router.GET("/check_payment_status", h.CheckPaymentStatus)
	router.POST("/email", h.StoreEmail)
	router.GET("/ws/status", h.StatusWebSocket)
}

func sessionString(c *gin.Context, key string) string {
	v := sessions.Default(c).Get(key)
	s, _ := v.(string)
	return s
}
