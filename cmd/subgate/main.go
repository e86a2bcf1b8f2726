package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/zemetsskiy/subgate/internal/application/pricing"
	"github.com/zemetsskiy/subgate/internal/application/watcher"
	"github.com/zemetsskiy/subgate/internal/domain"
	"github.com/zemetsskiy/subgate/internal/infrastructure/clients"
	"github.com/zemetsskiy/subgate/internal/infrastructure/database"
	"github.com/zemetsskiy/subgate/internal/infrastructure/discord"
	"github.com/zemetsskiy/subgate/internal/infrastructure/notifier"
	"github.com/zemetsskiy/subgate/internal/infrastructure/rpc"
	"github.com/zemetsskiy/subgate/internal/infrastructure/wallet"
	"github.com/zemetsskiy/subgate/internal/repositories/receiptrepo"
	"github.com/zemetsskiy/subgate/internal/repositories/staterepo"
	"github.com/zemetsskiy/subgate/internal/server"
	"github.com/zemetsskiy/subgate/internal/server/handlers"
	"github.com/zemetsskiy/subgate/internal/server/ws"
	"github.com/zemetsskiy/subgate/pkg/config"
	"github.com/zemetsskiy/subgate/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(cfg.Logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	cancel()
	defer rdb.Close()

	var receipts receiptrepo.IReceiptRepository
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.ShutDown()
		receipts = receiptrepo.New(db, log)
	}

	plans := make([]domain.Plan, 0, len(cfg.Plans))
	for _, p := range cfg.Plans {
		plans = append(plans, domain.Plan{
			ID:       p.ID,
			PriceUSD: decimal.NewFromFloat(p.PriceUSD),
		})
	}
	catalog := domain.NewCatalog(plans)

	state := staterepo.New(rdb, cfg.Payment.Window, log)
	quoteClient := clients.NewQuoteClient(&cfg.Quote, log)
	evmClient := rpc.NewEVMClient(cfg.Chains, log)
	walletIssuer := wallet.NewIssuer(log)
	mailer := notifier.NewMailer(&cfg.SMTP, log)
	oauthClient := discord.NewOAuthClient(&cfg.Discord, log)

	granter, err := discord.NewGranter(&cfg.Discord, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create discord role granter")
	}

	wsHub := ws.NewWsHub(log)

	pricingSvc := pricing.New(catalog, quoteClient, log)
	watcherSvc := watcher.New(
		evmClient,
		state,
		mailer,
		granter,
		receipts,
		wsHub,
		cfg.Payment,
		log,
	)
	defer watcherSvc.Shutdown()

	h := handlers.New(
		pricingSvc,
		watcherSvc,
		state,
		walletIssuer,
		oauthClient,
		catalog,
		wsHub,
		cfg,
		log,
	)

	srv := server.New(cfg, h, wsHub, log)
	srv.Start()
}
