package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"merch-loyalty-system/config"
	"merch-loyalty-system/handlers"
	"merch-loyalty-system/models"
	"merch-loyalty-system/services"
	"merch-loyalty-system/store"
	"merch-loyalty-system/utils"
	"merch-loyalty-system/workers"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading environment variables directly")
	}

	cfg, err := config.Load(os.Getenv("LOYALTY_CONFIG"))
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	// TranslateError turns unique violations into gorm.ErrDuplicatedKey,
	// which the store layer maps to the conflict sentinel. The idempotency
	// machinery depends on it.
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.UserProfile{},
		&models.LedgerEntry{},
		&models.Badge{},
		&models.UserBadge{},
		&models.ReferralCode{},
		&models.Referral{},
		&models.DiscountCode{},
	); err != nil {
		logger.Fatal("migrating database", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var assets *utils.AssetStore
	if cfg.Assets.Enabled() {
		assets, err = utils.NewAssetStore(ctx, cfg.Assets)
		if err != nil {
			logger.Fatal("initializing object storage", zap.Error(err))
		}
	} else {
		logger.Info("object storage not configured; badge icon uploads disabled")
	}

	// Stores.
	policy := services.NewTierPolicy(cfg.Loyalty)
	profiles := store.NewProfiles(db, policy)
	ledger := store.NewLedger(db)
	badgeStore := store.NewBadges(db)
	referralStore := store.NewReferrals(db)
	discountStore := store.NewDiscounts(db)

	if err := badgeStore.SeedDefaults(ctx); err != nil {
		logger.Fatal("seeding badge catalog", zap.Error(err))
	}

	// Services.
	leaderboard := services.NewLeaderboard(rdb, cfg.Loyalty.LeaderboardSize, logger)
	projector := services.NewBalanceProjector(profiles, logger)
	awarder := services.NewAwarder(profiles, projector, ledger, leaderboard, logger)
	badges := services.NewBadgeEvaluator(badgeStore, awarder, logger)
	referrals := services.NewReferralService(referralStore, awarder, badges,
		cfg.Loyalty.ReferralCodeLength, cfg.Loyalty.ReferralXP, logger)

	table, err := cfg.Loyalty.Table()
	if err != nil {
		logger.Fatal("parsing redemption table", zap.Error(err))
	}
	redemption := services.NewRedemptionService(profiles, projector, ledger, discountStore,
		badges, leaderboard, table, cfg.Loyalty.DiscountCodeLength, cfg.Loyalty.DiscountValidity, logger)
	loyalty := services.NewLoyaltyService(profiles, ledger, awarder, badges, referrals, policy,
		cfg.Loyalty.PointsPerDollar, cfg.Loyalty.BirthdayXP, logger)

	// Background jobs.
	scheduler := services.NewScheduler(cfg.Scheduler, profiles, loyalty, redemption, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("starting scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	reconciler := workers.NewReconciler(profiles, ledger, badges, logger)
	go reconciler.Run(ctx, cfg.Scheduler.ReconcileInterval)

	// HTTP.
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-User-Roles, X-Service-Token, X-Request-ID",
		MaxAge:       86400,
	}))

	handlers.SetupLoyaltyRoutes(app, loyalty, referrals, redemption, leaderboard)
	handlers.SetupWebhookRoutes(app, loyalty, referrals, cfg.Server.ServiceToken, logger)
	handlers.SetupAdminRoutes(app, loyalty, badgeStore, assets, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()
	logger.Info("loyalty service running", zap.String("addr", addr))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		logger.Warn("redis close", zap.Error(err))
	}
}
