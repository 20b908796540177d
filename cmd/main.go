package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/rotacerta/ekspedisi/internal/cache"
	"github.com/rotacerta/ekspedisi/internal/codegen"
	"github.com/rotacerta/ekspedisi/internal/config"
	"github.com/rotacerta/ekspedisi/internal/events"
	"github.com/rotacerta/ekspedisi/internal/handlers"
	"github.com/rotacerta/ekspedisi/internal/logger"
	"github.com/rotacerta/ekspedisi/internal/media"
	"github.com/rotacerta/ekspedisi/internal/notify"
	"github.com/rotacerta/ekspedisi/internal/service"
	"github.com/rotacerta/ekspedisi/internal/store"
	"github.com/rotacerta/ekspedisi/internal/totals"
)

const shutdownTimeout = 10 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "ekspedisi",
		Short:         "Courier shipment management API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), createAdminCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config, builds the logger and opens the migrated database.
func bootstrap() (*config.Config, *logger.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, db, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			log.Info("Database migrated")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the admin account if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			if username == "" {
				username = cfg.AdminUsername
			}
			if password == "" {
				password = cfg.AdminPassword
			}
			if username == "" || password == "" {
				return errors.New("admin username and password are required (flags or ADMIN_USERNAME/ADMIN_PASSWORD)")
			}
			users := service.NewUserService(db, log, cfg.BcryptCost)
			created, err := users.EnsureAdmin(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			if created {
				log.Info("Admin account created", "username", username)
			} else {
				log.Info("Admin account already exists", "username", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username (default $ADMIN_USERNAME)")
	cmd.Flags().StringVar(&password, "password", "", "admin password (default $ADMIN_PASSWORD)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cfg, log, db)
		},
	}
}

func serve(cfg *config.Config, log *logger.Logger, db *gorm.DB) error {
	ctx := context.Background()

	if cfg.UsesDefaultSecret() {
		log.Warn("JWT_SECRET is not set, tokens are signed with the development default")
	}

	tc, err := cache.NewTrackingCache(log, cfg.RedisAddr, cfg.RedisPassword, cfg.TrackingTTL)
	if err != nil {
		// tracking still works from the database
		log.Warn("Tracking cache unavailable, continuing without it", "error", err)
		tc = cache.Nop{}
	}
	defer tc.Close()

	pub := events.NewPublisher(log, cfg.KafkaBrokers, cfg.KafkaTopic)
	defer pub.Close()

	ms := media.NewStore(cfg.MediaDir)
	codes := codegen.New()
	recalc := totals.New()

	users := service.NewUserService(db, log, cfg.BcryptCost)
	if created, err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Error("Admin bootstrap failed", "error", err)
	} else if created {
		log.Info("Admin account created", "username", cfg.AdminUsername)
	}

	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		MediaDir:    cfg.MediaDir,
		Auth: service.NewAuthService(db, log, service.AuthConfig{
			Secret:     cfg.JWTSecret,
			TokenTTL:   cfg.TokenTTL,
			BcryptCost: cfg.BcryptCost,
		}, ms),
		Users:     users,
		Catalog:   service.NewCatalogService(db, log, recalc, tc),
		Shipments: service.NewShipmentService(db, log, codes, recalc, tc, pub, notify.New(log, cfg.WhatsAppURL, cfg.WhatsAppToken)),
		Packages:  service.NewPackageService(db, log, codes, recalc, tc, ms),
		History:   service.NewHistoryService(db, log, tc),
		Dashboard: service.NewDashboardService(db, log),
		Tracking:  service.NewTrackingService(db, log, tc),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		log.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
