package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"schoold/internal/auth"
	"schoold/internal/bus"
	"schoold/internal/config"
	"schoold/internal/db"
	"schoold/internal/httpapi"
	"schoold/internal/ledger"
	"schoold/internal/mail"
	"schoold/internal/repository"
	"schoold/internal/storage"
	"schoold/internal/telemetry"
	"schoold/internal/token"
	"schoold/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           version.Name,
		Short:         "School management backend",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			pool, err := db.Open(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.Migrate(ctx, pool)
		},
	}
}

func newSeedCommand() *cobra.Command {
	var roster string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin and optionally import a class roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			orm, err := db.OpenORM(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.CloseORM(orm)
			}()

			if cfg.AdminPassword != "" {
				if err := db.Seed(ctx, orm, cfg.AdminEmail, cfg.AdminPassword); err != nil {
					return err
				}
			}
			if roster != "" {
				if err := db.SeedRoster(ctx, orm, roster); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&roster, "roster", "", "YAML roster file with classes, sections, and subjects")
	return cmd
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cleanup, err := telemetry.Init(ctx, version.Name, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	orm, err := db.OpenORM(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}
	defer func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
	}()

	if cfg.AdminPassword != "" {
		if err := db.Seed(ctx, orm, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	codec, err := token.New(cfg.JWTSigningKey, cfg.JWTRefreshKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	var mailer mail.Mailer = &mail.LogMailer{Log: log.Logger}
	if cfg.SMTPHost != "" {
		mailer = &mail.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Fallback: cfg.MailFallback,
		}
	}

	var events *bus.Bus
	if cfg.NATSURL != "" {
		events, err = bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer events.Close()
	}

	store := repository.NewStore(orm, pool)
	svc := auth.NewService(store, mailer, publisherOrNil(events), cfg.AppURL, log.Logger)

	var attachments *ledger.Ledger
	if cfg.S3Endpoint != "" {
		blob, err := storage.New(ctx, storage.Options{
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			DisableTLS:     cfg.S3DisableTLS,
			ForcePathStyle: cfg.S3ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("blob store: %w", err)
		}
		attachments = ledger.New(blob, store, cfg.S3Bucket, log.Logger)
	}

	api, err := httpapi.New(svc, codec, attachments, store, events, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		CookieDomain:   cfg.CookieDomain,
		Production:     cfg.Production(),
	}, log.Logger)
	if err != nil {
		return fmt.Errorf("init api: %w", err)
	}

	if err := api.RunStream(ctx); err != nil {
		return fmt.Errorf("start notification stream: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           telemetry.Middleware(version.Name)(api.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("env", cfg.Env).Msg("starting schoold")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
	return nil
}

// publisherOrNil keeps the orchestrator's nil check meaningful: a typed nil
// *bus.Bus inside the interface would defeat it.
func publisherOrNil(b *bus.Bus) auth.Publisher {
	if b == nil {
		return nil
	}
	return b
}
