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

	"github.com/MarcoPoloResearchLab/courier/internal/accounts"
	"github.com/MarcoPoloResearchLab/courier/internal/auth"
	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/config"
	"github.com/MarcoPoloResearchLab/courier/internal/database"
	"github.com/MarcoPoloResearchLab/courier/internal/logging"
	"github.com/MarcoPoloResearchLab/courier/internal/pipeline"
	"github.com/MarcoPoloResearchLab/courier/internal/server"
	"github.com/MarcoPoloResearchLab/courier/internal/telemetry"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "courier",
		Short: "Courier communication backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	setupFlags(rootCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context())
		},
	}
	rootCmd.AddCommand(serveCmd, migrateCmd, newTokenCommand(), newLinkCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-url", defaults.GetString("database.url"), "Postgres URL or SQLite path")
	cmd.PersistentFlags().String("workspace", defaults.GetString("workspace.id"), "Workspace served by this process")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Connection token signing secret (overrides env)")
	cmd.PersistentFlags().String("telemetry-endpoint", defaults.GetString("telemetry.endpoint"), "OTLP/HTTP traces endpoint")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "workspace.id", "workspace")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "telemetry.endpoint", "telemetry-endpoint")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMigrator(appConfig config.AppConfig, logger *zap.Logger) *database.SchemaMigrator {
	return database.NewSchemaMigrator(database.SchemaMigratorConfig{
		Attempts: appConfig.MigrationAttempts,
		Delay:    appConfig.MigrationDelay,
		Logger:   logger,
	})
}

func runMigrations(ctx context.Context) error {
	appConfig, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, "courier-migrate")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, dialect, err := database.Open(appConfig.DatabaseURL, database.PoolConfig{MaxOpenConns: appConfig.MaxOpenConns})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := newMigrator(appConfig, logger).EnsureSchema(ctx, appConfig.DatabaseURL, db, dialect); err != nil {
		return err
	}
	logger.Info("schema up to date", zap.String("dialect", string(dialect)))
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.TelemetryService)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	shutdownTracing, err := telemetry.Setup(ctx, appConfig.TelemetryService, appConfig.TelemetryEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", zap.Error(err))
		}
	}()

	registry, err := database.NewRegistry(database.RegistryConfig{
		Migrator: newMigrator(appConfig, logger),
		Pool:     database.PoolConfig{MaxOpenConns: appConfig.MaxOpenConns},
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	identities, err := registry.Acquire(ctx, appConfig.DatabaseURL)
	if err != nil {
		return err
	}
	defer identities.Close() //nolint:errcheck

	accountService, err := accounts.NewService(accounts.ServiceConfig{Database: identities.DB()})
	if err != nil {
		return err
	}

	hub := server.NewHub(logger)
	api, err := pipeline.New(ctx, pipeline.Config{
		Registry:    registry,
		DatabaseURL: appConfig.DatabaseURL,
		Workspace:   communication.WorkspaceID(appConfig.WorkspaceID),
		Broadcast:   hub.Broadcast,
		Resolver:    accountService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer api.Close() //nolint:errcheck

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Pipeline:       api,
		Hub:            hub,
		Tokens:         tokenManager,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("workspace", appConfig.WorkspaceID))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newTokenCommand() *cobra.Command {
	var (
		account   string
		socialIDs []string
		system    bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed connection token",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(viper.GetString("auth.signing_secret")),
				Issuer:        viper.GetString("auth.issuer"),
				TokenTTL:      time.Duration(viper.GetInt("auth.token_ttl_minutes")) * time.Minute,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.Issue(cmd.Context(), auth.ConnectionClaims{
				SocialIDs:        socialIDs,
				System:           system,
				RegisteredClaims: jwt.RegisteredClaims{Subject: account},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account the token acts as")
	cmd.Flags().StringSliceVar(&socialIDs, "social-id", nil, "Social ids owned by the account")
	cmd.Flags().BoolVar(&system, "system", false, "Issue a system token that bypasses ownership checks")
	return cmd
}

func newLinkCommand() *cobra.Command {
	var (
		account  string
		socialID string
	)
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link a social id to an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.LoadDatabase(viper.GetViper())
			if err != nil {
				return err
			}
			registry, err := database.NewRegistry(database.RegistryConfig{
				Migrator: newMigrator(appConfig, zap.NewNop()),
			})
			if err != nil {
				return err
			}
			reference, err := registry.Acquire(cmd.Context(), appConfig.DatabaseURL)
			if err != nil {
				return err
			}
			defer reference.Close() //nolint:errcheck

			service, err := accounts.NewService(accounts.ServiceConfig{Database: reference.DB()})
			if err != nil {
				return err
			}
			return service.Link(cmd.Context(), communication.SocialID(socialID), communication.AccountID(account))
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account that owns the social id")
	cmd.Flags().StringVar(&socialID, "social-id", "", "Social id to link")
	return cmd
}
