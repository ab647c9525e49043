package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"bookcal/internal/booking"
	"bookcal/internal/config"
	"bookcal/internal/datetime"
	"bookcal/internal/google"
	"bookcal/internal/server"
	"bookcal/internal/session"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "bookcal",
		Usage: "Manage appointment bookings on a Google Calendar.",
		Commands: []*cli.Command{
			serveCommand(),
			authCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the booking HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"BOOKCAL_CONFIG"}, Usage: "Path to a YAML config file."},
			&cli.IntFlag{Name: "port", Usage: "Listen port. Overrides the config file and PORT."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger := setupLogger(cfg.LogLevel)

			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			provider, err := newSessionProvider(c.Context, logger, cfg)
			if err != nil {
				return fmt.Errorf("failed to set up session backend: %w", err)
			}
			resolver := session.NewResolver(logger, provider)

			gateway := google.NewGateway(logger, google.Options{
				CalendarID:  cfg.Calendar.ID,
				SendUpdates: cfg.Calendar.SendUpdates,
				Location:    loc,
				Endpoint:    cfg.Calendar.Endpoint,
			})
			svc := booking.NewService(logger, gateway, datetime.New(loc), booking.Options{
				Timeout:      cfg.Calendar.ProviderTimeout,
				ReadRetries:  cfg.Calendar.ReadRetries,
				ListDeadline: listDeadline(cfg.Server.WriteTimeout),
			})

			srv := server.New(logger, svc, resolver, server.Options{
				Addr:            cfg.Addr(),
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				CalendarName:    cfg.Calendar.Name,
				RateLimit:       rate.Limit(cfg.RateLimit.RequestsPerSecond),
				Burst:           cfg.RateLimit.Burst,
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("Starting booking service.", "calendar", cfg.Calendar.ID, "timezone", loc.String(), "session_backend", cfg.Session.Backend)
			return srv.Start(ctx)
		},
	}
}

// listDeadline leaves headroom under the server write timeout so a retried
// list still gets its response out.
func listDeadline(writeTimeout time.Duration) time.Duration {
	if writeTimeout <= 0 {
		return 0
	}
	return writeTimeout * 9 / 10
}

// newSessionProvider builds the configured session backend.
func newSessionProvider(ctx context.Context, logger *slog.Logger, cfg *config.Config) (session.Provider, error) {
	switch strings.ToLower(cfg.Session.Backend) {
	case "file":
		dir := cfg.Session.TokenDir
		if dir == "" {
			dir = session.DefaultTokenDir()
		}
		// Refresh is optional; without client credentials expired tokens are rejected.
		oauthConfig, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
		if err != nil {
			logger.Warn("Token refresh disabled", "error", err)
			oauthConfig = nil
		}
		logger.Info("Using file session backend.", "dir", dir)
		return session.NewFileStore(logger, dir, cfg.Session.CookieName, oauthConfig), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Session.RedisAddr, err)
		}
		logger.Info("Using redis session backend.", "addr", cfg.Session.RedisAddr)
		return session.NewRedisStore(client, cfg.Session.RedisPrefix, cfg.Session.CookieName), nil
	default:
		return session.HeaderProvider{}, nil
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account and store a session token for the file backend.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, EnvVars: []string{"BOOKCAL_CONFIG"}, Usage: "Path to a YAML config file."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := setupLogger(cfg.LogLevel)
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (used as the session cookie value): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			if accountName == "" {
				return fmt.Errorf("account name must not be empty")
			}

			dir := cfg.Session.TokenDir
			if dir == "" {
				dir = session.DefaultTokenDir()
			}
			tokenFile := session.TokenPath(dir, accountName)
			if err := session.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
