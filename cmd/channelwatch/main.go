package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/channelwatch/ai"
	"github.com/hrygo/channelwatch/ai/providers"
	"github.com/hrygo/channelwatch/internal/metrics"
	"github.com/hrygo/channelwatch/internal/profile"
	"github.com/hrygo/channelwatch/internal/version"
	"github.com/hrygo/channelwatch/monitor"
	"github.com/hrygo/channelwatch/plugin/github"
	"github.com/hrygo/channelwatch/plugin/notify"
	"github.com/hrygo/channelwatch/plugin/webhook"
	"github.com/hrygo/channelwatch/server"
	"github.com/hrygo/channelwatch/store"
	"github.com/hrygo/channelwatch/store/cache"
	"github.com/hrygo/channelwatch/store/db"
	"github.com/hrygo/channelwatch/telegram"
)

var rootCmd = &cobra.Command{
	Use:   "channelwatch",
	Short: `Telegram channel monitor with AI-assisted filtering, forwarding, and chat.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Systemd units carry their environment in the unit file; .env is for
		// direct binary execution only.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := loadProfile()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// A failed store keeps the process alive: dependent services stay nil
		// and their routes answer 503.
		var storeInstance *store.Store
		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			printDatabaseError(err, instanceProfile)
			slog.Warn("failed to create db driver, continuing without storage", "error", err)
		} else {
			cacheService := cache.New(ctx, instanceProfile.RedisAddr, instanceProfile.RedisPassword)
			storeInstance = store.New(dbDriver, instanceProfile, cacheService)
			if err := storeInstance.Migrate(ctx); err != nil {
				slog.Warn("failed to migrate, continuing without storage", "error", err)
				storeInstance = nil
			}
		}

		exporter := metrics.NewExporter(metrics.Config{})

		var aiService *ai.Service
		switch {
		case !instanceProfile.IsAIConfigured():
			slog.Warn("no AI provider key configured, AI features disabled")
		case storeInstance == nil:
			slog.Warn("storage unavailable, AI features disabled")
		default:
			registry := providers.NewRegistry(instanceProfile.ProviderKeys)
			aiService = ai.NewService(instanceProfile, storeInstance, registry).
				WithMetrics(exporter)
			if pub := githubExporter(instanceProfile); pub != nil {
				aiService = aiService.WithPublisher(pub)
			}
		}

		var tgClient *telegram.Client
		var monitorService *monitor.Service
		if instanceProfile.IsTelegramConfigured() {
			tgClient, err = telegram.New(instanceProfile)
			if err != nil {
				slog.Error("failed to build telegram client", "error", err)
				return
			}
			if err := tgClient.Connect(ctx); err != nil {
				if errors.Is(err, telegram.ErrNotAuthorized) {
					slog.Warn("telegram session not authorized, run `channelwatch login` first; monitor disabled")
				} else {
					slog.Warn("telegram connect failed, monitor disabled", "error", err)
				}
				tgClient = nil
			}
		} else {
			slog.Warn("TELEGRAM_API_ID/TELEGRAM_API_HASH not set, monitor disabled")
		}

		if tgClient != nil && storeInstance == nil {
			slog.Warn("storage unavailable, monitor disabled")
		} else if tgClient != nil {
			monitorService = monitor.NewService(instanceProfile, storeInstance, tgClient).
				WithMetrics(exporter)
			if w := webhook.NewDispatcher(instanceProfile.WebhookURL); w != nil {
				monitorService = monitorService.WithWebhook(w)
			}
			if aiService != nil {
				monitorService = monitorService.WithAnalyzer(aiService)
			}
			if n := notify.New(instanceProfile.BotToken, instanceProfile.AdminChatID); n != nil {
				monitorService = monitorService.WithNotifier(n)
			}

			if instanceProfile.MonitorAutoStart {
				if err := monitorService.Start(ctx); err != nil {
					slog.Warn("monitor auto-start failed", "error", err)
				}
			}
			if err := monitorService.StartDigest(); err != nil {
				slog.Warn("digest scheduler failed to start", "error", err)
			}
		}

		s := server.NewServer(instanceProfile, storeInstance, aiService, monitorService, exporter)
		if err := s.Start(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				slog.Error("failed to start server", "error", err)
			}
			return
		}
		printGreetings(instanceProfile)

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by systemd and kubernetes.
		signal.Notify(c, terminationSignals...)
		<-c

		// Shutdown order matters: drop websocket clients before the monitor
		// stops publishing, stop the monitor before its gateway closes.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		s.Shutdown(shutdownCtx)
		if monitorService != nil {
			monitorService.StopDigest()
			monitorService.Shutdown()
		}
		if tgClient != nil {
			tgClient.Close()
		}
		if storeInstance != nil {
			if err := storeInstance.Close(); err != nil {
				slog.Error("failed to close store", "error", err)
			}
		}
		cancel()
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize the MTProto session interactively",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := loadProfile()
		if !instanceProfile.IsTelegramConfigured() {
			return errors.New("TELEGRAM_API_ID and TELEGRAM_API_HASH must be set")
		}
		client, err := telegram.New(instanceProfile)
		if err != nil {
			return err
		}
		return client.Login(context.Background())
	},
}

func loadProfile() *profile.Profile {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.String(),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return p
}

// githubExporter builds the note publisher from GITHUB_* settings;
// GITHUB_REPO is "owner/repo".
func githubExporter(p *profile.Profile) ai.NotePublisher {
	owner, repo, found := strings.Cut(p.GitHubRepo, "/")
	if !found {
		if p.GitHubRepo != "" {
			slog.Warn("GITHUB_REPO must be owner/repo, export disabled", "value", p.GitHubRepo)
		}
		return nil
	}
	exporter := github.NewExporter(p.GitHubToken, owner, repo, p.GitHubBranch)
	if !exporter.IsReady() {
		return nil
	}
	return exporter
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 23000)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 23000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("channelwatch")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(loginCmd)
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("channelwatch %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides actionable messages for database startup issues.
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL is not reachable.")
		if profile.Driver == "postgres" {
			fmt.Fprintln(os.Stderr, "  Start it with: sudo systemctl start postgresql")
		}
		fmt.Fprintln(os.Stderr, "  Or use SQLite for development: --driver=sqlite --data=./data")

	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL SSL configuration mismatch.")
		fmt.Fprintln(os.Stderr, "  Add ?sslmode=disable to your DSN.")

	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "\nPostgreSQL authentication failed; check the DSN credentials.")

	case strings.Contains(errMsg, "does not exist"):
		fmt.Fprintln(os.Stderr, "\nDatabase does not exist; create it first.")

	default:
		fmt.Fprintln(os.Stderr, "\nError:", errMsg)
	}

	if _, statErr := os.Stat(".env"); statErr != nil {
		fmt.Fprintln(os.Stderr, "\nTip: create a .env file for local configuration (see .env.example)")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
