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
	"golang.org/x/sync/errgroup"

	"github.com/sorakado/offkai/internal/profile"
	"github.com/sorakado/offkai/internal/version"
	"github.com/sorakado/offkai/plugin/alerts"
	"github.com/sorakado/offkai/plugin/chatbridge"
	"github.com/sorakado/offkai/plugin/chatbridge/metrics"
	"github.com/sorakado/offkai/plugin/chatbridge/telegram"
	"github.com/sorakado/offkai/server/service/event"
	"github.com/sorakado/offkai/store"
	"github.com/sorakado/offkai/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "offkai",
	Short: "Event and registration bot for in-person meetups: capacity, waitlists and deadline alerts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:       viper.GetString("mode"),
			ConfigFile: viper.GetString("config"),
			Data:       viper.GetString("data"),
			Version:    version.GetCurrentVersion(viper.GetString("mode")),
		}
		if err := instanceProfile.LoadConfig(); err != nil {
			return err
		}
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), terminationSignals...)
		defer cancel()

		dbDriver, err := db.NewDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return err
		}

		storeInstance := store.New(dbDriver)
		if err := storeInstance.Load(); err != nil {
			slog.Error("failed to load caches", "error", err)
			return err
		}
		defer storeInstance.Close()

		bridge, err := telegram.New(&telegram.Config{
			BotToken: instanceProfile.BotToken,
			Debug:    instanceProfile.IsDev(),
		})
		if err != nil {
			slog.Error("failed to connect to chat platform", "error", err)
			return err
		}
		defer bridge.Close()

		scheduler := alerts.New()
		notifier := chatbridge.NewNotifier(bridge, 0)
		svc := event.New(storeInstance, scheduler,
			event.WithNotifier(notifier),
			event.WithGuild(instanceProfile.Guilds[0]),
		)
		if err := svc.RescheduleAll(ctx); err != nil {
			slog.Error("failed to reschedule reminders", "error", err)
			return err
		}

		printGreetings(instanceProfile)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return scheduler.Run(ctx)
		})
		g.Go(func() error {
			return telegram.NewPoller(bridge, svc, instanceProfile.Guilds).Run(ctx)
		})
		if addr := viper.GetString("metrics-addr"); addr != "" {
			g.Go(func() error {
				return serveMetrics(ctx, addr)
			})
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("config", "config.json")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the bot, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("config", "config.json", "path to config.json")
	rootCmd.PersistentFlags().String("data", "", "data directory the JSON files are resolved against")
	rootCmd.PersistentFlags().String("metrics-addr", "", "listen address for Prometheus metrics, empty disables")

	for _, key := range []string{"mode", "config", "data", "metrics-addr"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("offkai")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("offkai %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Events file: %s\n", p.EventsFile)
	fmt.Printf("Responses file: %s\n", p.ResponsesFile)
	fmt.Printf("Mode: %s\n", p.Mode)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("offkai exited", "error", err)
		os.Exit(1)
	}
}
