package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"shellbridge/pkg/bridge"
	"shellbridge/pkg/bus"
	"shellbridge/pkg/config"
	"shellbridge/pkg/frame"
	"shellbridge/pkg/gateway"
	"shellbridge/pkg/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shell gateway",
	Long:  "Runs the shell: frames attach over WebSocket and are served by the message broker until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, closer, err := loadRuntime("cmd.serve")
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer closer.Close()

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newShell(cfg, log)
		if err != nil {
			log.Error("Failed to initialize shell", "error", err)
			return
		}

		log.Info("Shell started",
			"address", svc.Addr(),
			"self_origin", cfg.Bridge.SelfOrigin,
			"allowed_origins", strings.Join(cfg.Bridge.AllowedOrigins, ","),
			"session_path", cfg.Session.Path,
		)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Shell runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// newShell wires the broker and its collaborators into a gateway service.
func newShell(cfg *config.Config, log *slog.Logger) (*gateway.Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(cfg.Bridge.AllowedOrigins) == 0 {
		log.Warn("Allow-list is empty, only the shell's own origin will be served")
	}

	mb := bus.NewMessageBusSize(cfg.Bridge.QueueSize)
	registry := frame.NewRegistry()
	store := session.NewFileStore(cfg.Session.Path, log)
	cookies := session.NewCookies(cfg.Locale.Cookies)

	broker := bridge.New(bridge.OptionsFromConfig(cfg), bridge.Deps{
		Sessions: store,
		Cookies:  cookies,
		Frames:   registry,
		Bus:      mb,
	}, log)

	svc, err := gateway.NewService(cfg, gateway.Deps{
		Broker:   broker,
		Bus:      mb,
		Frames:   registry,
		Sessions: store,
		Cookies:  cookies,
	}, log)
	if err != nil {
		mb.Close()
		return nil, fmt.Errorf("initialize gateway: %w", err)
	}

	return svc, nil
}
