package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shellbridge/pkg/config"
	"shellbridge/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "shellbridge",
	Short: "Cross-frame message broker for embedded applications",
	Long: `shellbridge hosts a shell that embedded frames attach to over WebSocket.
Frames call the shell's built-in API (USER_GET_INFO, GET_LANGUAGE,
EVENT_BUS) and receive broadcasts; every message is checked against the
configured origin allow-list.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// clientFlags override the client section of the configuration.
type clientFlags struct {
	url     string
	origin  string
	src     string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "gateway WebSocket URL (default from config)")
	cmd.Flags().StringVar(&f.origin, "origin", "", "origin presented by the frame")
	cmd.Flags().StringVar(&f.src, "src", "", "src the frame reports it was loaded from")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-call timeout")
}

func (f *clientFlags) apply(cfg *config.ClientConfig) {
	if value := strings.TrimSpace(f.url); value != "" {
		cfg.URL = value
	}
	if value := strings.TrimSpace(f.origin); value != "" {
		cfg.Origin = value
	}
	if value := strings.TrimSpace(f.src); value != "" {
		cfg.Src = value
	}
	if f.timeout > 0 {
		cfg.CallTimeoutSeconds = int(f.timeout.Round(time.Second) / time.Second)
		if cfg.CallTimeoutSeconds == 0 {
			cfg.CallTimeoutSeconds = 1
		}
	}
	if strings.TrimSpace(cfg.Src) == "" {
		cfg.Src = cfg.Origin + "/"
	}
}

// loadRuntime loads configuration and installs the process logger. The
// returned closer releases the log output.
func loadRuntime(component string) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, appLogger.With("component", component), closer, nil
}
