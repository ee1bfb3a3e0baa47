package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var broadcastURLFlag string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <json>",
	Short: "Push a message to every attached frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := strings.TrimSpace(args[0])
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON: %s", payload)
		}

		cfg, log, closer, err := loadRuntime("cmd.broadcast")
		if err != nil {
			return err
		}
		defer closer.Close()

		source := cfg.Client.URL
		if value := strings.TrimSpace(broadcastURLFlag); value != "" {
			source = value
		}
		endpoint, err := broadcastURL(source)
		if err != nil {
			return err
		}

		httpClient := &http.Client{Timeout: time.Duration(cfg.Client.CallTimeoutSeconds) * time.Second}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, bytes.NewBufferString(payload))
		if err != nil {
			return fmt.Errorf("build broadcast request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		log.Debug("Broadcasting", "endpoint", endpoint)
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("broadcast: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read broadcast response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("broadcast failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}

		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	broadcastCmd.Flags().StringVar(&broadcastURLFlag, "url", "", "gateway URL (ws or http); defaults to the client URL from config")
}

// broadcastURL maps a gateway bridge URL onto its /broadcast endpoint.
func broadcastURL(raw string) (string, error) {
	return gatewayEndpoint(raw, "/broadcast", false)
}

// gatewayEndpoint rewrites a gateway URL (ws or http) to path, using the
// websocket or plain HTTP scheme of the same security level.
func gatewayEndpoint(raw string, path string, websocket bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}

	secure := false
	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
	case "wss", "https":
		secure = true
	default:
		return "", fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("gateway url has no host")
	}

	switch {
	case websocket && secure:
		u.Scheme = "wss"
	case websocket:
		u.Scheme = "ws"
	case secure:
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = path
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
