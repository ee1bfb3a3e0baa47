package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	eventsURLFlag  string
	eventsTypeFlag string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow broker and frame events",
	Long: `Streams the shell's activity as JSON lines until interrupted.

  shellbridge events
  shellbridge events --type reply_sent,origin_rejected`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, log, closer, err := loadRuntime("cmd.events")
		if err != nil {
			return err
		}
		defer closer.Close()

		source := cfg.Client.URL
		if value := strings.TrimSpace(eventsURLFlag); value != "" {
			source = value
		}
		endpoint, err := eventsURL(source, eventsTypeFlag)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("follow events at %s: %s", endpoint, resp.Status)
			}
			return fmt.Errorf("follow events at %s: %w", endpoint, err)
		}
		defer ws.Close()

		go func() {
			<-ctx.Done()
			_ = ws.Close()
		}()

		log.Debug("Following events", "endpoint", endpoint)
		out := cmd.OutOrStdout()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					return nil
				}
				return fmt.Errorf("read event: %w", err)
			}
			fmt.Fprintln(out, strings.TrimSpace(string(data)))
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsURLFlag, "url", "", "gateway URL (ws or http); defaults to the client URL from config")
	eventsCmd.Flags().StringVarP(&eventsTypeFlag, "type", "t", "", "comma separated event types to keep")
}

// eventsURL maps a gateway URL onto its /events stream, carrying the type
// filter as a query parameter.
func eventsURL(raw string, types string) (string, error) {
	endpoint, err := gatewayEndpoint(raw, "/events", true)
	if err != nil {
		return "", err
	}

	types = strings.TrimSpace(types)
	if types == "" {
		return endpoint, nil
	}
	if strings.ContainsAny(types, " \t") {
		return "", errors.New("event types must be comma separated without spaces")
	}
	return endpoint + "?type=" + url.QueryEscape(types), nil
}
