package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shellbridge/pkg/client"
	"shellbridge/pkg/config"
	"shellbridge/pkg/protocol"
)

var (
	callFlags clientFlags
	callEvent string
	callData  string
)

var callCmd = &cobra.Command{
	Use:   "call <API_NAME> [json]",
	Short: "Attach as a frame and make one call",
	Long: `Attaches to the shell as a frame, sends one request and prints the reply.

  shellbridge call USER_GET_INFO
  shellbridge call GET_LANGUAGE
  shellbridge call EVENT_BUS --event ping --data '{"x":1}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildCall(args, callEvent, callData)
		if err != nil {
			return err
		}

		cfg, log, closer, err := loadRuntime("cmd.call")
		if err != nil {
			return err
		}
		defer closer.Close()
		callFlags.apply(&cfg.Client)

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Client.CallTimeoutSeconds)*time.Second)
		defer cancel()

		c, err := dialShell(ctx, cfg.Client)
		if err != nil {
			return err
		}
		defer c.Close()

		log.Debug("Sending call", "api", req.api, "event", req.event)
		reply, err := req.send(ctx, c)
		if err != nil {
			return fmt.Errorf("call %s: %w", req.api, err)
		}

		out, err := json.MarshalIndent(reply, "", "  ")
		if err != nil {
			return fmt.Errorf("encode reply: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		if !reply.Success {
			return fmt.Errorf("shell replied: %s", reply.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callFlags.register(callCmd)
	callCmd.Flags().StringVarP(&callEvent, "event", "e", "", "event name for EVENT_BUS calls")
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "JSON data sent with the call")
}

type callRequest struct {
	api   string
	event string
	data  json.RawMessage
}

// buildCall resolves the request from positional args and flags. --data
// wins over a positional JSON argument.
func buildCall(args []string, event string, data string) (callRequest, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return callRequest{}, errors.New("api name is required")
	}

	req := callRequest{
		api:   strings.ToUpper(strings.TrimSpace(args[0])),
		event: strings.TrimSpace(event),
	}

	raw := strings.TrimSpace(data)
	if raw == "" && len(args) > 1 {
		raw = strings.TrimSpace(args[1])
	}
	if raw != "" {
		if !json.Valid([]byte(raw)) {
			return callRequest{}, fmt.Errorf("data is not valid JSON: %s", raw)
		}
		req.data = json.RawMessage(raw)
	}

	if req.api == string(protocol.APIEventBus) && req.event == "" {
		return callRequest{}, errors.New("EVENT_BUS calls need --event")
	}
	if req.api != string(protocol.APIEventBus) && req.event != "" {
		return callRequest{}, fmt.Errorf("--event only applies to %s", protocol.APIEventBus)
	}

	return req, nil
}

func (r callRequest) send(ctx context.Context, c *client.Client) (protocol.Envelope, error) {
	var data any
	if len(r.data) > 0 {
		data = r.data
	}
	if r.event != "" {
		return c.CallEvent(ctx, r.event, data)
	}
	return c.Call(ctx, r.api, data)
}

func dialShell(ctx context.Context, cfg config.ClientConfig) (*client.Client, error) {
	c, err := client.Dial(ctx, client.Options{
		URL:    cfg.URL,
		Origin: cfg.Origin,
		Src:    cfg.Src,
	})
	if err != nil {
		return nil, fmt.Errorf("attach to shell at %s: %w", cfg.URL, err)
	}
	return c, nil
}
