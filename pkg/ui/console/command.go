package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shellbridge/pkg/protocol"
)

// command is one parsed console line.
type command struct {
	api   string
	event string
	data  json.RawMessage
}

func (c command) String() string {
	var b strings.Builder
	b.WriteString(c.api)
	if c.event != "" {
		b.WriteString(" ")
		b.WriteString(c.event)
	}
	if len(c.data) > 0 {
		b.WriteString(" ")
		b.Write(c.data)
	}
	return b.String()
}

// parseCommand reads "API_NAME [json]" or "EVENT_BUS <event> [json]". API
// names are passed through unchecked so unknown names reach the shell.
func parseCommand(input string) (command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return command{}, errors.New("empty command")
	}

	api, rest, _ := strings.Cut(input, " ")
	cmd := command{api: strings.ToUpper(api)}
	rest = strings.TrimSpace(rest)

	if cmd.api == string(protocol.APIEventBus) {
		event, payload, _ := strings.Cut(rest, " ")
		if event == "" {
			return command{}, errors.New("usage: EVENT_BUS <event> [json]")
		}
		cmd.event = event
		rest = strings.TrimSpace(payload)
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return command{}, fmt.Errorf("data is not valid JSON: %s", rest)
		}
		cmd.data = json.RawMessage(rest)
	}

	return cmd, nil
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}

// prettyJSON indents raw JSON for display; invalid input is returned as-is.
func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
