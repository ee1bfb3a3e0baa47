package console

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shellbridge/pkg/protocol"
)

// Caller is the frame connection the console drives.
type Caller interface {
	Call(ctx context.Context, apiName string, data any) (protocol.Envelope, error)
	CallEvent(ctx context.Context, eventName string, eventData any) (protocol.Envelope, error)
	Broadcasts() <-chan protocol.Broadcast
}

// Info is shown in the console header.
type Info struct {
	URL    string
	Origin string
	Src    string
}

func Run(ctx context.Context, caller Caller, info Info) error {
	model := newModel(ctx, caller, info)
	program := tea.NewProgram(model, tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(renderGoodbyeBanner())
	return nil
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("24")).
		Padding(1, 2)

	return style.Render("frame detached from shell")
}

func sendCommandCmd(ctx context.Context, caller Caller, cmd command) tea.Cmd {
	return func() tea.Msg {
		var data any
		if len(cmd.data) > 0 {
			data = cmd.data
		}

		var (
			reply protocol.Envelope
			err   error
		)
		if cmd.event != "" {
			reply, err = caller.CallEvent(ctx, cmd.event, data)
		} else {
			reply, err = caller.Call(ctx, cmd.api, data)
		}
		return replyMsg{reply: reply, err: err}
	}
}

// waitBroadcastCmd blocks for the next shell push. A closed channel ends the
// subscription.
func waitBroadcastCmd(ch <-chan protocol.Broadcast) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		push, ok := <-ch
		if !ok {
			return detachedMsg{}
		}
		return broadcastMsg{push: push}
	}
}
