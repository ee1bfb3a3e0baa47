package console

import "github.com/charmbracelet/lipgloss"

// theme groups reusable styles for console regions.
type theme struct {
	header         lipgloss.Style
	headerMeta     lipgloss.Style
	divider        lipgloss.Style
	bootLine       lipgloss.Style
	bootDone       lipgloss.Style
	requestBox     lipgloss.Style
	requestTitle   lipgloss.Style
	replyBox       lipgloss.Style
	replyTitle     lipgloss.Style
	failureBox     lipgloss.Style
	failureTitle   lipgloss.Style
	broadcastBox   lipgloss.Style
	broadcastTitle lipgloss.Style
	errorBox       lipgloss.Style
	errorTitle     lipgloss.Style
	status         lipgloss.Style
	statusBusy     lipgloss.Style
	statusErr      lipgloss.Style
	hint           lipgloss.Style
	inputLabel     lipgloss.Style
	input          lipgloss.Style
	viewport       lipgloss.Style
}

func card(border lipgloss.Border, accent string, background string) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(lipgloss.Color(accent)).
		Background(lipgloss.Color(background)).
		Padding(0, 1)
}

func badge(foreground string, background string) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(foreground)).
		Background(lipgloss.Color(background)).
		Padding(0, 1)
}

func defaultTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("24")),
		headerMeta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("153")),
		divider: lipgloss.NewStyle().
			Foreground(lipgloss.Color("31")),
		bootLine: lipgloss.NewStyle().
			Foreground(lipgloss.Color("110")),
		bootDone: lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true),
		requestBox:     card(lipgloss.RoundedBorder(), "214", "235"),
		requestTitle:   badge("16", "214"),
		replyBox:       card(lipgloss.DoubleBorder(), "44", "234"),
		replyTitle:     badge("16", "44"),
		failureBox:     card(lipgloss.DoubleBorder(), "208", "236").Foreground(lipgloss.Color("223")),
		failureTitle:   badge("16", "208"),
		broadcastBox:   card(lipgloss.RoundedBorder(), "141", "236").Foreground(lipgloss.Color("252")),
		broadcastTitle: badge("16", "141"),
		errorBox:       card(lipgloss.DoubleBorder(), "203", "52").Foreground(lipgloss.Color("203")),
		errorTitle:     badge("231", "160"),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Bold(true),
		statusBusy: lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true),
		statusErr: lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		inputLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")),
		input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("67")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		viewport: lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("31")).
			Background(lipgloss.Color("233")).
			Padding(0, 1),
	}
}
