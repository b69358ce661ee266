package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/malharro-cms/internal/model"
	"github.com/nhle/malharro-cms/internal/notice"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the detail view content area.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// DimmedStyle renders read notifications.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadMarkStyle renders the dot in front of unread notifications.
var UnreadMarkStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue)

// EmptyStyle centers placeholder text in an area of the given size.
func EmptyStyle(width, height int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(ColorGray)
}

// TypeLabelStyle returns a color-coded style for a notification type.
func TypeLabelStyle(t model.NotificationType) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch t {
	case model.NotificationWorkItem:
		return base.Foreground(ColorMagenta)
	case model.NotificationAgenda:
		return base.Foreground(ColorOrange)
	case model.NotificationSystem:
		return base.Foreground(ColorBlue)
	default:
		return base.Foreground(ColorGray)
	}
}

// TypeLabel is the short label shown next to a notification.
func TypeLabel(t model.NotificationType) string {
	switch t {
	case model.NotificationWorkItem:
		return "USINA"
	case model.NotificationAgenda:
		return "AGENDA"
	default:
		return "SISTEMA"
	}
}

// NoticeStyle returns the status bar style for a notice level.
func NoticeStyle(l notice.Level) lipgloss.Style {
	base := StatusBarStyle

	switch l {
	case notice.LevelSuccess:
		return base.Background(ColorGreen)
	case notice.LevelWarning:
		return base.Background(ColorYellow).Foreground(lipgloss.Color("#1A202C"))
	case notice.LevelError:
		return base.Background(ColorRed)
	default:
		return base
	}
}
