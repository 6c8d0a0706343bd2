package cli

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/matzehuels/restyle/pkg/style"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// stdinIsTerminal reports whether an interactive picker can be shown.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// =============================================================================
// StylePickerModel - Interactive style selection
// =============================================================================

// StylePickerModel is the bubbletea model for choosing a style.
type StylePickerModel struct {
	Styles   []style.Style
	Cursor   int
	Selected string
}

// NewStylePickerModel creates a picker over all named styles.
func NewStylePickerModel() StylePickerModel {
	return StylePickerModel{Styles: style.Styles()}
}

func (m StylePickerModel) Init() tea.Cmd {
	return nil
}

func (m StylePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Styles)-1 {
			m.Cursor++
		}
	case "enter", " ":
		m.Selected = m.Styles[m.Cursor].String()
		return m, tea.Quit
	default:
		// Digits jump straight to a style.
		if s := key.String(); len(s) == 1 && s[0] >= '1' && s[0] <= '9' {
			if i := int(s[0] - '1'); i < len(m.Styles) {
				m.Cursor = i
				m.Selected = m.Styles[i].String()
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m StylePickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Choose a style"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	for i, s := range m.Styles {
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		line := fmt.Sprintf("%s%d  %s %-10s", cursor, i+1, swatch(s), s.String())
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(listNormalStyle.Render(line))
		}
		b.WriteString("  ")
		b.WriteString(listDimStyle.Render(overlayHex(s)))
		b.WriteString("\n")
	}
	return b.String()
}

// pickStyle runs the picker and returns the chosen name, or "" when the
// user quit without choosing.
func pickStyle() (string, error) {
	final, err := tea.NewProgram(NewStylePickerModel()).Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(StylePickerModel)
	if !ok {
		return "", nil
	}
	return m.Selected, nil
}

// =============================================================================
// Helpers
// =============================================================================

// swatch renders a small block in the style's overlay colour.
func swatch(s style.Style) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(overlayHex(s))).Render("  ")
}

func overlayHex(s style.Style) string {
	c := s.Overlay()
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
