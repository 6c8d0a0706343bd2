package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys to the model and reports whether the last one quit.
func press(m StylePickerModel, keys ...string) (StylePickerModel, bool) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(StylePickerModel)
	}
	return m, cmd != nil
}

func TestStylePickerNavigation(t *testing.T) {
	m := NewStylePickerModel()

	m, quit := press(m, "down", "j", "down", "down", "down")
	if quit {
		t.Fatal("navigation keys should not quit")
	}
	if m.Cursor != len(m.Styles)-1 {
		t.Errorf("cursor = %d, want clamped to %d", m.Cursor, len(m.Styles)-1)
	}

	m, _ = press(m, "up", "k", "up", "up", "up")
	if m.Cursor != 0 {
		t.Errorf("cursor = %d, want clamped to 0", m.Cursor)
	}
}

func TestStylePickerSelect(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"enter on first", []string{"enter"}, "Modern"},
		{"move then enter", []string{"down", "down", "enter"}, "Nordic"},
		{"digit jump", []string{"4"}, "Japanese"},
		{"quit", []string{"down", "q"}, ""},
		{"escape", []string{"esc"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, quit := press(NewStylePickerModel(), tt.keys...)
			if !quit {
				t.Error("expected the picker to quit")
			}
			if m.Selected != tt.want {
				t.Errorf("Selected = %q, want %q", m.Selected, tt.want)
			}
		})
	}
}

func TestStylePickerIgnoresOutOfRangeDigit(t *testing.T) {
	m, quit := press(NewStylePickerModel(), "9")
	if quit || m.Selected != "" {
		t.Errorf("digit 9 selected %q (quit=%v) with only %d styles", m.Selected, quit, len(m.Styles))
	}
}

func TestStylePickerView(t *testing.T) {
	m, _ := press(NewStylePickerModel(), "down")
	view := m.View()

	for _, name := range []string{"Modern", "Classic", "Nordic", "Japanese", "#a0522d"} {
		if !strings.Contains(view, name) {
			t.Errorf("view missing %q", name)
		}
	}
	if !strings.Contains(view, "▸") {
		t.Error("view has no cursor marker")
	}
}
