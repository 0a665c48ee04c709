package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nachoal/simple-batch-go/tui/styles"
)

// formField describes one input line
type formField struct {
	label       string
	value       string
	placeholder string
}

// form is a vertical stack of text inputs. Enter on the last field submits,
// esc cancels.
type form struct {
	title  string
	labels []string
	inputs []textinput.Model
	focus  int
}

func newForm(title string, fields []formField) *form {
	f := &form{title: title}
	for _, field := range fields {
		ti := textinput.New()
		ti.Placeholder = field.placeholder
		ti.SetValue(field.value)
		ti.CharLimit = 2000
		ti.Width = 60
		ti.Prompt = "> "
		f.labels = append(f.labels, field.label)
		f.inputs = append(f.inputs, ti)
	}
	if len(f.inputs) > 0 {
		f.inputs[0].Focus()
	}
	return f
}

// update routes a key to the focused input. It reports whether the form was
// submitted or cancelled.
func (f *form) update(msg tea.KeyMsg) (submitted, cancelled bool, cmd tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		return false, true, nil
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return false, false, nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return false, false, nil
	case "enter":
		if f.focus == len(f.inputs)-1 {
			return true, false, nil
		}
		f.setFocus(f.focus + 1)
		return false, false, nil
	}

	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return false, false, cmd
}

func (f *form) setFocus(i int) {
	n := len(f.inputs)
	i = (i%n + n) % n
	f.inputs[f.focus].Blur()
	f.focus = i
	f.inputs[f.focus].Focus()
}

// values returns the trimmed input values in field order
func (f *form) values() []string {
	out := make([]string, len(f.inputs))
	for i, in := range f.inputs {
		out[i] = strings.TrimSpace(in.Value())
	}
	return out
}

func (f *form) view(s *styles.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render(f.title))
	b.WriteString("\n")
	for i, in := range f.inputs {
		label := s.Label
		if i == f.focus {
			label = s.Selected
		}
		b.WriteString(label.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(in.View())
		b.WriteString("\n\n")
	}
	b.WriteString(s.Help.Render("[Tab/↓] Next  [Shift+Tab/↑] Prev  [Enter] Next/Save  [Esc] Cancel"))
	return b.String()
}
