// Package tui is the interactive task file editor.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nachoal/simple-batch-go/task"
	"github.com/nachoal/simple-batch-go/tui/styles"
)

// Form field order for create/edit
const (
	fieldName = iota
	fieldPrompt
	fieldImages
	fieldModel
)

// Bulk form field order
const (
	bulkPrefix = iota
	bulkPrompt
	bulkModel
)

// Manager lists, creates, edits and deletes the tasks in a task store
type Manager struct {
	store        *task.Store
	defaultModel string
	styles       *styles.Styles
	keys         KeyMap
	help         help.Model

	tasks  []task.Task
	images []string
	cursor int

	mode    mode
	form    *form
	editing int // index being edited, -1 when creating

	status    string
	statusErr bool

	width  int
	height int
}

// NewManager creates a task manager over store, drawn with the named theme
func NewManager(store *task.Store, defaultModel, theme string) *Manager {
	if defaultModel == "" {
		defaultModel = task.DefaultModel
	}
	m := &Manager{
		store:        store,
		defaultModel: defaultModel,
		styles:       styles.NewStyles(styles.GetTheme(theme)),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		editing:      -1,
		width:        80,
		height:       24,
	}
	m.reload()
	return m
}

// Tasks returns the tasks as last loaded from the store
func (m *Manager) Tasks() []task.Task {
	return m.tasks
}

func (m *Manager) Init() tea.Cmd {
	return nil
}

func (m *Manager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeForm, modeBulk:
			return m, m.updateForm(msg)
		case modeConfirmDelete:
			m.confirmDelete(msg)
			return m, nil
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m *Manager) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.New):
		m.openTaskForm(-1)

	case key.Matches(msg, m.keys.Edit):
		if len(m.tasks) == 0 {
			m.setStatus("no task to edit", true)
			break
		}
		m.openTaskForm(m.cursor)

	case key.Matches(msg, m.keys.Delete):
		if len(m.tasks) == 0 {
			m.setStatus("no task to delete", true)
			break
		}
		m.mode = modeConfirmDelete

	case key.Matches(msg, m.keys.Import):
		n, err := m.store.ImportExample()
		if err != nil {
			m.setStatus(err.Error(), true)
			break
		}
		m.reload()
		m.setStatus(fmt.Sprintf("imported %d example task(s)", n), false)

	case key.Matches(msg, m.keys.Backup):
		path, err := m.store.Backup()
		if err != nil {
			m.setStatus(err.Error(), true)
			break
		}
		m.setStatus("backed up to "+path, false)

	case key.Matches(msg, m.keys.Bulk):
		m.reloadImages()
		if len(m.images) == 0 {
			m.setStatus("no images available; put images in "+m.store.ImagesDir(), true)
			break
		}
		m.form = newForm(fmt.Sprintf("Bulk create (%d images)", len(m.images)), []formField{
			{label: "Name prefix"},
			{label: "Prompt"},
			{label: "Model", placeholder: m.defaultModel},
		})
		m.mode = modeBulk

	case key.Matches(msg, m.keys.Reload):
		m.reload()
		m.setStatus(fmt.Sprintf("loaded %d task(s)", len(m.tasks)), false)
	}

	return m, nil
}

func (m *Manager) openTaskForm(index int) {
	m.reloadImages()
	m.editing = index

	if index < 0 {
		m.form = newForm("New task", []formField{
			{label: "Name"},
			{label: "Prompt"},
			{label: "Images (numbers, comma separated, blank for none)"},
			{label: "Model", placeholder: m.defaultModel},
		})
	} else {
		t := m.tasks[index]
		m.form = newForm("Edit task "+t.Name, []formField{
			{label: "Name", value: t.Name},
			{label: "Prompt", value: t.Prompt},
			{label: "Images (numbers, comma separated, blank keeps current)", placeholder: strings.Join(t.Images, ", ")},
			{label: "Model", value: t.Model, placeholder: m.defaultModel},
		})
	}
	m.mode = modeForm
}

func (m *Manager) updateForm(msg tea.KeyMsg) tea.Cmd {
	submitted, cancelled, cmd := m.form.update(msg)
	switch {
	case cancelled:
		m.closeForm()
		m.setStatus("cancelled", false)
	case submitted && m.mode == modeBulk:
		m.submitBulk()
	case submitted:
		m.submitTask()
	}
	return cmd
}

func (m *Manager) submitTask() {
	v := m.form.values()
	editing := m.editing >= 0

	var current task.Task
	if editing {
		current = m.tasks[m.editing]
	}

	images, ok := resolveImages(v[fieldImages], m.images, current.Images, editing)
	t := task.Task{
		Name:   firstNonEmpty(v[fieldName], current.Name),
		Prompt: firstNonEmpty(v[fieldPrompt], current.Prompt),
		Images: images,
		Model:  firstNonEmpty(v[fieldModel], current.Model, m.defaultModel),
	}
	if t.Images == nil {
		t.Images = []string{}
	}

	var err error
	if editing {
		err = m.store.Update(m.editing, t)
	} else {
		err = m.store.Add(t)
	}
	m.closeForm()
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.reload()

	verb := "added"
	if editing {
		verb = "updated"
	}
	msg := fmt.Sprintf("%s task %s", verb, t.Name)
	if !ok {
		if editing {
			msg += " (invalid image selection, kept current images)"
		} else {
			msg += " (invalid image selection, no images added)"
		}
	}
	m.setStatus(msg, false)
	if !editing {
		m.cursor = len(m.tasks) - 1
	}
}

func (m *Manager) submitBulk() {
	v := m.form.values()
	m.closeForm()

	prefix := firstNonEmpty(v[bulkPrefix], "task")
	n, err := m.store.BulkCreate(prefix, v[bulkPrompt], firstNonEmpty(v[bulkModel], m.defaultModel))
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.reload()
	m.setStatus(fmt.Sprintf("created %d task(s)", n), false)
}

func (m *Manager) confirmDelete(msg tea.KeyMsg) {
	m.mode = modeList
	if s := msg.String(); s != "y" && s != "Y" {
		m.setStatus("delete cancelled", false)
		return
	}

	removed, err := m.store.Delete(m.cursor)
	if err != nil {
		m.setStatus(err.Error(), true)
		return
	}
	m.reload()
	m.setStatus("deleted task "+removed.Name, false)
}

func (m *Manager) closeForm() {
	m.form = nil
	m.editing = -1
	m.mode = modeList
}

func (m *Manager) reload() {
	tasks, err := m.store.Load()
	if err != nil {
		m.tasks = nil
		m.setStatus(err.Error(), true)
	} else {
		m.tasks = tasks
	}
	if m.cursor >= len(m.tasks) {
		m.cursor = max(len(m.tasks)-1, 0)
	}
	m.reloadImages()
}

func (m *Manager) reloadImages() {
	images, err := m.store.ListImages()
	if err != nil {
		m.images = nil
		return
	}
	m.images = images
}

func (m *Manager) setStatus(msg string, isErr bool) {
	m.status = msg
	m.statusErr = isErr
}

func (m *Manager) View() string {
	s := m.styles
	var b strings.Builder

	switch m.mode {
	case modeForm, modeBulk:
		b.WriteString(m.form.view(s))
		if len(m.images) > 0 {
			b.WriteString("\n\n")
			b.WriteString(m.renderImages())
		}
		return b.String()
	}

	b.WriteString(s.Title.Render("Batch task manager"))
	b.WriteString("\n")
	b.WriteString(s.Label.Render(fmt.Sprintf("%d task(s)  |  task file: %s  |  images: %s",
		len(m.tasks), m.store.Path(), m.store.ImagesDir())))
	b.WriteString("\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(s.Normal.Render("No tasks yet. Press n to create one or i to import the example."))
		b.WriteString("\n")
	}
	for i, t := range m.tasks {
		cursor := "  "
		style := s.Normal
		if i == m.cursor {
			cursor = "▸ "
			style = s.Selected
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%d. %s [%s] - %d image(s)", cursor, i+1, t.Name, t.Model, len(t.Images))))
		b.WriteString("\n")
		b.WriteString(s.Detail.Render(truncate(strings.ReplaceAll(t.Prompt, "\n", " "), 60)))
		b.WriteString("\n")
	}

	if m.mode == modeConfirmDelete && m.cursor < len(m.tasks) {
		b.WriteString("\n")
		b.WriteString(s.Warning.Render(fmt.Sprintf("Delete task '%s'? [y/N]", m.tasks[m.cursor].Name)))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(s.RenderStatus(m.status, m.statusErr))
		b.WriteString("\n")
	}

	b.WriteString(s.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	return b.String()
}

func (m *Manager) renderImages() string {
	s := m.styles
	var b strings.Builder
	b.WriteString(s.Subtitle.Render("Available images"))
	b.WriteString("\n")
	for i, img := range m.images {
		b.WriteString(s.Label.Render(fmt.Sprintf("%d. %s", i+1, img)))
		b.WriteString("\n")
	}
	return s.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
