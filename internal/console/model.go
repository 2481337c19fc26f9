package console

import (
	"slices"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/negotiation"
)

// Line mode shortcuts delivered as key events.
var shortcutKeys = map[tea.KeyType]bool{
	tea.KeyCtrlN:  true, // switch session
	tea.KeyCtrlAt: true, // numpad (Ctrl-Space)
	tea.KeyCtrlH:  true, // toggle hold
}

// question is one pending yes/no style question.
type question struct {
	text    string
	answers []rune
	reply   chan rune
}

type (
	promptMsg   string
	keyModeMsg  bool
	printMsg    string
	askMsg      struct{ q *question }
	withdrawMsg struct{ q *question }
)

// Model is the console's bubbletea model. Every line, shortcut and key it
// reads is published as an input event; it never interprets them.
type Model struct {
	inbox     event.Publisher
	input     textinput.Model
	prompt    string
	keyMode   bool
	questions []*question
	width     int

	promptStyle   lipgloss.Style
	questionStyle lipgloss.Style
}

// NewModel creates a Model publishing to inbox.
func NewModel(inbox event.Publisher, promptColor string) Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Focus()

	promptStyle := lipgloss.NewStyle().Bold(true)
	if promptColor != "" {
		promptStyle = promptStyle.Foreground(lipgloss.Color(promptColor))
	}
	return Model{
		inbox:         inbox,
		input:         ti,
		promptStyle:   promptStyle,
		questionStyle: lipgloss.NewStyle().Bold(true),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case promptMsg:
		m.prompt = string(msg)
		m.sizeInput()
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.sizeInput()
		return m, nil
	case keyModeMsg:
		m.keyMode = bool(msg)
		return m, nil
	case printMsg:
		return m, tea.Println(string(msg))
	case askMsg:
		m.questions = append(m.questions, msg.q)
		return m, nil
	case withdrawMsg:
		m.questions = slices.DeleteFunc(m.questions, func(q *question) bool { return q == msg.q })
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.questions) > 0 {
		return m.answerKey(msg)
	}
	if m.keyMode {
		if msg.Type == tea.KeyCtrlC {
			m.inbox.Publish(event.NewInputEOF())
		} else if r, ok := keyRune(msg); ok {
			m.inbox.Publish(event.NewInputKey(r))
		}
		return m, nil
	}

	switch {
	case msg.Type == tea.KeyEnter:
		line := m.input.Value()
		m.input.Reset()
		m.inbox.Publish(event.NewInputLine(line))
		return m, nil
	case msg.Type == tea.KeyCtrlC,
		msg.Type == tea.KeyCtrlD && m.input.Value() == "":
		m.inbox.Publish(event.NewInputEOF())
		return m, nil
	case shortcutKeys[msg.Type]:
		m.inbox.Publish(event.NewInputKey(rune(msg.Type)))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// answerKey answers the oldest question if the key is one of its answers.
// Esc and Ctrl-D both mean the escape answer.
func (m Model) answerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r, ok := keyRune(msg)
	if !ok {
		return m, nil
	}
	if r == 0x1b {
		r = negotiation.Escape
	}
	q := m.questions[0]
	if !slices.Contains(q.answers, r) {
		return m, nil
	}
	m.questions = m.questions[1:]
	q.reply <- r

	echo := string(r)
	if r == negotiation.Escape {
		echo = "^D"
	}
	return m, tea.Println(q.text + " " + echo)
}

// keyRune maps a key to the rune delivered in key mode: printable runes as
// typed, control keys as their ASCII code.
func keyRune(msg tea.KeyMsg) (rune, bool) {
	switch {
	case msg.Type == tea.KeyRunes && len(msg.Runes) == 1:
		return msg.Runes[0], true
	case msg.Type == tea.KeySpace:
		return ' ', true
	case msg.Type >= 0 && msg.Type < 0x20:
		return rune(msg.Type), true
	}
	return 0, false
}

// minInputWidth is the number of columns kept for typing however long the
// prompt is.
const minInputWidth = 20

// sizeInput lets the input scroll within what the prompt leaves free.
func (m *Model) sizeInput() {
	if m.width <= 0 {
		return
	}
	m.input.Width = max(m.width-lipgloss.Width(m.prompt)-1, minInputWidth)
}

// View implements tea.Model.
func (m Model) View() string {
	if len(m.questions) > 0 {
		return fit(m.questionStyle.Render(m.questions[0].text)+" ", m.width)
	}
	if m.keyMode {
		return fit(m.promptStyle.Render(m.prompt), m.width)
	}
	prompt := m.promptStyle.Render(m.prompt)
	if m.width > 0 {
		prompt = fit(prompt, max(m.width-minInputWidth-1, 0))
	}
	return prompt + m.input.View()
}

// fit clips s to width terminal columns, ending in "..." when clipped.
// Escape sequences and wide characters are accounted for. A width of zero
// means the terminal size is not known yet.
func fit(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	if width <= 3 {
		return "..."
	}
	return ansi.Truncate(s, width, "...")
}
