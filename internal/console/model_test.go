package console

import (
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/sipchat/internal/event"
	"github.com/Iron-Ham/sipchat/internal/negotiation"
)

type capture struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capture) Publish(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capture) take() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	evs := c.events
	c.events = nil
	return evs
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func key(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func feed(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestLineMode(t *testing.T) {
	inbox := &capture{}
	m := feed(NewModel(inbox, ""), promptMsg("alice@example.com> "))

	m = feed(m, runes("h"), runes("i"), key(tea.KeyEnter))

	evs := inbox.take()
	if len(evs) != 1 || evs[0].Kind != event.KindInputLine || evs[0].Line() != "hi" {
		t.Fatalf("events = %v, want one input line \"hi\"", evs)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
	if !strings.Contains(m.View(), "alice@example.com> ") {
		t.Errorf("view = %q", m.View())
	}
}

func TestLineMode_Shortcuts(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want rune
	}{
		{"switch", key(tea.KeyCtrlN), 0x0e},
		{"numpad", key(tea.KeyCtrlAt), 0x00},
		{"hold", key(tea.KeyCtrlH), 0x08},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := &capture{}
			feed(NewModel(inbox, ""), tt.msg)

			evs := inbox.take()
			if len(evs) != 1 || evs[0].Kind != event.KindInputKey || evs[0].Key() != tt.want {
				t.Errorf("events = %v, want key %q", evs, tt.want)
			}
		})
	}
}

func TestLineMode_EOF(t *testing.T) {
	inbox := &capture{}
	m := NewModel(inbox, "")

	m = feed(m, runes("x"), key(tea.KeyCtrlD))
	if evs := inbox.take(); len(evs) != 0 {
		t.Errorf("Ctrl-D with pending input produced %v", evs)
	}

	m.input.Reset()
	feed(m, key(tea.KeyCtrlD), key(tea.KeyCtrlC))
	evs := inbox.take()
	if len(evs) != 2 || evs[0].Kind != event.KindInputEOF || evs[1].Kind != event.KindInputEOF {
		t.Errorf("events = %v, want two EOFs", evs)
	}
}

func TestKeyMode(t *testing.T) {
	inbox := &capture{}
	m := feed(NewModel(inbox, "12"), keyModeMsg(true), promptMsg("> "))

	feed(m, runes("5"), key(tea.KeySpace), key(tea.KeyEsc), key(tea.KeyEnter), key(tea.KeyCtrlD), key(tea.KeyCtrlAt))

	var got []rune
	for _, ev := range inbox.take() {
		if ev.Kind != event.KindInputKey {
			t.Fatalf("unexpected %s in key mode", ev.Kind)
		}
		got = append(got, ev.Key())
	}
	want := []rune{'5', ' ', 0x1b, '\r', 0x04, 0x00}
	if string(got) != string(want) {
		t.Errorf("keys = %q, want %q", got, want)
	}
}

func TestQuestions(t *testing.T) {
	inbox := &capture{}
	first := &question{text: "Accept? (y/n)", answers: []rune{'y', 'n', negotiation.Escape}, reply: make(chan rune, 1)}
	second := &question{text: "Add audio? (y/n)", answers: []rune{'y', 'n', negotiation.Escape}, reply: make(chan rune, 1)}

	m := feed(NewModel(inbox, ""), askMsg{q: first}, askMsg{q: second})
	if !strings.Contains(m.View(), "Accept? (y/n)") {
		t.Fatalf("view = %q, want first question", m.View())
	}

	m = feed(m, runes("x"))
	select {
	case r := <-first.reply:
		t.Fatalf("invalid answer accepted: %q", r)
	default:
	}

	m = feed(m, runes("y"))
	if r := <-first.reply; r != 'y' {
		t.Errorf("first answer = %q", r)
	}
	if !strings.Contains(m.View(), "Add audio?") {
		t.Fatalf("view = %q, want second question", m.View())
	}

	m = feed(m, key(tea.KeyEsc))
	if r := <-second.reply; r != negotiation.Escape {
		t.Errorf("second answer = %q, want escape", r)
	}
	if len(m.questions) != 0 {
		t.Errorf("questions left: %d", len(m.questions))
	}
	if evs := inbox.take(); len(evs) != 0 {
		t.Errorf("answers leaked as input events: %v", evs)
	}
}

func TestQuestions_Withdraw(t *testing.T) {
	q := &question{text: "Accept?", answers: []rune{'y'}, reply: make(chan rune, 1)}
	m := feed(NewModel(&capture{}, ""), promptMsg("p> "), askMsg{q: q}, withdrawMsg{q: q})

	if len(m.questions) != 0 {
		t.Fatal("question not withdrawn")
	}
	if !strings.Contains(m.View(), "p> ") {
		t.Errorf("view = %q, want prompt back", m.View())
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"unknown width", "hello world", 0, "hello world"},
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"clipped", "hello world", 8, "hello..."},
		{"tiny width", "hello", 2, "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fit(tt.input, tt.width); got != tt.want {
				t.Errorf("fit(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}

	styled := lipgloss.NewStyle().Bold(true).Render("a rather long prompt")
	if w := lipgloss.Width(fit(styled, 10)); w > 10 {
		t.Errorf("styled fit width = %d, want <= 10", w)
	}
}

func TestWindowSize(t *testing.T) {
	prompt := "Chat/Audio to Bob Example (bob@very-long-domain-name.example.org) [CONNECTING]: "
	m := feed(NewModel(&capture{}, ""), promptMsg(prompt), tea.WindowSizeMsg{Width: 60, Height: 20})

	if m.input.Width != minInputWidth {
		t.Errorf("input width = %d, want %d", m.input.Width, minInputWidth)
	}
	if !strings.Contains(m.View(), "...") {
		t.Errorf("long prompt should be clipped, view = %q", m.View())
	}

	m = feed(m, promptMsg("alice> "))
	if want := 60 - len("alice> ") - 1; m.input.Width != want {
		t.Errorf("input width = %d, want %d", m.input.Width, want)
	}
	if strings.Contains(m.View(), "...") {
		t.Errorf("short prompt should not be clipped, view = %q", m.View())
	}
}
