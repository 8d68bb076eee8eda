package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// revealTickMsg advances the typewriter for one message. Ticks carrying an
// old generation are ignored.
type revealTickMsg struct {
	id  string
	gen int
}

// typewriter tracks how many runes of each animating reply are on screen.
type typewriter struct {
	interval time.Duration
	step     int
	shown    map[string]int
	gen      int
}

func newTypewriter(interval time.Duration) *typewriter {
	if interval <= 0 {
		interval = 5 * time.Millisecond
	}
	return &typewriter{interval: interval, step: 1, shown: make(map[string]int)}
}

// start begins revealing id unless it is already running.
func (t *typewriter) start(id string) tea.Cmd {
	if _, ok := t.shown[id]; ok {
		return nil
	}
	t.shown[id] = 0
	return t.tick(id)
}

func (t *typewriter) tick(id string) tea.Cmd {
	gen := t.gen
	return tea.Tick(t.interval, func(time.Time) tea.Msg {
		return revealTickMsg{id: id, gen: gen}
	})
}

// advance moves id forward by one step. done reports that the whole text is
// visible and the entry was dropped.
func (t *typewriter) advance(msg revealTickMsg, total int) (cmd tea.Cmd, done bool) {
	if msg.gen != t.gen {
		return nil, false
	}
	n, ok := t.shown[msg.id]
	if !ok {
		return nil, false
	}
	n += t.step
	if n >= total {
		delete(t.shown, msg.id)
		return nil, true
	}
	t.shown[msg.id] = n
	return t.tick(msg.id), false
}

// stop cancels every pending reveal and returns the ids that were running.
func (t *typewriter) stop() []string {
	t.gen++
	ids := make([]string, 0, len(t.shown))
	for id := range t.shown {
		ids = append(ids, id)
	}
	t.shown = make(map[string]int)
	return ids
}

// visible returns the part of text currently on screen for id.
func (t *typewriter) visible(id, text string) string {
	n, ok := t.shown[id]
	if !ok {
		return text
	}
	runes := []rune(text)
	if n > len(runes) {
		n = len(runes)
	}
	return string(runes[:n])
}

func (t *typewriter) drop(id string) {
	delete(t.shown, id)
}

func (t *typewriter) running(id string) bool {
	_, ok := t.shown[id]
	return ok
}
