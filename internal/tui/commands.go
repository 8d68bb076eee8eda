package tui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"cortex/internal/conversation"
)

func (m *Model) refreshKnowledge() tea.Cmd {
	ctx := m.ctx
	panel := m.deps.Knowledge
	return func() tea.Msg {
		return knowledgeMsg{err: panel.Refresh(ctx)}
	}
}

func (m *Model) refreshAudit() tea.Cmd {
	ctx := m.ctx
	view := m.deps.Settings
	return func() tea.Msg {
		return auditMsg{err: view.Refresh(ctx)}
	}
}

// send applies the optimistic half of a chat turn right away and hands the
// network half to a command.
func (m *Model) send() tea.Cmd {
	turn, err := m.deps.Chat.Begin(m.input.Value())
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage):
		return nil
	case errors.Is(err, conversation.ErrBusy):
		m.status = "Cortex is still answering."
		return nil
	case err != nil:
		m.status = err.Error()
		return nil
	}
	m.input.Reset()
	m.status = ""

	ctx := m.ctx
	chat := m.deps.Chat
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return chatDoneMsg{err: chat.Complete(ctx, turn)}
	})
}

func (m *Model) openHistory() tea.Cmd {
	ctx := m.ctx
	chat := m.deps.Chat
	return func() tea.Msg {
		return historyMsg{err: chat.OpenHistory(ctx)}
	}
}

func (m *Model) loadConversation(id uint) tea.Cmd {
	ctx := m.ctx
	chat := m.deps.Chat
	return func() tea.Msg {
		return loadedMsg{err: chat.LoadConversation(ctx, id)}
	}
}

func (m *Model) upload(path string) tea.Cmd {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	ctx := m.ctx
	panel := m.deps.Knowledge
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return ingestMsg{err: fmt.Errorf("open %s: %w", path, err)}
		}
		defer f.Close()
		return ingestMsg{err: panel.Upload(ctx, filepath.Base(path), f)}
	})
}

func (m *Model) crawl(url string) tea.Cmd {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	ctx := m.ctx
	panel := m.deps.Knowledge
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return ingestMsg{err: panel.Crawl(ctx, url)}
	})
}

// startReveals begins the typewriter for every reply still flagged to
// animate.
func (m *Model) startReveals() tea.Cmd {
	var cmds []tea.Cmd
	for _, msg := range m.deps.Chat.Snapshot().Messages {
		if msg.Animate && msg.Content != "" {
			cmds = append(cmds, m.reveal.start(msg.ID))
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) advanceReveal(tick revealTickMsg) tea.Cmd {
	total := -1
	for _, msg := range m.deps.Chat.Snapshot().Messages {
		if msg.ID == tick.id {
			total = len([]rune(msg.Content))
			break
		}
	}
	if total < 0 {
		m.reveal.drop(tick.id)
		return nil
	}
	cmd, done := m.reveal.advance(tick, total)
	if done {
		m.deps.Chat.MarkRevealed(tick.id)
	}
	return cmd
}

// stopReveals cancels pending ticks and shows the interrupted replies in
// full.
func (m *Model) stopReveals() {
	for _, id := range m.reveal.stop() {
		m.deps.Chat.MarkRevealed(id)
	}
}

// lastReply is the newest system message, used for copying and citations.
func lastReply(msgs []conversation.Message) (conversation.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleSystem {
			return msgs[i], true
		}
	}
	return conversation.Message{}, false
}
