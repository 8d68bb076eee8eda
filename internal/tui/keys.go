package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"cortex/internal/conversation"
	"cortex/internal/knowledge"
	"cortex/internal/platform/browser"
	"cortex/internal/shell"
)

func (m *Model) dashboardKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	kn := m.deps.Knowledge.Snapshot()
	chat := m.deps.Chat.Snapshot()

	if kn.Modal != knowledge.ModalNone {
		return m.modalKey(msg, kn.Modal)
	}
	if kn.Inspector != nil {
		if key == "esc" || key == "q" {
			m.deps.Knowledge.CloseInspector()
		}
		return nil
	}
	if chat.HistoryOpen {
		return m.historyKey(key, chat)
	}

	switch key {
	case "ctrl+n":
		m.stopReveals()
		m.deps.Chat.NewConversation()
		m.status = ""
		return nil
	case "ctrl+r":
		return m.openHistory()
	case "ctrl+u":
		return m.openModal(knowledge.ModalUpload)
	case "ctrl+l":
		return m.openModal(knowledge.ModalURL)
	case "ctrl+p":
		return m.navigate(shell.ViewSettings)
	case "ctrl+o":
		return m.signOut()
	case "ctrl+y":
		m.copyLastReply(chat.Messages)
		return nil
	case "tab":
		return m.cycleFocus(chat.Messages)
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return cmd
	}

	switch m.focus {
	case focusKnowledge:
		return m.knowledgeKey(key, kn)
	case focusCitations:
		return m.citationKey(key, chat.Messages)
	}

	if key == "enter" {
		return m.send()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.deps.Chat.SetDraft(m.input.Value())
	return cmd
}

func (m *Model) cycleFocus(msgs []conversation.Message) tea.Cmd {
	switch m.focus {
	case focusInput:
		m.focus = focusKnowledge
	case focusKnowledge:
		if reply, ok := lastReply(msgs); ok && len(reply.Sources) > 0 {
			m.focus = focusCitations
			m.citationCursor = 0
		} else {
			m.focus = focusInput
		}
	default:
		m.focus = focusInput
	}
	if m.focus == focusInput {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) knowledgeKey(key string, kn knowledge.Snapshot) tea.Cmd {
	switch key {
	case "up", "k":
		if m.nodeCursor > 0 {
			m.nodeCursor--
		}
	case "down", "j":
		if m.nodeCursor < len(kn.Visible)-1 {
			m.nodeCursor++
		}
	case "enter":
		if m.nodeCursor < len(kn.Visible) {
			m.deps.Knowledge.Inspect(kn.Visible[m.nodeCursor])
		}
	case "f":
		m.deps.Knowledge.SetFilter(nextFilter(kn.Filter))
		m.nodeCursor = 0
	case "w":
		m.deps.Knowledge.SetWorkspace(nextWorkspace(kn.Workspace))
	case "r":
		return m.refreshKnowledge()
	case "esc":
		m.focus = focusInput
		return m.input.Focus()
	}
	return nil
}

func (m *Model) citationKey(key string, msgs []conversation.Message) tea.Cmd {
	reply, ok := lastReply(msgs)
	if !ok || len(reply.Sources) == 0 {
		m.focus = focusInput
		return m.input.Focus()
	}
	switch key {
	case "left", "h":
		if m.citationCursor > 0 {
			m.citationCursor--
		}
	case "right", "l":
		if m.citationCursor < len(reply.Sources)-1 {
			m.citationCursor++
		}
	case "enter":
		if m.citationCursor < len(reply.Sources) {
			m.openCitation(reply.Sources[m.citationCursor])
		}
	case "esc":
		m.focus = focusInput
		return m.input.Focus()
	}
	return nil
}

func (m *Model) openCitation(src string) {
	err := m.deps.Router.Route(src)
	switch {
	case errors.Is(err, browser.ErrCopied):
		m.status = "No browser available. Link copied to clipboard."
	case err != nil:
		m.logger.Printf("open citation %q: %v", src, err)
		m.status = "Could not open " + src
	default:
		m.status = ""
		if !isLink(src) && m.deps.Knowledge.Snapshot().Inspector == nil {
			m.status = fmt.Sprintf("No knowledge node matches %q.", src)
		}
	}
}

func (m *Model) historyKey(key string, chat conversation.Snapshot) tea.Cmd {
	switch key {
	case "up", "k":
		if m.historyCursor > 0 {
			m.historyCursor--
		}
	case "down", "j":
		if m.historyCursor < len(chat.History)-1 {
			m.historyCursor++
		}
	case "enter":
		if m.historyCursor < len(chat.History) {
			return m.loadConversation(chat.History[m.historyCursor].ID)
		}
	case "n", "ctrl+n":
		m.stopReveals()
		m.deps.Chat.NewConversation()
	case "esc", "q":
		m.deps.Chat.CloseHistory()
	}
	return nil
}

func (m *Model) openModal(kind knowledge.Modal) tea.Cmd {
	m.deps.Knowledge.OpenModal(kind)
	m.modal.Reset()
	m.modal.Placeholder = "/path/to/file.pdf"
	if kind == knowledge.ModalURL {
		m.modal.Placeholder = "https://"
	}
	m.input.Blur()
	return m.modal.Focus()
}

func (m *Model) modalKey(msg tea.KeyMsg, kind knowledge.Modal) tea.Cmd {
	if m.deps.Knowledge.Snapshot().Uploading {
		return nil
	}
	switch msg.String() {
	case "esc":
		m.deps.Knowledge.CloseModal()
		m.modal.Reset()
		m.modal.Blur()
		return m.input.Focus()
	case "enter":
		if kind == knowledge.ModalURL {
			return m.crawl(m.modal.Value())
		}
		return m.upload(m.modal.Value())
	}
	var cmd tea.Cmd
	m.modal, cmd = m.modal.Update(msg)
	if kind == knowledge.ModalURL {
		m.deps.Knowledge.SetURLInput(m.modal.Value())
	}
	return cmd
}

func (m *Model) copyLastReply(msgs []conversation.Message) {
	reply, ok := lastReply(msgs)
	if !ok || m.deps.Clipboard == nil {
		return
	}
	if err := m.deps.Clipboard.Copy(reply.Content); err != nil {
		m.logger.Printf("copy reply: %v", err)
		m.status = "Clipboard unavailable."
		return
	}
	m.status = "Reply copied to clipboard."
}

func (m *Model) settingsKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		return m.navigate(shell.ViewDashboard)
	case "ctrl+s":
		m.deps.Settings.SetDraft(m.persona.Value())
		if err := m.deps.Settings.Save(); err != nil {
			m.logger.Printf("save persona: %v", err)
			return nil
		}
		m.status = "Persona saved."
		return nil
	case "ctrl+r":
		return m.refreshAudit()
	case "ctrl+o":
		return m.signOut()
	}
	var cmd tea.Cmd
	m.persona, cmd = m.persona.Update(msg)
	m.deps.Settings.SetDraft(m.persona.Value())
	return cmd
}

func (m *Model) clampNodeCursor() {
	n := len(m.deps.Knowledge.Snapshot().Visible)
	if m.nodeCursor >= n {
		m.nodeCursor = max(n-1, 0)
	}
}

func nextFilter(f knowledge.Filter) knowledge.Filter {
	for i, candidate := range knowledge.Filters {
		if candidate == f {
			return knowledge.Filters[(i+1)%len(knowledge.Filters)]
		}
	}
	return knowledge.FilterAll
}

func nextWorkspace(name string) string {
	for i, candidate := range knowledge.Workspaces {
		if candidate == name {
			return knowledge.Workspaces[(i+1)%len(knowledge.Workspaces)]
		}
	}
	return knowledge.Workspaces[0]
}
