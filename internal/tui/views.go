package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cortex/internal/client/gateway"
	"cortex/internal/conversation"
	"cortex/internal/knowledge"
	"cortex/internal/shell"
)

const banner = `
   ___ ___  ___ _____ _____  __
  / __/ _ \| _ \_   _| __\ \/ /
 | (_| (_) |   / | | | _| >  <
  \___\___/|_|_\ |_| |___/_/\_\`

func (m *Model) View() string {
	if !m.deps.Shell.SplashComplete() {
		return m.splashView()
	}
	var body string
	switch m.deps.Shell.View() {
	case shell.ViewDashboard:
		body = m.dashboardView()
	case shell.ViewSettings:
		body = m.settingsView()
	default:
		body = m.landingView()
	}
	if m.deps.Shell.MenuOpen() {
		body = lipgloss.JoinVertical(lipgloss.Left, menuView(m.deps.Shell.View()), body)
	}
	return body
}

func (m *Model) splashView() string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		titleStyle.Render(banner),
		"",
		m.spinner.View()+" "+mutedStyle.Render("establishing secure vector tunnel"),
		"",
		mutedStyle.Render("press any key"),
	)
	return m.center(content)
}

func (m *Model) landingView() string {
	f := &m.auth
	title := "Sign in"
	toggle := "ctrl+r: create an account"
	if f.register {
		title = "Create account"
		toggle = "ctrl+r: sign in instead"
	}

	lines := []string{
		titleStyle.Render(banner),
		mutedStyle.Render("Enterprise knowledge, answered with citations."),
		"",
		titleStyle.Render(title),
	}
	for _, idx := range f.order() {
		lines = append(lines, f.fields[idx].View())
	}
	lines = append(lines, "")
	switch {
	case f.busy:
		lines = append(lines, m.spinner.View()+" authenticating")
	case f.err != "":
		lines = append(lines, errorStyle.Render(f.err))
	case m.status != "":
		lines = append(lines, demoStyle.Render(m.status))
	}
	lines = append(lines, mutedStyle.Render("enter: next/submit  tab: switch field  "+toggle+"  ctrl+c: quit"))
	return m.center(modalStyle.Render(strings.Join(lines, "\n")))
}

func (m *Model) dashboardView() string {
	kn := m.deps.Knowledge.Snapshot()
	chat := m.deps.Chat.Snapshot()

	if kn.Modal != knowledge.ModalNone {
		return m.center(m.modalView(kn))
	}
	if kn.Inspector != nil {
		return m.center(inspectorView(kn.Inspector, kn.LineCount, m.width))
	}
	if chat.HistoryOpen {
		return m.center(historyView(chat.History, m.historyCursor))
	}

	sidebar := sidebarStyle.Width(sidebarWidth).Render(
		renderKnowledge(kn, m.nodeCursor, m.focus == focusKnowledge, m.spinner.View()))

	mainParts := []string{m.transcript.View()}
	if chat.Error != "" {
		mainParts = append(mainParts, errorStyle.Render(chat.Error))
	}
	if m.status != "" {
		mainParts = append(mainParts, demoStyle.Render(m.status))
	}
	mainParts = append(mainParts,
		m.input.View(),
		mutedStyle.Render("enter: send  tab: focus  ctrl+r: history  ctrl+n: new  ctrl+u: upload  ctrl+l: url  ctrl+y: copy  ctrl+p: settings  ctrl+o: sign out"),
	)
	main := lipgloss.JoinVertical(lipgloss.Left, mainParts...)
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main)
}

func (m *Model) modalView(kn knowledge.Snapshot) string {
	title := "Upload document"
	hint := "Path to a PDF or text file"
	if kn.Modal == knowledge.ModalURL {
		title = "Crawl a web page"
		hint = "The page text will be chunked and embedded"
	}
	lines := []string{titleStyle.Render(title), mutedStyle.Render(hint), "", m.modal.View(), ""}
	switch {
	case kn.Uploading:
		lines = append(lines, m.spinner.View()+" ingesting")
	case kn.Error != "":
		lines = append(lines, errorStyle.Render(kn.Error))
	}
	lines = append(lines, mutedStyle.Render("enter: submit  esc: cancel"))
	return modalStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) settingsView() string {
	snap := m.deps.Settings.Snapshot()
	lines := []string{
		titleStyle.Render("System instructions"),
		mutedStyle.Render("Prepended to every prompt you send."),
		m.persona.View(),
	}
	switch {
	case snap.Error != "":
		lines = append(lines, errorStyle.Render(snap.Error))
	case snap.Saved:
		lines = append(lines, statusDot[string(knowledge.StatusSynced)].Render("Saved."))
	}
	lines = append(lines, "", titleStyle.Render("Recent activity"))
	lines = append(lines, renderAuditLogs(snap.Logs)...)
	lines = append(lines, "", mutedStyle.Render("ctrl+s: save  ctrl+r: refresh activity  esc: back  ctrl+o: sign out"))
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func (m *Model) center(content string) string {
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func menuView(current shell.View) string {
	items := []shell.View{shell.ViewDashboard, shell.ViewSettings}
	parts := make([]string, 0, len(items))
	for _, v := range items {
		style := tabStyle
		if v == current {
			style = tabActiveStyle
		}
		parts = append(parts, style.Render(string(v)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderTranscript draws the chat. citation is the selected source index on
// the newest reply, or -1.
func renderTranscript(snap conversation.Snapshot, tw *typewriter, citation int, spin string, width int) string {
	if width <= 0 {
		width = 80
	}
	bubbleWidth := max(width*3/4, 20)
	last := -1
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == conversation.RoleSystem {
			last = i
			break
		}
	}

	var b strings.Builder
	for i, msg := range snap.Messages {
		if msg.Role == conversation.RoleUser {
			bubble := userBubble.MaxWidth(bubbleWidth).Render(msg.Content)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
			b.WriteString("\n\n")
			continue
		}

		text := msg.Content
		if tw != nil {
			text = tw.visible(msg.ID, msg.Content)
		}
		b.WriteString(titleStyle.Render("Cortex"))
		if msg.Demo {
			b.WriteString(" " + demoStyle.Render("[demo]"))
		}
		b.WriteString("\n")
		b.WriteString(systemText.Width(bubbleWidth).Render(text))
		b.WriteString("\n")

		revealing := tw != nil && tw.running(msg.ID)
		if len(msg.Sources) > 0 && !revealing {
			selected := -1
			if i == last {
				selected = citation
			}
			b.WriteString(renderSources(msg.Sources, selected))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if snap.Busy {
		b.WriteString(spin + " " + mutedStyle.Render("Cortex is thinking..."))
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderSources(sources []string, selected int) string {
	chips := make([]string, len(sources))
	for i, src := range sources {
		label := src
		if isLink(src) {
			label = "↗ " + src
		}
		style := citationStyle
		if i == selected {
			style = citationActive
		}
		chips[i] = style.Render(label)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, chips...)
}

func renderKnowledge(kn knowledge.Snapshot, cursor int, focused bool, spin string) string {
	lines := []string{titleStyle.Render("Knowledge"), mutedStyle.Render(kn.Workspace), renderFilters(kn.Filter), ""}

	switch {
	case kn.Loading:
		lines = append(lines, spin+" syncing")
	case len(kn.Visible) == 0:
		lines = append(lines, mutedStyle.Render("No knowledge nodes yet."), mutedStyle.Render("ctrl+u upload, ctrl+l crawl"))
	default:
		for i, n := range kn.Visible {
			line := fmt.Sprintf("%s %s %s", nodeIcon(n.Type), statusMark(n.Status), n.Title)
			if focused && i == cursor {
				line = selectedStyle.Render("▸ " + line)
			} else {
				line = "  " + line
			}
			lines = append(lines, line, mutedStyle.Render("    "+n.Size+"  "+n.Date.Format("Jan 2")))
		}
	}
	if kn.Error != "" && kn.Modal == knowledge.ModalNone {
		lines = append(lines, "", errorStyle.Render(kn.Error))
	}
	if focused {
		lines = append(lines, "", mutedStyle.Render("enter: inspect  f: filter  w: workspace  r: refresh"))
	}
	return strings.Join(lines, "\n")
}

func renderFilters(active knowledge.Filter) string {
	parts := make([]string, len(knowledge.Filters))
	for i, f := range knowledge.Filters {
		style := tabStyle
		if f == active {
			style = tabActiveStyle
		}
		parts[i] = style.Render(string(f))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func inspectorView(n *knowledge.Node, lineCount, width int) string {
	body := n.FullContent
	if body == "" {
		body = mutedStyle.Render("No preview available.")
	}
	w := 72
	if width > 0 {
		w = max(min(width-8, 100), 20)
	}
	lines := []string{
		titleStyle.Render(n.Title),
		mutedStyle.Render(fmt.Sprintf("%s · %s · %s · %d lines", n.Type, n.Size, strings.Join(n.Tags, ", "), lineCount)),
		"",
		lipgloss.NewStyle().Width(w).Render(body),
		"",
		mutedStyle.Render("esc: close"),
	}
	return modalStyle.Render(strings.Join(lines, "\n"))
}

func historyView(convs []gateway.Conversation, cursor int) string {
	lines := []string{titleStyle.Render("History"), ""}
	if len(convs) == 0 {
		lines = append(lines, mutedStyle.Render("No saved conversations."))
	}
	for i, c := range convs {
		line := fmt.Sprintf("%s  %s", c.CreatedAt.Format("Jan 2 15:04"), c.Title)
		if i == cursor {
			line = selectedStyle.Render("▸ " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", mutedStyle.Render("enter: open  n: new chat  esc: close"))
	return modalStyle.Render(strings.Join(lines, "\n"))
}

func renderAuditLogs(logs []gateway.AuditLog) []string {
	if len(logs) == 0 {
		return []string{mutedStyle.Render("No recent activity.")}
	}
	lines := make([]string, len(logs))
	for i, l := range logs {
		lines[i] = fmt.Sprintf("%s  %-6s %s", mutedStyle.Render(l.Timestamp.Format("Jan 2 15:04")), l.Action, l.Details)
	}
	return lines
}

func nodeIcon(t knowledge.NodeType) string {
	switch t {
	case knowledge.TypeURL:
		return "◎"
	case knowledge.TypeNote:
		return "✎"
	default:
		return "▤"
	}
}

func statusMark(s knowledge.Status) string {
	style, ok := statusDot[string(s)]
	if !ok {
		return "•"
	}
	return style.Render("•")
}

func isLink(citation string) bool {
	return strings.HasPrefix(citation, "http")
}
