package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(1, 2).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	typingStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	fileLinkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Underline(true)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (m *TUIModel) View() string {
	switch m.mode {
	case modeNamePrompt:
		return m.renderNamePromptView()
	case modeFatal:
		return m.renderFatalView()
	default:
		return m.renderChatView()
	}
}

func (m *TUIModel) renderNamePromptView() string {
	title := appTitleStyle.Render("Quadchat")
	hint := menuHintStyle.Render(fmt.Sprintf("Pick a display name (up to %d characters).", MaxDisplayNameLen))

	sections := []string{title, hint}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	sections = append(sections, menuHintStyle.Render("Enter to join  •  Esc to quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *TUIModel) renderFatalView() string {
	title := appTitleStyle.Render("Quadchat")
	reason := errorStyle.Render(m.fatalReason)
	hint := menuHintStyle.Render("Press any key to exit.")
	return lipgloss.JoinVertical(lipgloss.Left, title, reason, hint)
}

func (m *TUIModel) renderChatView() string {
	headerSegments := []string{"Quadchat"}
	if m.self.DisplayName != "" {
		headerSegments = append(headerSegments, "You: "+m.self.DisplayName)
	}
	headerSegments = append(headerSegments, fmt.Sprintf("Online: %d", len(m.users)))
	headerSegments = append(headerSegments, "Server "+m.serverURL)
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case m.joined:
		statusLine = connectedStyle.Render("Connected" + m.renderRoster())
	case m.isConnected:
		statusLine = connectingStyle.Render("Joining…")
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	var messageLines []string
	for _, msg := range m.messages {
		messageLines = append(messageLines, m.renderMessage(msg))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}
	messagesView := messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...))

	sections := []string{header, statusLine}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections, messagesView)
	if typing := m.renderTypingLine(); typing != "" {
		sections = append(sections, typing)
	}
	sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	sections = append(sections, menuHintStyle.Render("/upload <path> to share a file  •  /users to list members  •  /quit to leave"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *TUIModel) renderRoster() string {
	if len(m.users) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.users))
	for _, u := range m.users {
		names = append(names, u.DisplayName)
	}
	return " — " + strings.Join(names, ", ")
}

// renderTypingLine shows who else is composing. The caller's own name is
// filtered out so the line never echoes back at the typist.
func (m *TUIModel) renderTypingLine() string {
	var others []string
	for _, name := range m.typingNames {
		if name != m.self.DisplayName {
			others = append(others, name)
		}
	}
	switch len(others) {
	case 0:
		return ""
	case 1:
		return typingStyle.Render(others[0] + " is typing…")
	default:
		return typingStyle.Render(strings.Join(others, ", ") + " are typing…")
	}
}

func (m *TUIModel) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.notices))
	for _, notice := range m.notices {
		lines = append(lines, systemMessageStyle.Render(notice))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderMessage renders a single transcript line. File messages show the
// original name, the size, and the download path.
func (m *TUIModel) renderMessage(msg Message) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", msg.Timestamp.Local().Format("15:04:05")))

	var nameStyle lipgloss.Style
	if msg.UserID == m.self.ID {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(msg.DisplayName))
	}
	name := nameStyle.Render(msg.DisplayName)

	var body string
	if msg.Type == MessageTypeFile && msg.File != nil {
		body = fileLinkStyle.Render(fmt.Sprintf("%s (%s) %s", msg.File.OriginalName, humanSize(msg.File.Size), msg.File.URL))
	} else {
		body = messageBodyStyle.Render(strings.ReplaceAll(msg.Content, "\n", "\n   "))
	}

	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
}

func humanSize(size int64) string {
	switch {
	case size >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(size)/(1<<30))
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
