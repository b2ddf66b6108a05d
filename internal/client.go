package internal

import (
	tea "github.com/charmbracelet/bubbletea"
)

// RunClient launches the bubbletea program. It blocks until the user quits
// or the connection dies.
func RunClient(serverURL, displayName, sessionPath string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, displayName, sessionPath))
	_, err := program.Run()
	return err
}
