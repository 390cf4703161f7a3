package ui

import (
	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/logging/events"
	tea "github.com/charmbracelet/bubbletea"
)

func waitForBackendEvent(w *backend.Watcher) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-w.Events()
		if !ok {
			return backendDoneMsg{}
		}
		return backendEventMsg{event: evt}
	}
}

type backendEventMsg struct {
	event backend.Event
}

type backendDoneMsg struct{}

// handleBackendEventMsg records the outcome of a reconciled room-list batch.
// The stores were already updated by the watcher goroutine.
func (m *Model) handleBackendEventMsg(msg tea.Msg) tea.Cmd {
	eventMsg, ok := msg.(backendEventMsg)
	if !ok {
		return nil
	}
	if err := eventMsg.event.Err; err != nil {
		m.backendErr = err.Error()
	} else {
		m.backendErr = ""
	}
	if m.backend != nil {
		return waitForBackendEvent(m.backend)
	}
	return nil
}

func (m *Model) handleBackendDoneMsg(msg tea.Msg) tea.Cmd {
	m.backend = nil
	events.RoomList.Closed()
	return nil
}
