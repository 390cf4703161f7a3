package ui

import (
	"fmt"

	"github.com/atomicstack/multiverse/internal/logging/events"
	uistate "github.com/atomicstack/multiverse/internal/ui/state"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) openJump() tea.Cmd {
	m.jumping = true
	m.jump.Reset()
	return m.jump.Focus()
}

func (m *Model) closeJump() {
	m.jumping = false
	m.jump.Blur()
	m.jump.Reset()
}

func (m *Model) handleJumpKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ConfirmJump):
		return m.confirmJump()
	case key.Matches(msg, m.keys.CancelJump):
		m.closeJump()
		return nil
	}
	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return cmd
}

// confirmJump selects the room whose name best matches the prompt and
// switches the subscription to it.
func (m *Model) confirmJump() tea.Cmd {
	query := m.jump.Value()
	m.closeJump()
	rooms := m.ctrl.Rooms().Snapshot()
	labels := m.roomLabels(rooms)
	idx := uistate.BestMatchIndex(labels, query)
	if idx < 0 {
		m.ctrl.SetStatus(fmt.Sprintf("no room matches %q", query))
		return nil
	}
	events.Room.Jump(query, rooms[idx].ID())
	m.ctrl.SelectIndex(idx)
	return nil
}

// jumpMatches returns the room indexes matching the prompt while it is open.
func (m *Model) jumpMatches(labels []string) map[int]struct{} {
	if !m.jumping || m.jump.Value() == "" {
		return nil
	}
	matches := make(map[int]struct{})
	for _, i := range uistate.FilterLabels(labels, m.jump.Value()) {
		matches[i] = struct{}{}
	}
	return matches
}
