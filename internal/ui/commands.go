package ui

import (
	"context"

	"github.com/atomicstack/multiverse/internal/controller"
	"github.com/atomicstack/multiverse/internal/logging/events"
	"github.com/atomicstack/multiverse/internal/ui/command"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// actionDoneMsg reports that a controller operation run through the command
// bus returned. Its outcome is already in the controller's status message.
type actionDoneMsg struct {
	id string
}

func (m *Model) handleActionDoneMsg(msg tea.Msg) tea.Cmd {
	done, ok := msg.(actionDoneMsg)
	if !ok {
		return nil
	}
	events.Action.Success(done.id)
	return nil
}

// run executes fn off the render loop. Operations that talk to the
// homeserver go through here so a slow request never stalls a frame.
func (m *Model) run(id, label string, fn func(ctx context.Context)) tea.Cmd {
	return m.bus.Execute(command.Request{
		ID:    id,
		Label: label,
		Handler: func(ctx context.Context) tea.Msg {
			fn(ctx)
			return actionDoneMsg{id: id}
		},
	})
}

func (m *Model) handleKeyMsg(msg tea.Msg) tea.Cmd {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	if m.jumping {
		return m.handleJumpKey(keyMsg)
	}
	events.UI.Key(keyMsg.String())

	ctrl := m.ctrl
	mode := ctrl.DetailsMode()
	switch {
	case key.Matches(keyMsg, m.keys.Quit):
		return tea.Quit
	case key.Matches(keyMsg, m.keys.Next):
		ctrl.SelectNext()
	case key.Matches(keyMsg, m.keys.Previous):
		ctrl.SelectPrevious()
	case key.Matches(keyMsg, m.keys.StartSync):
		return m.run("sync:start", "start sync", ctrl.StartSync)
	case key.Matches(keyMsg, m.keys.StopSync):
		return m.run("sync:stop", "stop sync", ctrl.StopSync)
	case key.Matches(keyMsg, m.keys.SendQueue):
		return m.run("send_queue:toggle", "toggle send queue", ctrl.ToggleSendQueue)
	case key.Matches(keyMsg, m.keys.SendMessage):
		return m.run("message:send", "send message", ctrl.SendGreeting)
	case key.Matches(keyMsg, m.keys.Like):
		return m.run("reaction:toggle", "like latest message", ctrl.ToggleReactionToLatest)
	case key.Matches(keyMsg, m.keys.ShowReceipts):
		ctrl.SetDetailsMode(controller.ReadReceipts)
	case key.Matches(keyMsg, m.keys.ShowTimeline):
		ctrl.SetDetailsMode(controller.TimelineItems)
	case key.Matches(keyMsg, m.keys.ShowEvents):
		ctrl.SetDetailsMode(controller.Events)
	case key.Matches(keyMsg, m.keys.ShowStorage):
		ctrl.SetDetailsMode(controller.StorageInternals)
	case key.Matches(keyMsg, m.keys.Paginate):
		if mode.AllowsPagination() {
			ctrl.BackPaginate()
		}
	case key.Matches(keyMsg, m.keys.MarkAsRead):
		if mode.AllowsMarkAsRead() {
			return m.run("room:mark_read", "mark as read", ctrl.MarkAsRead)
		}
	case key.Matches(keyMsg, m.keys.Jump):
		return m.openJump()
	}
	return nil
}
