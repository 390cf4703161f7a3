package ui

import tea "github.com/charmbracelet/bubbletea"

// Harness drives the model without a terminal. Commands run synchronously
// and batches are expanded. Frame ticks are dropped so nothing reschedules
// itself.
type Harness struct {
	model *Model
	quit  bool
}

// NewHarness creates a harness for the provided model.
func NewHarness(model *Model) *Harness {
	return &Harness{model: model}
}

// Send routes msg through the model and runs every command that follows
// from it.
func (h *Harness) Send(msg tea.Msg) {
	if h.model == nil {
		return
	}
	queue := []tea.Msg{msg}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		switch next := next.(type) {
		case nil, frameMsg:
			continue
		case tea.QuitMsg:
			h.quit = true
			continue
		case tea.BatchMsg:
			for _, cmd := range next {
				queue = h.runCmd(queue, cmd)
			}
			continue
		}
		_, cmd := h.model.Update(next)
		queue = h.runCmd(queue, cmd)
	}
}

func (h *Harness) runCmd(queue []tea.Msg, cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return queue
	}
	return append(queue, cmd())
}

// Quit reports whether the model asked the program to exit.
func (h *Harness) Quit() bool { return h.quit }

// View returns the current view string.
func (h *Harness) View() string {
	if h.model == nil {
		return ""
	}
	return h.model.View()
}

// Model exposes the underlying model.
func (h *Harness) Model() *Model {
	return h.model
}
