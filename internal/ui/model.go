package ui

import (
	"context"
	"reflect"
	"time"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/controller"
	"github.com/atomicstack/multiverse/internal/logging/events"
	"github.com/atomicstack/multiverse/internal/theme"
	"github.com/atomicstack/multiverse/internal/ui/command"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// frameInterval is the redraw cadence. Background tasks mutate the shared
// stores directly; the next frame picks the changes up.
const frameInterval = 16 * time.Millisecond

var styles = theme.Default()

type msgHandler func(tea.Msg) tea.Cmd

// frameMsg forces a redraw.
type frameMsg time.Time

// Model implements the Bubble Tea model for the chat client.
type Model struct {
	ctx  context.Context
	ctrl *controller.Controller
	bus  *command.Bus
	keys keyMap

	backend    *backend.Watcher
	backendErr string

	width       int
	height      int
	fixedWidth  bool
	fixedHeight bool

	jump    textinput.Model
	jumping bool

	handlers map[reflect.Type]msgHandler
}

// NewModel builds the UI around ctrl. A positive width or height pins that
// dimension and ignores resize events for it.
func NewModel(ctx context.Context, ctrl *controller.Controller, width, height int) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Model{
		ctx:     ctx,
		ctrl:    ctrl,
		bus:     command.New(ctx),
		keys:    defaultKeyMap(),
		backend: ctrl.Watcher(),
		jump:    newJumpInput(),
	}
	if width > 0 {
		m.width = width
		m.fixedWidth = true
	}
	if height > 0 {
		m.height = height
		m.fixedHeight = true
	}
	m.registerHandlers()
	return m
}

func newJumpInput() textinput.Model {
	ti := textinput.New()
	ti.Prompt = "jump to: "
	ti.Placeholder = "room name"
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)
	if styles.JumpPrompt != nil {
		ti.PromptStyle = *styles.JumpPrompt
	}
	if styles.JumpText != nil {
		ti.TextStyle = *styles.JumpText
	}
	return ti
}

// Init is part of the tea.Model interface.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{frameTick()}
	if m.backend != nil {
		cmds = append(cmds, waitForBackendEvent(m.backend))
	}
	return tea.Batch(cmds...)
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// Update responds to Bubble Tea messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, 0, 2)
	if handler := m.handlerFor(msg); handler != nil {
		if cmd := handler(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, finishUpdate(cmds)
}

func (m *Model) registerHandlers() {
	m.handlers = map[reflect.Type]msgHandler{
		reflect.TypeOf(tea.KeyMsg{}):        m.handleKeyMsg,
		reflect.TypeOf(tea.WindowSizeMsg{}): m.handleWindowSizeMsg,
		reflect.TypeOf(frameMsg{}):          m.handleFrameMsg,
		reflect.TypeOf(actionDoneMsg{}):     m.handleActionDoneMsg,
		reflect.TypeOf(backendEventMsg{}):   m.handleBackendEventMsg,
		reflect.TypeOf(backendDoneMsg{}):    m.handleBackendDoneMsg,
	}
}

func (m *Model) handlerFor(msg tea.Msg) msgHandler {
	if msg == nil || m.handlers == nil {
		return nil
	}
	return m.handlers[reflect.TypeOf(msg)]
}

func finishUpdate(cmds []tea.Cmd) tea.Cmd {
	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	default:
		return tea.Batch(cmds...)
	}
}

func (m *Model) handleFrameMsg(tea.Msg) tea.Cmd {
	return frameTick()
}

func (m *Model) handleWindowSizeMsg(msg tea.Msg) tea.Cmd {
	resize, ok := msg.(tea.WindowSizeMsg)
	if !ok {
		return nil
	}
	if !m.fixedWidth {
		m.width = resize.Width
	}
	if !m.fixedHeight {
		m.height = resize.Height
	}
	if w := m.width - len(m.jump.Prompt) - 1; w > 0 {
		m.jump.Width = w
	}
	events.UI.Resize(m.width, m.height)
	return nil
}

// Controller exposes the controller driving the model.
func (m *Model) Controller() *controller.Controller {
	return m.ctrl
}
