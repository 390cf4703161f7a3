// Package ui contains the Bubble Tea program that renders the chat client.
// The Model focuses on message orchestration; the controller owns all
// session state and the shared stores own the room and timeline data.
//
// Message flow:
//   - Bubble Tea invokes Model.Update with incoming messages, which are routed
//     through a typed handler registry so each tea.Msg is handled by a focused
//     function (key presses, resizes, frame ticks, backend notifications).
//   - Key presses map to controller operations through the keymap in keys.go.
//     Operations that reach the homeserver run through the internal/ui/command
//     bus as tea.Cmd values so the render loop never waits on the network.
//   - A frame tick fires every 16ms and triggers a redraw, so diffs applied by
//     background feeders show up without any callback into the loop.
//
// Backend interactions:
//   - The controller's backend.Watcher reconciles room-list batches on its own
//     goroutine. Update waits on its notification channel only to surface
//     reconciliation errors; the view always reads the stores directly.
package ui
