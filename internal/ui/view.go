package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atomicstack/multiverse/internal/backend"
	"github.com/atomicstack/multiverse/internal/controller"
	"github.com/atomicstack/multiverse/internal/format/table"
	"github.com/atomicstack/multiverse/internal/state"
	"github.com/atomicstack/multiverse/internal/timeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

const (
	headerTitle   = "Multiverse"
	roomListTitle = "Room list"
	roomViewTitle = "Room view"
	dmMarker      = "🤫"

	nothingToSee        = "Nothing to see here..."
	timelineDisappeared = "(room's timeline disappeared)"

	// Used until the first WindowSizeMsg arrives.
	defaultWidth  = 100
	defaultHeight = 30
)

type styledLine struct {
	text  string
	style *lipgloss.Style
}

// View renders the header, the room list and room view side by side, an
// optional jump prompt and the footer.
func (m *Model) View() string {
	width, height := m.width, m.height
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}

	top := []string{renderLine(styledLine{text: headerTitle, style: styles.Header}, width)}
	if m.backendErr != "" {
		top = append(top, renderLine(styledLine{text: "room list: " + m.backendErr, style: styles.Warning}, width))
	}
	var bottom []string
	if m.jumping {
		bottom = append(bottom, padRow(m.jump.View(), width))
	}
	bottom = append(bottom, renderLine(m.footerLine(), width))

	panelH := height - len(top) - len(bottom)
	if panelH < 3 {
		panelH = 3
	}
	leftW := width / 2
	rightW := width - leftW

	left := renderPanel(roomListTitle, m.roomListLines(panelH-2), "", leftW, panelH)
	detail, scroll := m.roomViewLines(panelH - 2)
	right := renderPanel(roomViewTitle, detail, scroll, rightW, panelH)

	sections := append(top, lipgloss.JoinHorizontal(lipgloss.Top, left, right))
	sections = append(sections, bottom...)
	return strings.Join(sections, "\n")
}

func (m *Model) footerLine() styledLine {
	if status, ok := m.ctrl.Status(); ok {
		return styledLine{text: status, style: styles.Status}
	}
	return styledLine{text: m.ctrl.DetailsMode().Help(), style: styles.Help}
}

// roomName is the label a room is listed under.
func roomName(id string, info state.ExtraRoomInfo) string {
	switch {
	case info.DisplayName != "":
		return fmt.Sprintf("%s (%s)", info.DisplayName, id)
	case info.RawName != "":
		return fmt.Sprintf("m.room.name:%s (%s)", info.RawName, id)
	default:
		return id
	}
}

func (m *Model) roomLabels(rooms []backend.Room) []string {
	infos := m.ctrl.Infos().Snapshot()
	labels := make([]string, len(rooms))
	for i, room := range rooms {
		if room == nil {
			continue
		}
		labels[i] = roomName(room.ID(), infos[room.ID()])
	}
	return labels
}

func (m *Model) roomListLines(visible int) []styledLine {
	rooms := m.ctrl.Rooms().Snapshot()
	if len(rooms) == 0 {
		return []styledLine{{text: "(no rooms yet)", style: styles.Empty}}
	}
	infos := m.ctrl.Infos().Snapshot()
	labels := m.roomLabels(rooms)
	selected, hasSelection := m.ctrl.Selection().Selected()

	indexes := make([]int, 0, len(rooms))
	if matches := m.jumpMatches(labels); matches != nil {
		for i := range rooms {
			if _, ok := matches[i]; ok {
				indexes = append(indexes, i)
			}
		}
	} else {
		start := m.ctrl.Selection().Viewport(len(rooms), visible)
		for i := start; i < len(rooms) && len(indexes) < visible; i++ {
			indexes = append(indexes, i)
		}
	}

	lines := make([]styledLine, 0, len(indexes))
	for _, i := range indexes {
		if rooms[i] == nil {
			continue
		}
		dm := ""
		if info := infos[rooms[i].ID()]; info.IsDirect() {
			dm = dmMarker
		}
		line := styledLine{text: fmt.Sprintf("#%d%s %s", i, dm, labels[i]), style: styles.Room}
		if i%2 == 1 {
			line.style = styles.RoomAlt
		}
		if hasSelection && i == selected {
			line.style = styles.SelectedRoom
		}
		lines = append(lines, line)
	}
	return lines
}

// roomViewLines renders the details panel for the selected room and returns
// an optional scroll indicator.
func (m *Model) roomViewLines(visible int) ([]styledLine, string) {
	room, _, ok := m.ctrl.SelectedRoom()
	if !ok {
		return bodyLines(nothingToSee), ""
	}
	switch m.ctrl.DetailsMode() {
	case controller.ReadReceipts:
		return bodyLines(readReceiptsText(room.ReadReceipts())), ""
	case controller.Events:
		events, err := room.RawEvents(m.ctx)
		if err != nil {
			return bodyLines(fmt.Sprintf("error when fetching events: %v", err)), ""
		}
		return bodyLines("Events:\n\n" + strings.Join(events, "\n\n")), ""
	case controller.StorageInternals:
		chunks, err := room.StorageDebug(m.ctx)
		if err != nil {
			return bodyLines(fmt.Sprintf("error when reading the event cache: %v", err)), ""
		}
		return bodyLines(strings.Join(chunks, "\n")), ""
	default:
		entry, ok := m.ctrl.Timelines().Get(room.ID())
		if !ok {
			return bodyLines(timelineDisappeared), ""
		}
		lines := timeline.Lines(entry.Items.Snapshot())
		total := len(lines)
		if visible > 0 && total > visible {
			lines = lines[total-visible:]
		}
		scroll := ""
		if total > 0 {
			scroll = fmt.Sprintf(" %d/%d ", total, total)
			if len(lines) < total {
				scroll = fmt.Sprintf(" %d-%d/%d ", total-len(lines)+1, total, total)
			}
		}
		return bodyLines(strings.Join(lines, "\n")), scroll
	}
}

func readReceiptsText(r backend.Receipts) string {
	counts := table.Format([][]string{
		{"- unread:", strconv.FormatUint(r.NumUnread, 10)},
		{"- notifications:", strconv.FormatUint(r.NumNotifications, 10)},
		{"- mentions:", strconv.FormatUint(r.NumMentions, 10)},
	}, []table.Alignment{table.AlignLeft, table.AlignRight})
	return "Read receipts:\n" + strings.Join(counts, "\n") + "\n\n---\n\n" + r.String()
}

func bodyLines(text string) []styledLine {
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\n")
	lines := make([]styledLine, len(raw))
	for i, line := range raw {
		lines[i] = styledLine{text: line, style: styles.PanelBody}
	}
	return lines
}

// fitWidth truncates or pads text to exactly width terminal cells.
func fitWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(text)
	if w > width {
		text = truncate.StringWithTail(text, uint(width-1), "…")
		w = lipgloss.Width(text)
	}
	if w < width {
		text += strings.Repeat(" ", width-w)
	}
	return text
}

func padRow(row string, width int) string {
	if w := lipgloss.Width(row); w > width {
		return truncate.StringWithTail(row, uint(width-1), "…")
	}
	return row
}

func renderLine(line styledLine, width int) string {
	text := fitWidth(line.text, width)
	if line.style != nil {
		return line.style.Render(text)
	}
	return text
}

// renderPanel draws a rounded box of exactly width x height cells with the
// title in the top border and scroll in its right corner.
func renderPanel(title string, lines []styledLine, scroll string, width, height int) string {
	const (
		tlc = "╭"
		trc = "╮"
		blc = "╰"
		brc = "╯"
		hz  = "─"
		vt  = "│"
	)
	innerW := width - 2
	innerH := height - 2
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}

	titleSeg := " " + title + " "
	dashes := width - 4 - lipgloss.Width(titleSeg) - lipgloss.Width(scroll)
	if dashes < 0 {
		scroll = ""
		dashes = width - 4 - lipgloss.Width(titleSeg)
	}
	if dashes < 0 {
		titleSeg = " … "
		dashes = width - 4 - lipgloss.Width(titleSeg)
	}
	if dashes < 0 {
		dashes = 0
	}
	border := styles.PanelBorder
	rows := make([]string, 0, height)
	rows = append(rows, border.Render(tlc+hz)+
		styles.PanelTitle.Render(titleSeg)+
		border.Render(strings.Repeat(hz, dashes))+
		styles.PanelScroll.Render(scroll)+
		border.Render(hz+trc))
	for i := 0; i < innerH; i++ {
		var line styledLine
		if i < len(lines) {
			line = lines[i]
		}
		rows = append(rows, border.Render(vt)+renderLine(line, innerW)+border.Render(vt))
	}
	rows = append(rows, border.Render(blc+strings.Repeat(hz, innerW)+brc))
	return strings.Join(rows, "\n")
}
