package matrix

import (
	"github.com/tidwall/gjson"
)

const (
	opSync       = "SYNC"
	opInsert     = "INSERT"
	opDelete     = "DELETE"
	opInvalidate = "INVALIDATE"
)

// applyListOps applies one response list's operations to order, the known
// server ordering where "" marks a slot the server has not filled. The
// result always has count entries.
func applyListOps(order []string, count int, ops []gjson.Result) []string {
	out := append([]string(nil), order...)
	grow := func(n int) {
		for len(out) < n {
			out = append(out, "")
		}
	}
	for _, op := range ops {
		switch op.Get("op").Str {
		case opSync:
			r := op.Get("range").Array()
			if len(r) != 2 {
				continue
			}
			start := int(r[0].Int())
			ids := op.Get("room_ids").Array()
			grow(start + len(ids))
			for i, id := range ids {
				out[start+i] = id.Str
			}
		case opInvalidate:
			r := op.Get("range").Array()
			if len(r) != 2 {
				continue
			}
			for i := int(r[0].Int()); i <= int(r[1].Int()) && i < len(out); i++ {
				if i >= 0 {
					out[i] = ""
				}
			}
		case opDelete:
			i := int(op.Get("index").Int())
			if i < 0 || i >= len(out) {
				continue
			}
			out = append(out[:i], out[i+1:]...)
		case opInsert:
			i := int(op.Get("index").Int())
			if i < 0 {
				continue
			}
			grow(i)
			out = append(out, "")
			copy(out[i+1:], out[i:])
			out[i] = op.Get("room_id").Str
		}
	}
	if len(out) > count {
		out = out[:count]
	}
	grow(count)
	return out
}

// visibleRooms drops unknown slots, duplicates and rooms hidden by keep.
func visibleRooms(order []string, keep func(id string) bool) []string {
	seen := make(map[string]struct{}, len(order))
	visible := make([]string, 0, len(order))
	for _, id := range order {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if keep(id) {
			visible = append(visible, id)
		}
	}
	return visible
}

// listEdit is a positional room-list edit expressed on room ids.
type listEdit struct {
	kind string
	from int
	to   int
	id   string
}

const (
	editRemove = "remove"
	editMove   = "move"
	editInsert = "insert"
	editSet    = "set"
)

// diffRoomIDs computes the edits turning prev into next. Rooms present in
// both lists at the same final position and listed in updated produce a set
// edit so their projection is refreshed.
func diffRoomIDs(prev, next []string, updated map[string]bool) []listEdit {
	wanted := make(map[string]struct{}, len(next))
	for _, id := range next {
		wanted[id] = struct{}{}
	}
	cur := append([]string(nil), prev...)
	var edits []listEdit
	for i := len(cur) - 1; i >= 0; i-- {
		if _, ok := wanted[cur[i]]; !ok {
			edits = append(edits, listEdit{kind: editRemove, from: i, id: cur[i]})
			cur = append(cur[:i], cur[i+1:]...)
		}
	}
	for i, id := range next {
		if i < len(cur) && cur[i] == id {
			if updated[id] {
				edits = append(edits, listEdit{kind: editSet, from: i, id: id})
			}
			continue
		}
		j := indexOf(cur, id, i+1)
		if j >= 0 {
			edits = append(edits, listEdit{kind: editMove, from: j, to: i, id: id})
			cur = append(cur[:j], cur[j+1:]...)
			cur = insertString(cur, i, id)
			if updated[id] {
				edits = append(edits, listEdit{kind: editSet, from: i, id: id})
			}
			continue
		}
		edits = append(edits, listEdit{kind: editInsert, from: i, id: id})
		cur = insertString(cur, i, id)
	}
	return edits
}

func indexOf(ids []string, id string, from int) int {
	for i := from; i < len(ids); i++ {
		if ids[i] == id {
			return i
		}
	}
	return -1
}

func insertString(ids []string, i int, id string) []string {
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}
