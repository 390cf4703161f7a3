package matrix

import (
	"reflect"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/atomicstack/multiverse/internal/diff"
)

func ops(raw string) []gjson.Result {
	return gjson.Parse(raw).Array()
}

func TestApplyListOps(t *testing.T) {
	order := applyListOps(nil, 4, ops(`[{"op":"SYNC","range":[0,2],"room_ids":["!a","!b","!c"]}]`))
	if want := []string{"!a", "!b", "!c", ""}; !reflect.DeepEqual(order, want) {
		t.Fatalf("sync: got %q want %q", order, want)
	}

	// A DELETE followed by an INSERT moves a room to the top.
	order = applyListOps(order, 4, ops(`[{"op":"DELETE","index":2},{"op":"INSERT","index":0,"room_id":"!c"}]`))
	if want := []string{"!c", "!a", "!b", ""}; !reflect.DeepEqual(order, want) {
		t.Fatalf("move: got %q want %q", order, want)
	}

	order = applyListOps(order, 4, ops(`[{"op":"INVALIDATE","range":[1,2]}]`))
	if want := []string{"!c", "", "", ""}; !reflect.DeepEqual(order, want) {
		t.Fatalf("invalidate: got %q want %q", order, want)
	}

	order = applyListOps(order, 2, nil)
	if want := []string{"!c", ""}; !reflect.DeepEqual(order, want) {
		t.Fatalf("shrink: got %q want %q", order, want)
	}
}

func TestVisibleRoomsSkipsGapsDuplicatesAndFiltered(t *testing.T) {
	got := visibleRooms([]string{"!a", "", "!b", "!a", "!left"}, func(id string) bool { return id != "!left" })
	if want := []string{"!a", "!b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q want %q", got, want)
	}
}

func applyEdits(t *testing.T, prev []string, edits []listEdit) []string {
	t.Helper()
	var batch []diff.Op[string]
	for _, e := range edits {
		switch e.kind {
		case editRemove:
			batch = append(batch, diff.Remove[string](e.from))
		case editMove:
			batch = append(batch, diff.Move[string](e.from, e.to))
		case editInsert:
			batch = append(batch, diff.Insert(e.from, e.id))
		case editSet:
			batch = append(batch, diff.Set(e.from, e.id))
		}
	}
	out, err := diff.Apply(append([]string(nil), prev...), batch)
	if err != nil {
		t.Fatalf("applying edits %+v: %v", edits, err)
	}
	return out
}

func TestDiffRoomIDsReproducesNextOrder(t *testing.T) {
	cases := []struct {
		prev, next []string
	}{
		{nil, []string{"!a", "!b"}},
		{[]string{"!a", "!b", "!c"}, []string{"!c", "!a", "!b"}},
		{[]string{"!a", "!b", "!c"}, []string{"!b"}},
		{[]string{"!a", "!b"}, []string{"!d", "!b", "!e", "!a"}},
		{[]string{"!a", "!b", "!c", "!d"}, []string{"!d", "!c", "!b", "!a"}},
		{[]string{"!a"}, nil},
	}
	for _, tc := range cases {
		got := applyEdits(t, tc.prev, diffRoomIDs(tc.prev, tc.next, nil))
		if len(got) == 0 && len(tc.next) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.next) {
			t.Errorf("%q -> %q: got %q", tc.prev, tc.next, got)
		}
	}
}

func TestDiffRoomIDsSetsUpdatedRooms(t *testing.T) {
	edits := diffRoomIDs([]string{"!a", "!b"}, []string{"!a", "!b"}, map[string]bool{"!b": true})
	want := []listEdit{{kind: editSet, from: 1, id: "!b"}}
	if !reflect.DeepEqual(edits, want) {
		t.Fatalf("got %+v want %+v", edits, want)
	}
}
