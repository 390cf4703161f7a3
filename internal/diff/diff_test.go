package diff

import (
	"errors"
	"reflect"
	"testing"
)

func TestApplyOperations(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		ops  []Op[string]
		want []string
	}{
		{"append", nil, []Op[string]{Append("a", "b")}, []string{"a", "b"}},
		{"push front", []string{"b"}, []Op[string]{PushFront("a")}, []string{"a", "b"}},
		{"push back", []string{"a"}, []Op[string]{PushBack("b")}, []string{"a", "b"}},
		{"pop front", []string{"a", "b"}, []Op[string]{PopFront[string]()}, []string{"b"}},
		{"pop back", []string{"a", "b"}, []Op[string]{PopBack[string]()}, []string{"a"}},
		{"insert middle", []string{"a", "c"}, []Op[string]{Insert(1, "b")}, []string{"a", "b", "c"}},
		{"insert at end", []string{"a"}, []Op[string]{Insert(1, "b")}, []string{"a", "b"}},
		{"set", []string{"a", "x"}, []Op[string]{Set(1, "b")}, []string{"a", "b"}},
		{"remove", []string{"a", "x", "b"}, []Op[string]{Remove[string](1)}, []string{"a", "b"}},
		{"move forward", []string{"a", "b", "c"}, []Op[string]{Move[string](0, 2)}, []string{"b", "c", "a"}},
		{"move backward", []string{"a", "b", "c"}, []Op[string]{Move[string](2, 0)}, []string{"c", "a", "b"}},
		{"truncate", []string{"a", "b", "c"}, []Op[string]{Truncate[string](1)}, []string{"a"}},
		{"truncate longer", []string{"a"}, []Op[string]{Truncate[string](4)}, []string{"a"}},
		{"clear", []string{"a", "b"}, []Op[string]{Clear[string]()}, []string{}},
		{"reset", []string{"a"}, []Op[string]{Reset("x", "y")}, []string{"x", "y"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.in, tc.ops)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplySkipsOutOfRangeOps(t *testing.T) {
	got, err := Apply([]int{1, 2}, []Op[int]{
		Remove[int](5),
		PushBack(3),
		Set(-1, 9),
	})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("expected valid ops to apply, got %v", got)
	}
}

func TestApplyPopOnEmpty(t *testing.T) {
	got, err := Apply[int](nil, []Op[int]{PopFront[int](), PopBack[int]()})
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

// Applying two batches one after the other must equal applying their
// concatenation in one go.
func TestApplyBatchesComposeLikeConcatenation(t *testing.T) {
	start := []string{"r0", "r1", "r2"}
	batches := [][]Op[string]{
		{PushBack("r3"), Remove[string](0)},
		{Insert(1, "r4"), Set(0, "r1*")},
		{Move[string](3, 0), PopBack[string]()},
		{Append("r5", "r6"), Truncate[string](4)},
		{Reset("a", "b"), PushFront("z")},
	}
	var all []Op[string]
	for _, b := range batches {
		all = append(all, b...)
	}
	want, err := Apply(append([]string(nil), start...), all)
	if err != nil {
		t.Fatalf("joined error: %v", err)
	}
	if !reflect.DeepEqual(want, []string{"z", "a", "b"}) {
		t.Fatalf("unexpected joined result %v", want)
	}

	for split := 0; split <= len(batches); split++ {
		var head []Op[string]
		for _, b := range batches[:split] {
			head = append(head, b...)
		}
		got, err := Apply(append([]string(nil), start...), head)
		if err != nil {
			t.Fatalf("split %d head error: %v", split, err)
		}
		for _, b := range batches[split:] {
			got, err = Apply(got, b)
			if err != nil {
				t.Fatalf("split %d batch error: %v", split, err)
			}
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("split %d: got %v, want %v", split, got, want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindMove.String() != "move" {
		t.Fatalf("unexpected name %q", KindMove.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Fatalf("unexpected fallback %q", Kind(99).String())
	}
}
