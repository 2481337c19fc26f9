package registry

import (
	"errors"
	"math/rand"
	"testing"

	sipErrors "github.com/Iron-Ham/sipchat/internal/errors"
)

// checkInvariants fails the test if current is not a member or if entries
// are duplicated.
func checkInvariants[T comparable](t *testing.T, r *Registry[T]) {
	t.Helper()
	seen := make(map[T]bool)
	for _, item := range r.items {
		if seen[item] {
			t.Fatalf("duplicate entry %v in %v", item, r.items)
		}
		seen[item] = true
	}
	if cur, ok := r.Current(); ok && !seen[cur] {
		t.Fatalf("current %v is not a member of %v", cur, r.items)
	}
	if len(r.items) == 0 {
		if _, ok := r.Current(); ok {
			t.Fatal("empty registry has a current entry")
		}
	}
}

func TestRegistry_Add(t *testing.T) {
	r := New[string]()

	r.Add("a", true)
	r.Add("b", false)
	r.Add("a", false)

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if cur, _ := r.Current(); cur != "a" {
		t.Errorf("Current() = %q, want a", cur)
	}

	r.Add("b", true)
	if cur, _ := r.Current(); cur != "b" {
		t.Errorf("Current() = %q, want b", cur)
	}
	if got := r.Items(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Items() = %v, want [a b]", got)
	}
	checkInvariants(t, r)
}

func TestRegistry_Remove(t *testing.T) {
	tests := []struct {
		name    string
		items   []string
		current string
		remove  string
		want    string
		wantSet bool
	}{
		{"current in middle picks next", []string{"a", "b", "c"}, "b", "b", "c", true},
		{"current at end wraps to first", []string{"a", "b", "c"}, "c", "c", "a", true},
		{"current at start picks new first", []string{"a", "b", "c"}, "a", "a", "b", true},
		{"non-current keeps current", []string{"a", "b", "c"}, "c", "a", "c", true},
		{"last entry clears current", []string{"a"}, "a", "a", "", false},
		{"absent is a no-op", []string{"a", "b"}, "a", "z", "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[string]()
			for _, item := range tt.items {
				r.Add(item, item == tt.current)
			}

			r.Remove(tt.remove)

			cur, ok := r.Current()
			if ok != tt.wantSet || cur != tt.want {
				t.Errorf("Current() = (%q, %v), want (%q, %v)", cur, ok, tt.want, tt.wantSet)
			}
			checkInvariants(t, r)
		})
	}
}

func TestRegistry_RemoveKeepsOrder(t *testing.T) {
	r := New[int]()
	for i := 1; i <= 5; i++ {
		r.Add(i, true)
	}
	if !r.Remove(3) {
		t.Fatal("Remove(3) = false, want true")
	}
	if r.Remove(3) {
		t.Error("second Remove(3) = true, want false")
	}

	want := []int{1, 2, 4, 5}
	got := r.Items()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Items() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_Rotate(t *testing.T) {
	r := New[string]()

	if err := r.Rotate(); !errors.Is(err, sipErrors.ErrNoOtherSession) {
		t.Errorf("Rotate() on empty = %v, want ErrNoOtherSession", err)
	}

	r.Add("a", true)
	if err := r.Rotate(); !errors.Is(err, sipErrors.ErrNoOtherSession) {
		t.Errorf("Rotate() on size 1 = %v, want ErrNoOtherSession", err)
	}

	r.Add("b", false)
	r.Add("c", false)

	var visited []string
	for i := 0; i < 6; i++ {
		if err := r.Rotate(); err != nil {
			t.Fatalf("Rotate() error: %v", err)
		}
		cur, _ := r.Current()
		visited = append(visited, cur)
	}

	want := []string{"b", "c", "a", "b", "c", "a"}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("rotation order = %v, want %v", visited, want)
		}
	}
}

func TestRegistry_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := New[int]()

	for step := 0; step < 5000; step++ {
		switch op := rng.Intn(4); op {
		case 0, 1:
			r.Add(rng.Intn(10), rng.Intn(2) == 0)
		case 2:
			before := r.Len()
			cur, hadCurrent := r.Current()
			victim := rng.Intn(10)
			removed := r.Remove(victim)
			if removed && hadCurrent && cur == victim && before >= 2 {
				if _, ok := r.Current(); !ok {
					t.Fatalf("step %d: removing current from size %d left no current", step, before)
				}
			}
		case 3:
			err := r.Rotate()
			if r.Len() < 2 && err == nil {
				t.Fatalf("step %d: Rotate() on size %d succeeded", step, r.Len())
			}
			if r.Len() >= 2 && err != nil {
				t.Fatalf("step %d: Rotate() on size %d failed: %v", step, r.Len(), err)
			}
		}
		checkInvariants(t, r)
	}
}

func TestRegistry_IndexAndContains(t *testing.T) {
	r := New[string]()
	r.Add("a", true)
	r.Add("b", false)

	if r.Index("b") != 1 || r.Index("z") != -1 {
		t.Errorf("Index() = %d/%d", r.Index("b"), r.Index("z"))
	}
	if !r.Contains("a") || r.Contains("z") {
		t.Error("Contains() misreports membership")
	}

	items := r.Items()
	items[0] = "mutated"
	if r.Index("a") != 0 {
		t.Error("Items() should return a copy")
	}
}
