package cloudlog

import (
	"fmt"
	"sync"
	"testing"
)

func entryN(i int) Entry {
	return Entry{
		Time:     fmt.Sprintf("t%d", i),
		Variable: StringPtr("☁ score"),
		Value:    i,
		User:     "player",
		Action:   ActionSet,
	}
}

func TestNewBuffer_DefaultCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"zero", 0, DefaultCapacity},
		{"negative", -5, DefaultCapacity},
		{"explicit", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewBuffer(tt.capacity).Cap(); got != tt.want {
				t.Errorf("Cap() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuffer_SnapshotEmpty(t *testing.T) {
	b := NewBuffer(5)
	snap := b.Snapshot()
	if snap == nil {
		t.Fatal("Snapshot() returned nil, want empty slice")
	}
	if len(snap) != 0 {
		t.Errorf("len(Snapshot()) = %d, want 0", len(snap))
	}
}

func TestBuffer_PreservesArrivalOrder(t *testing.T) {
	b := NewBuffer(10)
	for _, name := range []string{"A", "B", "C"} {
		b.Append(Entry{Time: name, User: UnknownUser})
	}

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	for i, want := range []string{"A", "B", "C"} {
		if snap[i].Time != want {
			t.Errorf("snap[%d].Time = %s, want %s", i, snap[i].Time, want)
		}
	}
}

func TestBuffer_EvictsOldestWhenFull(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 4; i++ {
		b.Append(entryN(i))
	}

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	snap := b.Snapshot()
	for i, want := range []string{"t1", "t2", "t3"} {
		if snap[i].Time != want {
			t.Errorf("snap[%d].Time = %s, want %s", i, snap[i].Time, want)
		}
	}
}

func TestBuffer_NeverExceedsCapacity(t *testing.T) {
	const capacity = DefaultCapacity
	b := NewBuffer(capacity)

	total := capacity*2 + 37
	for i := 0; i < total; i++ {
		b.Append(entryN(i))
		if b.Len() > capacity {
			t.Fatalf("Len() = %d after %d appends, exceeds capacity %d", b.Len(), i+1, capacity)
		}
	}

	snap := b.Snapshot()
	if len(snap) != capacity {
		t.Fatalf("len(Snapshot()) = %d, want %d", len(snap), capacity)
	}
	first := total - capacity
	for i, e := range snap {
		if want := fmt.Sprintf("t%d", first+i); e.Time != want {
			t.Fatalf("snap[%d].Time = %s, want %s", i, e.Time, want)
		}
	}
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	b := NewBuffer(3)
	b.Append(entryN(1))

	snap := b.Snapshot()
	snap[0].User = "mutated"

	if got := b.Snapshot()[0].User; got != "player" {
		t.Errorf("stored entry changed through snapshot: user = %s", got)
	}
}

func TestBuffer_ConcurrentAppendAndSnapshot(t *testing.T) {
	b := NewBuffer(100)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Append(entryN(i))
			}
		}()
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if n := len(b.Snapshot()); n > 100 {
					t.Errorf("snapshot length %d exceeds capacity", n)
					return
				}
			}
		}()
	}
	wg.Wait()

	if b.Len() != 100 {
		t.Errorf("Len() = %d, want 100", b.Len())
	}
}
