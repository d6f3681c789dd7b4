package console

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hearthlab/hearthd/internal/protocol"
)

func TestAppendAssignsIncreasingSequence(t *testing.T) {
	r := NewRing(8)

	var prev uint64
	for i := 0; i < 5; i++ {
		seq := r.Append(protocol.Stdout, []byte("line"))
		if seq <= prev {
			t.Fatalf("append %d: seq = %d, not greater than previous %d", i, seq, prev)
		}
		prev = seq
	}
}

func TestEvictionKeepsLastCapacityEntries(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		appends  int
	}{
		{"under capacity", 10, 4},
		{"exactly capacity", 10, 10},
		{"one over", 10, 11},
		{"far over", 10, 57},
		{"capacity one", 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRing(tt.capacity)
			for i := 0; i < tt.appends; i++ {
				r.Append(protocol.Stdout, fmt.Appendf(nil, "line %d", i))
			}

			snap := r.Snapshot()
			wantLen := tt.appends
			if wantLen > tt.capacity {
				wantLen = tt.capacity
			}
			if len(snap) != wantLen {
				t.Fatalf("snapshot length = %d, want %d", len(snap), wantLen)
			}

			// The retained entries are exactly the last wantLen appends,
			// in increasing sequence order with no gaps.
			firstSeq := uint64(tt.appends - wantLen + 1)
			for i, entry := range snap {
				wantSeq := firstSeq + uint64(i)
				if entry.Seq != wantSeq {
					t.Errorf("snap[%d].Seq = %d, want %d", i, entry.Seq, wantSeq)
				}
				wantData := fmt.Sprintf("line %d", int(wantSeq)-1)
				if string(entry.Data) != wantData {
					t.Errorf("snap[%d].Data = %q, want %q", i, entry.Data, wantData)
				}
			}
		})
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	r := NewRing(4)
	r.Append(protocol.Stdout, []byte("before"))

	snap := r.Snapshot()
	for i := 0; i < 10; i++ {
		r.Append(protocol.Stderr, []byte("after"))
	}

	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	if string(snap[0].Data) != "before" {
		t.Errorf("snapshot mutated by later appends: %q", snap[0].Data)
	}
}

func TestAppendCopiesCallerBuffer(t *testing.T) {
	r := NewRing(4)
	buf := []byte("original")
	r.Append(protocol.Stdout, buf)
	copy(buf, "XXXXXXXX")

	snap := r.Snapshot()
	if string(snap[0].Data) != "original" {
		t.Errorf("entry aliases caller buffer: %q", snap[0].Data)
	}
}

func TestLast(t *testing.T) {
	r := NewRing(10)
	for i := 1; i <= 6; i++ {
		r.Append(protocol.Stdout, fmt.Appendf(nil, "%d", i))
	}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"subset", 3, []string{"4", "5", "6"}},
		{"all", 6, []string{"1", "2", "3", "4", "5", "6"}},
		{"more than retained", 100, []string{"1", "2", "3", "4", "5", "6"}},
		{"zero", 0, nil},
		{"negative", -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Last(tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if string(got[i].Data) != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].Data, tt.want[i])
				}
			}
		})
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	r := NewRing(64)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			r.Append(protocol.Stdout, []byte("data"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := r.Snapshot()
			// No torn entries: sequences strictly increase within any snapshot.
			for j := 1; j < len(snap); j++ {
				if snap[j].Seq != snap[j-1].Seq+1 {
					t.Errorf("snapshot gap: seq %d follows %d", snap[j].Seq, snap[j-1].Seq)
					return
				}
			}
		}
	}()
	wg.Wait()
}
