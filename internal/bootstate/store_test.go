package bootstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fotad-io/fotad/internal/slot"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "bootstate"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := State{
		ActiveSlot:       slot.B,
		AttemptCount:     2,
		AttemptLimit:     3,
		PendingSwitch:    slot.A,
		ConfirmedVersion: "1.4.0",
		PendingVersion:   "1.5.0",
		TotalUnconfirmed: 4,
		BothFailed:       true,
	}

	if err := s.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

func TestReadMissingRecord(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Read(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read on missing record: got %v, want ErrNotExist", err)
	}

	st, ok := s.ReadOrDefault(3)
	if ok {
		t.Error("ReadOrDefault reported stored record for missing file")
	}
	if st.ActiveSlot != slot.A || st.AttemptCount != 0 || st.AttemptLimit != 3 {
		t.Errorf("unexpected default state: %+v", st)
	}
}

func TestWriteValidatesState(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		st   State
	}{
		{"empty active slot", State{AttemptLimit: 3}},
		{"bogus active slot", State{ActiveSlot: "C", AttemptLimit: 3}},
		{"zero attempt limit", State{ActiveSlot: slot.A}},
		{"bogus pending switch", State{ActiveSlot: slot.A, AttemptLimit: 3, PendingSwitch: "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Write(tt.st); err == nil {
				t.Errorf("Write accepted invalid state %+v", tt.st)
			}
		})
	}
}

// Corrupting the copy holding the newest generation must fall back to the
// older valid copy, never to garbage.
func TestSingleCopyCorruptionSurvives(t *testing.T) {
	s := newTestStore(t)

	first := Default(3)
	if err := s.Write(first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second := first
	second.AttemptCount = 1
	if err := s.Write(second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for offset := 0; offset < recordSize; offset += copySize {
		buf, err := os.ReadFile(s.Path())
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		clobbered := make([]byte, len(buf))
		copy(clobbered, buf)
		for i := offset; i < offset+copySize; i++ {
			clobbered[i] ^= 0xff
		}
		if err := os.WriteFile(s.Path(), clobbered, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		got, err := s.Read()
		if err != nil {
			t.Fatalf("Read after corrupting copy at %d: %v", offset, err)
		}
		if !got.ActiveSlot.Valid() {
			t.Errorf("invalid active slot after corruption: %+v", got)
		}

		// Restore for the next iteration.
		if err := os.WriteFile(s.Path(), buf, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestBothCopiesCorruptIsErrCorrupt(t *testing.T) {
	s := newTestStore(t)

	if err := s.Write(Default(3)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	garbage := make([]byte, recordSize)
	for i := range garbage {
		garbage[i] = 0xa5
	}
	if err := os.WriteFile(s.Path(), garbage, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := s.Read(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Read: got %v, want ErrCorrupt", err)
	}

	st, ok := s.ReadOrDefault(3)
	if ok {
		t.Error("ReadOrDefault reported stored record for corrupt file")
	}
	if st != Default(3) {
		t.Errorf("fallback state = %+v, want default", st)
	}
}

// A torn write (truncated record) must surface the last durable state.
func TestTornWriteKeepsPreviousState(t *testing.T) {
	s := newTestStore(t)

	want := State{ActiveSlot: slot.A, AttemptCount: 1, AttemptLimit: 3}
	if err := s.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	for _, cut := range []int{1, copySize / 2, copySize + 7} {
		if cut > len(buf) {
			continue
		}
		if err := os.WriteFile(s.Path(), buf[:cut], 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		got, err := s.Read()
		if cut < copySize {
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("cut=%d: got %v, want ErrCorrupt", cut, err)
			}
		} else {
			if err != nil {
				t.Fatalf("cut=%d: Read: %v", cut, err)
			}
			if got != want {
				t.Errorf("cut=%d: got %+v, want %+v", cut, got, want)
			}
		}

		if err := os.WriteFile(s.Path(), buf, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestGenerationAdvances(t *testing.T) {
	s := newTestStore(t)

	st := Default(3)
	for i := 0; i < 5; i++ {
		st.AttemptCount = uint32(i)
		if err := s.Write(st); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
		got, err := s.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if got.AttemptCount != uint32(i) {
			t.Errorf("after write %d: AttemptCount = %d", i, got.AttemptCount)
		}
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	st, err := s.Provision(3)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if st != Default(3) {
		t.Errorf("Provision returned %+v, want default", st)
	}

	// A second Provision must not clobber mutated state.
	st.AttemptCount = 2
	if err := s.Write(st); err != nil {
		t.Fatalf("Write: %v", err)
	}
	again, err := s.Provision(3)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if again.AttemptCount != 2 {
		t.Errorf("Provision overwrote existing record: %+v", again)
	}
}
