package bootstate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/fotad-io/fotad/internal/slot"
)

// ErrCorrupt is returned by Read when neither stored copy validates.
// Callers must fall back to Default() rather than fail closed.
var ErrCorrupt = errors.New("boot state record corrupt")

const (
	magic         = "FBST"
	formatVersion = 1

	copySize      = 256
	recordSize    = 2 * copySize
	maxVersionLen = 63

	flagSlotB         = 1 << 0
	flagPendingSet    = 1 << 1
	flagPendingSlotB  = 1 << 2
	flagBothFailed    = 1 << 3

	offFlags      = 5
	offAttempts   = 8
	offLimit      = 12
	offTotal      = 16
	offGeneration = 24
	offConfirmed  = 32
	offPending    = 96
	offCRC        = copySize - 4
)

// Store reads and writes the boot state record at a fixed path. Writes are
// safe against power loss at any byte offset: the copy holding the older
// generation is overwritten and synced, so the newest valid copy is only
// replaced once its successor is durable.
//
// No concurrent writers are assumed; the slot selector and the update agent
// run at different times against the same record.
type Store struct {
	path string
}

// New creates a Store for the record at path. The record itself is created
// lazily by Provision or the first Write.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the record's location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the current state. It returns ErrCorrupt when the record
// exists but neither copy validates, and a wrapped fs.ErrNotExist when the
// record was never provisioned.
func (s *Store) Read() (State, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return State{}, fmt.Errorf("failed to read boot state: %w", err)
	}

	st, _, err := decodeNewest(buf)
	if err != nil {
		return State{}, err
	}
	return st, nil
}

// ReadOrDefault returns the stored state, or the hard-coded safe default
// when the record is missing or corrupt. The second return value reports
// whether the stored record was used.
func (s *Store) ReadOrDefault(limit uint32) (State, bool) {
	st, err := s.Read()
	if err != nil {
		return Default(limit), false
	}
	return st, true
}

// Write persists st atomically, bumping the record generation.
func (s *Store) Write(st State) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("refusing to persist invalid boot state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open boot state: %w", err)
	}
	defer f.Close()

	buf := make([]byte, recordSize)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("failed to read boot state: %w", err)
	}

	// Target the copy holding the older (or invalid) generation so the
	// newest valid copy survives a torn write.
	_, newest, decodeErr := decodeNewest(buf)
	target := 0
	gen := uint64(1)
	if decodeErr == nil {
		target = 1 - newest.index
		gen = newest.generation + 1
	}

	copyBuf := encodeCopy(&st, gen)
	if _, err := f.WriteAt(copyBuf, int64(target*copySize)); err != nil {
		return fmt.Errorf("failed to write boot state: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync boot state: %w", err)
	}
	return nil
}

// Provision creates the record with the safe default state if it does not
// exist yet. It is idempotent and never overwrites an existing valid record.
func (s *Store) Provision(limit uint32) (State, error) {
	st, err := s.Read()
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrCorrupt) {
		return State{}, err
	}

	st = Default(limit)
	if err := s.Write(st); err != nil {
		return State{}, err
	}
	return st, nil
}

type copyInfo struct {
	index      int
	generation uint64
}

// decodeNewest parses both copies and returns the valid one with the higher
// generation. ErrCorrupt is returned when neither validates.
func decodeNewest(buf []byte) (State, copyInfo, error) {
	var (
		best      State
		bestInfo  copyInfo
		haveValid bool
	)

	for i := 0; i < 2; i++ {
		lo := i * copySize
		if len(buf) < lo+copySize {
			break
		}
		st, gen, err := decodeCopy(buf[lo : lo+copySize])
		if err != nil {
			continue
		}
		if !haveValid || gen > bestInfo.generation {
			best = st
			bestInfo = copyInfo{index: i, generation: gen}
			haveValid = true
		}
	}

	if !haveValid {
		return State{}, copyInfo{}, ErrCorrupt
	}
	return best, bestInfo, nil
}

func encodeCopy(st *State, gen uint64) []byte {
	buf := make([]byte, copySize)
	copy(buf[0:4], magic)
	buf[4] = formatVersion

	var flags byte
	if st.ActiveSlot == slot.B {
		flags |= flagSlotB
	}
	if st.PendingSwitch != "" {
		flags |= flagPendingSet
		if st.PendingSwitch == slot.B {
			flags |= flagPendingSlotB
		}
	}
	if st.BothFailed {
		flags |= flagBothFailed
	}
	buf[offFlags] = flags

	binary.BigEndian.PutUint32(buf[offAttempts:], st.AttemptCount)
	binary.BigEndian.PutUint32(buf[offLimit:], st.AttemptLimit)
	binary.BigEndian.PutUint32(buf[offTotal:], st.TotalUnconfirmed)
	binary.BigEndian.PutUint64(buf[offGeneration:], gen)

	putVersion(buf[offConfirmed:], st.ConfirmedVersion)
	putVersion(buf[offPending:], st.PendingVersion)

	crc := crc32.ChecksumIEEE(buf[:offCRC])
	binary.BigEndian.PutUint32(buf[offCRC:], crc)
	return buf
}

func decodeCopy(buf []byte) (State, uint64, error) {
	if string(buf[0:4]) != magic || buf[4] != formatVersion {
		return State{}, 0, ErrCorrupt
	}
	if crc32.ChecksumIEEE(buf[:offCRC]) != binary.BigEndian.Uint32(buf[offCRC:]) {
		return State{}, 0, ErrCorrupt
	}

	flags := buf[offFlags]
	st := State{
		ActiveSlot:       slot.A,
		AttemptCount:     binary.BigEndian.Uint32(buf[offAttempts:]),
		AttemptLimit:     binary.BigEndian.Uint32(buf[offLimit:]),
		TotalUnconfirmed: binary.BigEndian.Uint32(buf[offTotal:]),
		ConfirmedVersion: getVersion(buf[offConfirmed:]),
		PendingVersion:   getVersion(buf[offPending:]),
		BothFailed:       flags&flagBothFailed != 0,
	}
	if flags&flagSlotB != 0 {
		st.ActiveSlot = slot.B
	}
	if flags&flagPendingSet != 0 {
		st.PendingSwitch = slot.A
		if flags&flagPendingSlotB != 0 {
			st.PendingSwitch = slot.B
		}
	}

	if err := st.Validate(); err != nil {
		return State{}, 0, ErrCorrupt
	}

	gen := binary.BigEndian.Uint64(buf[offGeneration:])
	return st, gen, nil
}

// putVersion stores a length-prefixed version string in a 64-byte field.
func putVersion(buf []byte, v string) {
	buf[0] = byte(len(v))
	copy(buf[1:1+maxVersionLen], v)
}

func getVersion(buf []byte) string {
	n := int(buf[0])
	if n > maxVersionLen {
		n = maxVersionLen
	}
	return string(buf[1 : 1+n])
}
