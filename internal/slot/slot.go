// Package slot models the fixed A/B partition pair and the collaborators
// used to provision it. Slots are symmetric: exactly one is active (selected
// to boot) and the other is the standby target of updates. Slot contents are
// only ever overwritten wholesale, never patched in place.
package slot

import (
	"fmt"
)

// ID identifies one of the two slots.
type ID string

const (
	A ID = "A"
	B ID = "B"
)

// Valid reports whether the ID is exactly A or B.
func (id ID) Valid() bool {
	return id == A || id == B
}

// Other returns the opposite slot.
func (id ID) Other() ID {
	if id == A {
		return B
	}
	return A
}

// Label returns the bare slot letter ("A" or "B") for reports and headers.
func (id ID) Label() string {
	return string(id)
}

// Parse converts a string to a slot ID, accepting lower and upper case.
func Parse(s string) (ID, error) {
	switch s {
	case "A", "a":
		return A, nil
	case "B", "b":
		return B, nil
	}
	return "", fmt.Errorf("invalid slot %q", s)
}

// Region describes one slot's storage: the boot area holding the kernel and
// the fast-boot argument bundle, and the root area holding the root
// filesystem.
type Region struct {
	ID      ID
	BootDev string
	RootDev string
}

// Layout is the full A/B layout, keyed by slot ID. It is created once at
// provisioning time and never changes at runtime.
type Layout map[ID]Region

// Validate checks that both slots are fully described.
func (l Layout) Validate() error {
	for _, id := range []ID{A, B} {
		r, ok := l[id]
		if !ok {
			return fmt.Errorf("layout missing slot %s", id)
		}
		if r.BootDev == "" || r.RootDev == "" {
			return fmt.Errorf("slot %s layout incomplete", id)
		}
	}
	return nil
}
