// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package secretmaterial wraps raw secret bytes (the SQLCipher database
// key, OAuth tokens) in an opaque handle that denies default string
// formatting and exposes a single Reveal accessor, per the design note
// that in-memory secret handles should never leak via %v/%s or accidental
// logging. The underlying storage is a memguard.LockedBuffer so the bytes
// are also mlock'd and wiped on Destroy.
package secretmaterial

import (
	"crypto/subtle"
	"fmt"

	"github.com/awnumar/memguard"
)

// Material is an opaque, memory-locked holder of secret bytes. Its zero
// value is not usable; construct with New or NewFromString.
type Material struct {
	buf *memguard.LockedBuffer
}

// New copies b into a locked buffer and wipes the caller's copy.
func New(b []byte) *Material {
	buf := memguard.NewBufferFromBytes(b)
	return &Material{buf: buf}
}

// NewFromString is a convenience constructor for base64-nopad-encoded
// material read back from a keychain entry.
func NewFromString(s string) *Material {
	return New([]byte(s))
}

// Reveal returns the underlying bytes. Callers must treat the returned
// slice as read-only and as short-lived as possible; it aliases the
// locked buffer's memory.
func (m *Material) Reveal() []byte {
	if m == nil || m.buf == nil {
		return nil
	}
	return m.buf.Bytes()
}

// String deliberately does not expose the secret, so that fmt.Sprintf,
// log lines, and %v formatting never leak material by accident.
func (m *Material) String() string {
	return "secretmaterial.Material(redacted)"
}

// GoString mirrors String so %#v is equally safe.
func (m *Material) GoString() string { return m.String() }

// Destroy wipes and releases the underlying memory. Safe to call more
// than once.
func (m *Material) Destroy() {
	if m == nil || m.buf == nil {
		return
	}
	m.buf.Destroy()
}

// Equal reports whether two Materials hold the same bytes, in constant
// time with respect to the operands' length via crypto/subtle (operands
// of different lengths compare unequal at once). Used by tests that
// assert ensure() idempotence without revealing either value in a
// failure message.
func (m *Material) Equal(other *Material) bool {
	if m == nil || other == nil {
		return m == other
	}
	return subtle.ConstantTimeCompare(m.Reveal(), other.Reveal()) == 1
}

var _ fmt.Stringer = (*Material)(nil)
