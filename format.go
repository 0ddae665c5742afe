package fastclose

import (
	"cmp"
	"fmt"
	"unsafe"
)

// Format implements [fmt.Formatter].
// A Handle formats exactly like its inner *T, for every verb and flag
// except %T and %p, which fmt resolves before calling Format and which
// therefore describe the *Handle itself.
func (h *Handle[T]) Format(f fmt.State, verb rune) {
	fmt.Fprintf(f, fmt.FormatString(f, verb), h.load())
}

// load returns the inner handle. A nil *Handle holds nothing.
func (h *Handle[T]) load() *T {
	if h == nil {
		return nil
	}
	return h.p.Load()
}

// Equal reports whether h and other hold the same handle.
//
// If *T has an Equal(*T) bool method, it is used. Otherwise two handles are
// equal if they point to the same T. A nil *Handle is equal to a released one.
func (h *Handle[T]) Equal(other *Handle[T]) bool {
	a, b := h.load(), other.load()
	if a != nil && b != nil {
		if e, ok := any(a).(interface{ Equal(*T) bool }); ok {
			return e.Equal(b)
		}
	}
	return a == b
}

// Compare returns -1, 0 or +1 depending on whether h orders before, the same
// as, or after other.
//
// If *T has a Compare(*T) int method, it is used. Otherwise handles are
// ordered by identity, consistently with Equal, with released and nil
// handles first.
func (h *Handle[T]) Compare(other *Handle[T]) int {
	a, b := h.load(), other.load()
	if a != nil && b != nil {
		if c, ok := any(a).(interface{ Compare(*T) int }); ok {
			return c.Compare(b)
		}
	}
	return cmp.Compare(uintptr(unsafe.Pointer(a)), uintptr(unsafe.Pointer(b)))
}
