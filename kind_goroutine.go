//go:build fastclose_goroutine

package fastclose

// Selecting more than one backend build tag redeclares buildBackend.
const buildBackend = KindGoroutine
