//go:build fastclose_inline

package fastclose

// Selecting more than one backend build tag redeclares buildBackend.
const buildBackend = KindInline
