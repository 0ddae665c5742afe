//go:build fastclose_taskpool

package fastclose

// Selecting more than one backend build tag redeclares buildBackend.
const buildBackend = KindTaskPool
