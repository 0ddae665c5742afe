//go:build !fastclose_taskpool && !fastclose_goroutine && !fastclose_inline

package fastclose

// The worker pool is the default when no backend build tag is set.
const buildBackend = KindWorkerPool
