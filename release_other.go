//go:build !windows

package fastclose

const comptimeDeferClose = false
