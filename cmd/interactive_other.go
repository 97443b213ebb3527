//go:build !windows

package main

// enableVT is a no-op; other terminals handle ANSI sequences natively.
func enableVT() (restore func()) { return func() {} }
