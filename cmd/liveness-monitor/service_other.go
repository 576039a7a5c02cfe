//go:build !windows

package main

// runHosted reports whether the monitor ran under a service manager. Only
// the Windows SCM is supported.
func runHosted(*app) (bool, error) { return false, nil }
