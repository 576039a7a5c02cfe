//go:build !windows

package service

// New returns the Controller for this host.
func New() (Controller, error) {
	return nil, ErrUnsupportedPlatform
}
