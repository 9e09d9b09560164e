//go:build !linux

package gpio

import "errors"

// CdevChip is not available on non-Linux platforms.
type CdevChip struct{}

// NewCdevChip returns an error on non-Linux platforms.
func NewCdevChip(name string) (*CdevChip, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

// Triggers reports no triggers.
func (c *CdevChip) Triggers() Trigger {
	return TriggerNone
}

// RequestInput is not implemented on non-Linux platforms.
func (c *CdevChip) RequestInput(locator string, pull Pull, handler EventHandler) (Input, error) {
	return nil, errors.New("gpio: not supported")
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *CdevChip) RequestOutput(locator string) (Output, error) {
	return nil, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (c *CdevChip) Close() error {
	return nil
}
