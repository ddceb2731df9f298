//go:build !linux

package ble

import (
	"errors"

	"tinygo.org/x/bluetooth"
)

// GATTBroadcaster is unavailable on this platform; tinygo bluetooth only
// supports the peripheral role on Linux.
type GATTBroadcaster struct{}

func NewGATTBroadcaster(_ *bluetooth.Adapter, _ ListenerOptions, _ string) *GATTBroadcaster {
	return &GATTBroadcaster{}
}

func (b *GATTBroadcaster) Start(_ []byte) error {
	return errors.New("ble: peripheral role not supported on this platform")
}

func (b *GATTBroadcaster) SendKeepalive(_ []byte) error {
	return errors.New("ble: peripheral role not supported on this platform")
}
