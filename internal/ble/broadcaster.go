package ble

import "log/slog"

// LogBroadcaster only logs keepalive values. It stands in when this
// device cannot act as a GATT peripheral.
type LogBroadcaster struct{}

func (LogBroadcaster) SendKeepalive(value []byte) error {
	slog.Debug("[BLE] keepalive (not advertised)", "value", value)
	return nil
}
