package ble

// KeepaliveCounter is the 8-bit value broadcast with each keepalive.
// It wraps from 255 to 0; peers only use it as a liveness signal, so
// repeated values are fine.
type KeepaliveCounter struct {
	value uint8
}

// Next increments the counter modulo 256 and returns the new value.
func (c *KeepaliveCounter) Next() uint8 {
	c.value = uint8((uint16(c.value) + 1) % 256)
	return c.value
}

// Value returns the last value produced by Next.
func (c *KeepaliveCounter) Value() uint8 {
	return c.value
}
