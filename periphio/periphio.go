// Package periphio adapts a periph.io I²C bus to the tinygo-style bus
// interface the ak09916 driver consumes, so the same driver code runs on
// Linux hosts (Raspberry Pi and similar) as on microcontrollers.
package periphio

import (
	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers"
)

type bus struct {
	b i2c.Bus
}

// Wrap returns a drivers.I2C backed by the given periph bus. Both interfaces
// use write-then-read with a repeated start when w and r are both supplied,
// which is what the driver's measurement frame read relies on.
func Wrap(b i2c.Bus) drivers.I2C {
	return bus{b: b}
}

func (a bus) Tx(addr uint16, w, r []byte) error {
	return a.b.Tx(addr, w, r)
}
