// Package ak09916 provides a driver for the AKM AK09916 family of 3-axis
// I²C magnetometers.
//
// Typical use:
//
//	d := ak09916.New(bus, ak09916.Config{})
//	wia, err := d.WhoIAm()          // optional identity check
//	err = d.SwitchMode(ak09916.ModeContinuous10Hz)
//	m, err := d.PollMeasurement(10 * time.Millisecond)
//	x := m.XNanoteslas()
//
// The driver owns no goroutines and is not safe for concurrent use; callers
// that share a Device across tasks must serialise access externally.
//
// NOTE: the bus implementation's Tx MUST perform a write followed by a
// repeated-start read when both w and r are provided, without releasing the
// bus. The 8-byte measurement read is a hardware-imposed single transaction:
// reading ST2 at its end releases the sensor's data-ready latch, and
// splitting the read risks torn data or a latch that never clears.
package ak09916

// 7-bit I2C address (CAD0/CAD1 low).
const Address = 0x0C

// Sensitivity of the sensor in nT per LSB.
const SensitivityNanoteslaPerBit = 150

// Register sub-addresses.
const (
	regWIA1 = 0x00 // R, company ID
	regWIA2 = 0x01 // R, device ID

	regST1  = 0x10 // R, DRDY/DOR
	regHXL  = 0x11 // R, X low
	regHXH  = 0x12 // R, X high
	regHYL  = 0x13 // R, Y low
	regHYH  = 0x14 // R, Y high
	regHZL  = 0x15 // R, Z low
	regHZH  = 0x16 // R, Z high
	regTMPS = 0x17 // R, dummy
	regST2  = 0x18 // R, HOFL; read releases the data latch

	regCNTL1 = 0x30 // W, self-test control
	regCNTL2 = 0x31 // W, operating mode
	regCNTL3 = 0x32 // R/W, soft reset
)

// Fuse ROM sensitivity adjustment, readable in fuse-ROM access mode only.
const (
	regASAX = 0x60
	regASAY = 0x61
	regASAZ = 0x62
)

// Status and control bits.
const (
	st1DRDY = 1 << 0 // data ready
	st1DOR  = 1 << 1 // data overrun

	st2HOFL = 1 << 3 // magnetic sensor overflow

	cntl1SelfTest = 1 << 6 // self-test trigger
	cntl3SRST     = 1 << 0 // soft reset, self-clearing
)

// Length of the HXL..ST2 measurement frame (6 axis bytes, TMPS dummy, ST2).
const measurementFrameLen = 8

// Expected identity register contents.
const (
	companyIDAKM    = 0x48
	deviceIDAK09916 = 0x09
)
