package ak09916

import (
	"time"

	"tinygo.org/x/drivers"
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x0C if zero.
	Address uint16
	// Delay supplies the blocking waits used by the polling methods.
	// Defaults to time.Sleep.
	Delay Delayer
	// SelfTestRetries bounds the number of status polls during a
	// self-test. Default 20.
	SelfTestRetries int
	// SelfTestPollInterval is the wait between self-test status polls.
	// Default 1 ms.
	SelfTestPollInterval time.Duration
	// Trace, if set, receives diagnostic events. Fire-and-forget.
	Trace TraceFunc
}

// Device is a driver instance bound to one sensor on one bus. It tracks the
// operating mode it last wrote; the sensor has no mode read-back, so the
// tracked value is trusted as long as writes succeed.
//
// A Device must not be used from multiple goroutines without external
// serialisation.
type Device struct {
	bus   drivers.I2C
	addr  uint16
	delay Delayer
	trace TraceFunc

	stRetries int
	stPoll    time.Duration

	mode Mode

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [16]byte
}

// New constructs a Device with the supplied config. It only creates the
// driver object; it does not touch the sensor, which powers up in
// power-down mode.
func New(bus drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = Address
	}
	delay := cfg.Delay
	if delay == nil {
		delay = sleepDelayer{}
	}
	retries := cfg.SelfTestRetries
	if retries <= 0 {
		retries = 20
	}
	stPoll := cfg.SelfTestPollInterval
	if stPoll <= 0 {
		stPoll = time.Millisecond
	}
	return &Device{
		bus:       bus,
		addr:      addr,
		delay:     delay,
		trace:     cfg.Trace,
		stRetries: retries,
		stPoll:    stPoll,
		mode:      ModePowerDown,
	}
}

// Mode returns the operating mode the driver last wrote successfully,
// accounting for the sensor's automatic drop to power-down after single-shot
// and self-test reads.
func (d *Device) Mode() Mode { return d.mode }

func (d *Device) tracef(event string, kv ...any) {
	if d.trace != nil {
		d.trace(event, kv...)
	}
}

// Register transport. One Tx per operation; reads use a repeated start.

func (d *Device) readRegs(reg byte, dst []byte) error {
	d.w[0] = reg
	return d.bus.Tx(d.addr, d.w[:1], dst)
}

func (d *Device) writeReg(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.bus.Tx(d.addr, d.w[:2], nil)
}

// ReadRegister reads a single register. Low-level escape hatch; prefer the
// typed methods.
func (d *Device) ReadRegister(reg byte) (byte, error) {
	if err := d.readRegs(reg, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

// WriteRegister writes a single register. Low-level escape hatch: the driver
// does not see the write, so the tracked mode may go stale if CNTL2 is
// written this way.
func (d *Device) WriteRegister(reg, val byte) error {
	return d.writeReg(reg, val)
}

// WhoIAm reads the two identification registers and returns them verbatim.
func (d *Device) WhoIAm() (WhoIAm, error) {
	if err := d.readRegs(regWIA1, d.r[:2]); err != nil {
		return WhoIAm{}, err
	}
	return WhoIAm{CompanyID: d.r[0], DeviceID: d.r[1]}, nil
}

// SwitchMode writes CNTL2 to select the target operating mode. Exactly one
// register write is issued; there are no implicit reads and no read-back
// verification. Illegal direct transitions (measurement mode to measurement
// mode) return ErrInvalidTransition without touching the bus; go through
// ModePowerDown and wait MinModeSetWait instead.
func (d *Device) SwitchMode(target Mode) error {
	if !legalTransition(d.mode, target) {
		return ErrInvalidTransition
	}
	if err := d.writeReg(regCNTL2, byte(target)); err != nil {
		return err
	}
	d.mode = target
	return nil
}

// ReadMeasurement performs a single measurement fetch attempt. It returns
// ErrNotReady if no new sample is available; any bus error is returned
// as-is.
func (d *Device) ReadMeasurement() (Measurement, error) {
	st1, err := d.ReadRegister(regST1)
	if err != nil {
		return Measurement{}, err
	}
	if st1&st1DRDY == 0 {
		return Measurement{}, ErrNotReady
	}
	return d.readFrame(st1)
}

// PollMeasurement waits for the data-ready flag and returns the sample. It
// retries indefinitely with pollInterval waits in between: the sensor's
// update cadence depends on the selected mode, so bounding the total wait
// is the caller's job (use PollMeasurementContext for cancellation).
//
// With a mock bus that reports not-ready k times, this performs exactly k+1
// status reads and k waits.
func (d *Device) PollMeasurement(pollInterval time.Duration) (Measurement, error) {
	for {
		st1, err := d.ReadRegister(regST1)
		if err != nil {
			return Measurement{}, err
		}
		if st1&st1DRDY != 0 {
			return d.readFrame(st1)
		}
		d.delay.Delay(pollInterval)
	}
}

// readFrame reads HXL..ST2 in one indivisible transaction. Reading ST2 at
// the end releases the sensor's data-ready latch; splitting the read would
// risk torn data or a latch that never clears. st1 is the status observed
// just before, whose DOR bit is carried into the result.
func (d *Device) readFrame(st1 byte) (Measurement, error) {
	if err := d.readRegs(regHXL, d.r[:measurementFrameLen]); err != nil {
		return Measurement{}, err
	}
	d.noteAutoPowerDown()
	return decodeMeasurement(st1, d.r[:measurementFrameLen]), nil
}

// noteAutoPowerDown tracks the sensor's automatic transition to power-down
// once a single-shot or self-test measurement has been read out.
func (d *Device) noteAutoPowerDown() {
	if d.mode == ModeSingle || d.mode == ModeSelfTest {
		d.mode = ModePowerDown
	}
}

// SoftReset writes the CNTL3 soft-reset bit and waits for it to self-clear.
// The sensor ends up in power-down mode.
func (d *Device) SoftReset() error {
	if err := d.writeReg(regCNTL3, cntl3SRST); err != nil {
		return err
	}
	for {
		d.delay.Delay(MinModeSetWait)
		cntl3, err := d.ReadRegister(regCNTL3)
		if err != nil {
			return err
		}
		if cntl3&cntl3SRST == 0 {
			d.mode = ModePowerDown
			d.tracef("soft-reset")
			return nil
		}
	}
}

// ReadSensitivityAdjustment reads the factory fuse-ROM adjustment values.
// The sensor is dropped to power-down first if needed and is left in
// power-down afterwards; reselect a measurement mode before polling again.
func (d *Device) ReadSensitivityAdjustment() (SensitivityAdjustment, error) {
	if d.mode != ModePowerDown {
		if err := d.SwitchMode(ModePowerDown); err != nil {
			return SensitivityAdjustment{}, err
		}
		d.delay.Delay(MinModeSetWait)
	}
	if err := d.SwitchMode(ModeFuseROMAccess); err != nil {
		return SensitivityAdjustment{}, err
	}
	if err := d.readRegs(regASAX, d.r[:3]); err != nil {
		return SensitivityAdjustment{}, err
	}
	asa := SensitivityAdjustment{ASAX: d.r[0], ASAY: d.r[1], ASAZ: d.r[2]}
	if err := d.SwitchMode(ModePowerDown); err != nil {
		return asa, err
	}
	return asa, nil
}

// DumpRegisters reads all non-reserved registers in one 16-byte transaction
// starting at WIA1. Debugging aid; note that the read passes through ST2 and
// therefore releases the data-ready latch like a measurement read does.
func (d *Device) DumpRegisters() (RegisterDump, error) {
	if err := d.readRegs(regWIA1, d.r[:16]); err != nil {
		return RegisterDump{}, err
	}
	dump := decodeRegisterDump(d.r[:16])
	if dump.ST1&st1DRDY != 0 {
		d.noteAutoPowerDown()
	}
	return dump, nil
}
