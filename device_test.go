package ak09916

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"tinygo.org/x/drivers"
)

// Compile-time check.
var _ drivers.I2C = (*fakeBus)(nil)

type regWrite struct {
	reg, val byte
}

// fakeBus is a scripted register-file fake. Every Tx is either a write-read
// of a known register or a two-byte register write; anything else fails the
// test that triggered it.
type fakeBus struct {
	wia      [2]byte
	notReady int     // ST1 reads with DRDY clear before data becomes ready
	overrun  bool    // DOR set on every ST1 read
	frame    [8]byte // HXL..ST2 frame served once ready
	asa      [3]byte
	srstPoll int // CNTL3 reads with SRST still set after a reset write

	statusReads int
	frameReads  int
	txs         int
	writes      []regWrite

	err       error                      // injected: returned by every Tx
	failWrite func(reg, val byte) error // consulted before recording a write
}

func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.txs++
	if f.err != nil {
		return f.err
	}
	if addr != Address {
		return fmt.Errorf("unexpected address %#x", addr)
	}
	switch {
	case len(w) == 1 && len(r) > 0: // register read
		switch w[0] {
		case regWIA1:
			if len(r) >= 16 {
				f.fillDump(r)
				return nil
			}
			r[0], r[1] = f.wia[0], f.wia[1]
		case regST1:
			f.statusReads++
			var st byte
			if f.notReady > 0 {
				f.notReady--
			} else {
				st |= st1DRDY
			}
			if f.overrun {
				st |= st1DOR
			}
			r[0] = st
		case regHXL:
			if len(r) != measurementFrameLen {
				return fmt.Errorf("frame read of %d bytes", len(r))
			}
			f.frameReads++
			copy(r, f.frame[:])
		case regASAX:
			copy(r, f.asa[:])
		case regCNTL3:
			if f.srstPoll > 0 {
				f.srstPoll--
				r[0] = cntl3SRST
			} else {
				r[0] = 0
			}
		default:
			return fmt.Errorf("unexpected register read %#x", w[0])
		}
		return nil
	case len(w) == 2 && len(r) == 0: // register write
		if f.failWrite != nil {
			if err := f.failWrite(w[0], w[1]); err != nil {
				return err
			}
		}
		f.writes = append(f.writes, regWrite{w[0], w[1]})
		return nil
	}
	return fmt.Errorf("unexpected transaction w=%d r=%d", len(w), len(r))
}

func (f *fakeBus) fillDump(r []byte) {
	for i := range r {
		r[i] = 0
	}
	r[0], r[1] = f.wia[0], f.wia[1]
	if f.notReady == 0 {
		r[4] |= st1DRDY
	}
	copy(r[5:13], f.frame[:])
}

// cntl2Writes extracts the CNTL2 write values in order.
func (f *fakeBus) cntl2Writes() []byte {
	var out []byte
	for _, w := range f.writes {
		if w.reg == regCNTL2 {
			out = append(out, w.val)
		}
	}
	return out
}

func mkFrame(x, y, z int16, st2 byte) [8]byte {
	return [8]byte{
		byte(uint16(x)), byte(uint16(x) >> 8),
		byte(uint16(y)), byte(uint16(y) >> 8),
		byte(uint16(z)), byte(uint16(z) >> 8),
		0, st2,
	}
}

type countingDelay struct {
	n     int
	total time.Duration
}

func (c *countingDelay) Delay(d time.Duration) {
	c.n++
	c.total += d
}

func newTestDevice(bus *fakeBus) (*Device, *countingDelay) {
	delay := &countingDelay{}
	d := New(bus, Config{Delay: delay})
	return d, delay
}

func TestWhoIAmVerbatim(t *testing.T) {
	// Unknown IDs must come back uninterpreted, not as an error.
	bus := &fakeBus{wia: [2]byte{0xAA, 0x55}}
	d, _ := newTestDevice(bus)

	wia, err := d.WhoIAm()
	if err != nil {
		t.Fatalf("WhoIAm: %v", err)
	}
	if wia.CompanyID != 0xAA || wia.DeviceID != 0x55 {
		t.Fatalf("WhoIAm = %+v, want {AA 55}", wia)
	}
	if bus.txs != 1 {
		t.Fatalf("txs = %d, want 1", bus.txs)
	}
}

func TestWhoIAmMatchesKnownPart(t *testing.T) {
	bus := &fakeBus{wia: [2]byte{0x48, 0x09}}
	d, _ := newTestDevice(bus)

	wia, err := d.WhoIAm()
	if err != nil {
		t.Fatalf("WhoIAm: %v", err)
	}
	if wia != WhoIAmAK09916 {
		t.Fatalf("WhoIAm = %+v, want %+v", wia, WhoIAmAK09916)
	}
}

func TestSwitchModeWritesExactlyOnce(t *testing.T) {
	bus := &fakeBus{}
	d, _ := newTestDevice(bus)

	if err := d.SwitchMode(ModeContinuous10Hz); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if bus.txs != 1 {
		t.Fatalf("txs = %d, want exactly 1 write and no reads", bus.txs)
	}
	want := []regWrite{{regCNTL2, byte(ModeContinuous10Hz)}}
	if len(bus.writes) != 1 || bus.writes[0] != want[0] {
		t.Fatalf("writes = %v, want %v", bus.writes, want)
	}
	if d.Mode() != ModeContinuous10Hz {
		t.Fatalf("Mode = %v", d.Mode())
	}
}

func TestSwitchModeRejectsDirectModeChange(t *testing.T) {
	bus := &fakeBus{}
	d, _ := newTestDevice(bus)

	if err := d.SwitchMode(ModeContinuous10Hz); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	err := d.SwitchMode(ModeContinuous100Hz)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if bus.txs != 1 {
		t.Fatalf("txs = %d, rejected transition must not touch the bus", bus.txs)
	}
	if d.Mode() != ModeContinuous10Hz {
		t.Fatalf("Mode = %v, must be unchanged after rejection", d.Mode())
	}

	// Power-down in between makes the same change legal.
	if err := d.SwitchMode(ModePowerDown); err != nil {
		t.Fatalf("SwitchMode power-down: %v", err)
	}
	if err := d.SwitchMode(ModeContinuous100Hz); err != nil {
		t.Fatalf("SwitchMode after power-down: %v", err)
	}
	if got := bus.cntl2Writes(); len(got) != 3 || got[2] != byte(ModeContinuous100Hz) {
		t.Fatalf("cntl2 writes = %v", got)
	}
}

func TestPollMeasurementWaitDiscipline(t *testing.T) {
	bus := &fakeBus{
		notReady: 3,
		frame:    mkFrame(123, -456, 789, 0),
	}
	d, delay := newTestDevice(bus)
	if err := d.SwitchMode(ModeContinuous10Hz); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}

	m, err := d.PollMeasurement(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("PollMeasurement: %v", err)
	}
	if bus.statusReads != 4 {
		t.Fatalf("statusReads = %d, want k+1 = 4", bus.statusReads)
	}
	if delay.n != 3 {
		t.Fatalf("delays = %d, want k = 3", delay.n)
	}
	if bus.frameReads != 1 {
		t.Fatalf("frameReads = %d, want a single indivisible read", bus.frameReads)
	}
	if m.HX != 123 || m.HY != -456 || m.HZ != 789 {
		t.Fatalf("axes = %d %d %d", m.HX, m.HY, m.HZ)
	}
	if m.Overflow || m.Overrun {
		t.Fatalf("flags = %+v, want clear", m)
	}
}

func TestPollMeasurementPropagatesOverrun(t *testing.T) {
	bus := &fakeBus{
		overrun: true,
		frame:   mkFrame(1, 2, 3, 0),
	}
	d, _ := newTestDevice(bus)

	m, err := d.PollMeasurement(time.Millisecond)
	if err != nil {
		t.Fatalf("PollMeasurement: %v", err)
	}
	if !m.Overrun {
		t.Fatal("Overrun not carried from the status read into the result")
	}
	if m.Overflow {
		t.Fatal("Overflow set without HOFL")
	}
}

func TestOverflowKeepsAxisValues(t *testing.T) {
	bus := &fakeBus{
		frame: mkFrame(32767, -32768, -1, st2HOFL),
	}
	d, _ := newTestDevice(bus)

	m, err := d.PollMeasurement(time.Millisecond)
	if err != nil {
		t.Fatalf("PollMeasurement: %v", err)
	}
	if !m.Overflow {
		t.Fatal("Overflow not decoded from ST2")
	}
	if m.HX != 32767 || m.HY != -32768 || m.HZ != -1 {
		t.Fatalf("axes zeroed on overflow: %d %d %d", m.HX, m.HY, m.HZ)
	}
}

func TestReadMeasurementNotReady(t *testing.T) {
	bus := &fakeBus{notReady: 1}
	d, _ := newTestDevice(bus)

	_, err := d.ReadMeasurement()
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
	if bus.frameReads != 0 {
		t.Fatal("frame read without data ready")
	}

	bus.frame = mkFrame(7, 8, 9, 0)
	m, err := d.ReadMeasurement()
	if err != nil {
		t.Fatalf("ReadMeasurement: %v", err)
	}
	if m.HX != 7 || m.HY != 8 || m.HZ != 9 {
		t.Fatalf("axes = %d %d %d", m.HX, m.HY, m.HZ)
	}
}

func TestTransportErrorsPassThroughVerbatim(t *testing.T) {
	busErr := errors.New("i2c: arbitration lost")
	bus := &fakeBus{err: busErr}
	d, delay := newTestDevice(bus)

	if _, err := d.PollMeasurement(time.Millisecond); !errors.Is(err, busErr) {
		t.Fatalf("PollMeasurement err = %v, want the bus error unchanged", err)
	}
	if delay.n != 0 {
		t.Fatal("retried after a transport error")
	}
	if _, err := d.WhoIAm(); !errors.Is(err, busErr) {
		t.Fatalf("WhoIAm err = %v", err)
	}
	if err := d.SwitchMode(ModeSingle); !errors.Is(err, busErr) {
		t.Fatalf("SwitchMode err = %v", err)
	}
	if d.Mode() != ModePowerDown {
		t.Fatal("mode advanced although the control write failed")
	}
}

func TestSingleShotDropsToPowerDown(t *testing.T) {
	bus := &fakeBus{frame: mkFrame(1, 1, 1, 0)}
	d, _ := newTestDevice(bus)

	if err := d.SwitchMode(ModeSingle); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if _, err := d.PollMeasurement(time.Millisecond); err != nil {
		t.Fatalf("PollMeasurement: %v", err)
	}
	if d.Mode() != ModePowerDown {
		t.Fatalf("Mode = %v, single-shot read must drop to power-down", d.Mode())
	}
}

func TestSoftReset(t *testing.T) {
	bus := &fakeBus{srstPoll: 2}
	d, delay := newTestDevice(bus)
	if err := d.SwitchMode(ModeContinuous50Hz); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}

	if err := d.SoftReset(); err != nil {
		t.Fatalf("SoftReset: %v", err)
	}
	if d.Mode() != ModePowerDown {
		t.Fatalf("Mode = %v after reset", d.Mode())
	}
	if len(bus.writes) != 2 || bus.writes[1] != (regWrite{regCNTL3, cntl3SRST}) {
		t.Fatalf("writes = %v", bus.writes)
	}
	// Two polls with SRST still set, then the clear read: three waits.
	if delay.n != 3 {
		t.Fatalf("delays = %d, want 3", delay.n)
	}
}

func TestReadSensitivityAdjustment(t *testing.T) {
	bus := &fakeBus{asa: [3]byte{128, 255, 0}}
	d, _ := newTestDevice(bus)
	if err := d.SwitchMode(ModeContinuous10Hz); err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}

	asa, err := d.ReadSensitivityAdjustment()
	if err != nil {
		t.Fatalf("ReadSensitivityAdjustment: %v", err)
	}
	if asa != (SensitivityAdjustment{ASAX: 128, ASAY: 255, ASAZ: 0}) {
		t.Fatalf("asa = %+v", asa)
	}
	want := []byte{
		byte(ModeContinuous10Hz),
		byte(ModePowerDown),
		byte(ModeFuseROMAccess),
		byte(ModePowerDown),
	}
	got := bus.cntl2Writes()
	if len(got) != len(want) {
		t.Fatalf("cntl2 writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cntl2 writes = %v, want %v", got, want)
		}
	}
	if d.Mode() != ModePowerDown {
		t.Fatalf("Mode = %v, fuse read must end in power-down", d.Mode())
	}
}

func TestDumpRegisters(t *testing.T) {
	bus := &fakeBus{
		wia:   [2]byte{0x48, 0x09},
		frame: mkFrame(100, 200, -300, st2HOFL),
	}
	d, _ := newTestDevice(bus)

	dump, err := d.DumpRegisters()
	if err != nil {
		t.Fatalf("DumpRegisters: %v", err)
	}
	if dump.CompanyID != 0x48 || dump.DeviceID != 0x09 {
		t.Fatalf("identity = %#x %#x", dump.CompanyID, dump.DeviceID)
	}
	if dump.HX != 100 || dump.HY != 200 || dump.HZ != -300 {
		t.Fatalf("axes = %d %d %d", dump.HX, dump.HY, dump.HZ)
	}
	if dump.ST2&st2HOFL == 0 {
		t.Fatal("ST2 HOFL lost in dump")
	}
	if bus.txs != 1 {
		t.Fatalf("txs = %d, dump must be one transaction", bus.txs)
	}
}
