package ak09916

import (
	"errors"
	"time"
)

// Errors returned by the driver. Bus errors are returned as-is, never wrapped.
var (
	// ErrNotReady is returned by ReadMeasurement when no new sample is
	// available yet.
	ErrNotReady = errors.New("ak09916: not ready")
	// ErrSelfTestTimeout is returned when the self-test does not complete
	// within the configured number of status polls.
	ErrSelfTestTimeout = errors.New("ak09916: self-test timeout")
	// ErrInvalidTransition is returned by SwitchMode for mode changes the
	// sensor does not accept directly. Switch to ModePowerDown first.
	ErrInvalidTransition = errors.New("ak09916: invalid mode transition")
)

// MinModeSetWait is the minimum settle time after a mode write before the
// next mode write takes effect. SelfTest and ReadSensitivityAdjustment apply
// it internally; callers sequencing their own power-down/mode-select pairs
// should wait at least this long in between.
const MinModeSetWait = 100 * time.Microsecond

// Delayer abstracts the blocking wait used between poll attempts, so hosts
// and MCUs can supply their own timing source and tests can count waits.
type Delayer interface {
	Delay(d time.Duration)
}

type sleepDelayer struct{}

func (sleepDelayer) Delay(d time.Duration) { time.Sleep(d) }

// TraceFunc receives fire-and-forget diagnostic events with key/value pairs.
// It must not block; the driver never reads anything back from it.
type TraceFunc func(event string, kv ...any)

// Mode is the operating mode written to CNTL2. The value is the register
// bit pattern.
type Mode uint8

const (
	ModePowerDown       Mode = 0b00000
	ModeSingle          Mode = 0b00001
	ModeContinuous10Hz  Mode = 0b00010
	ModeContinuous20Hz  Mode = 0b00100
	ModeContinuous50Hz  Mode = 0b00110
	ModeContinuous100Hz Mode = 0b01000
	ModeSelfTest        Mode = 0b10000
	ModeFuseROMAccess   Mode = 0b11111
)

func (m Mode) String() string {
	switch m {
	case ModePowerDown:
		return "power-down"
	case ModeSingle:
		return "single"
	case ModeContinuous10Hz:
		return "continuous-10hz"
	case ModeContinuous20Hz:
		return "continuous-20hz"
	case ModeContinuous50Hz:
		return "continuous-50hz"
	case ModeContinuous100Hz:
		return "continuous-100hz"
	case ModeSelfTest:
		return "self-test"
	case ModeFuseROMAccess:
		return "fuse-rom-access"
	default:
		return "unknown"
	}
}

// legalTransition reports whether the sensor accepts a direct CNTL2 write
// from one mode to another. Any mode may drop to power-down, power-down may
// enter any mode, and leaving self-test or fuse-ROM access mid-procedure is
// accepted (the in-flight procedure is undefined afterwards). Switching
// directly between two measurement modes is not: the sensor requires an
// intermediate power-down.
func legalTransition(from, to Mode) bool {
	switch {
	case to == from:
		return true
	case to == ModePowerDown || from == ModePowerDown:
		return true
	case from == ModeSelfTest || from == ModeFuseROMAccess:
		return true
	default:
		return false
	}
}

// WhoIAm holds the raw identification register contents. The driver does not
// interpret them; compatible part revisions may report different IDs, so the
// comparison against WhoIAmAK09916 is left to the caller.
type WhoIAm struct {
	CompanyID byte
	DeviceID  byte
}

// WhoIAmAK09916 is the identity reported by a genuine AK09916.
var WhoIAmAK09916 = WhoIAm{CompanyID: companyIDAKM, DeviceID: deviceIDAK09916}

// Measurement is one complete sample. HX/HY/HZ are raw counts; Overflow set
// means at least one axis saturated the sensor's range and the counts must
// not be trusted quantitatively (they are still populated for inspection).
// Overrun set means a newer sample overwrote an unread one before this read;
// the data is still the most recent complete sample.
type Measurement struct {
	HX, HY, HZ int16
	Overflow   bool
	Overrun    bool
}

// Canonical fixed-point conversion: exact integer multiply by the sensor
// sensitivity. Use these for comparisons; the float helpers below are
// convenience only.

// XNanoteslas returns the X axis field in nT.
func (m Measurement) XNanoteslas() int32 { return int32(m.HX) * SensitivityNanoteslaPerBit }

// YNanoteslas returns the Y axis field in nT.
func (m Measurement) YNanoteslas() int32 { return int32(m.HY) * SensitivityNanoteslaPerBit }

// ZNanoteslas returns the Z axis field in nT.
func (m Measurement) ZNanoteslas() int32 { return int32(m.HZ) * SensitivityNanoteslaPerBit }

// XMicroteslas returns the X axis field in µT.
func (m Measurement) XMicroteslas() float64 { return float64(m.XNanoteslas()) / 1000 }

// YMicroteslas returns the Y axis field in µT.
func (m Measurement) YMicroteslas() float64 { return float64(m.YNanoteslas()) / 1000 }

// ZMicroteslas returns the Z axis field in µT.
func (m Measurement) ZMicroteslas() float64 { return float64(m.ZNanoteslas()) / 1000 }

// decodeMeasurement builds a Measurement from the ST1 byte observed before
// the read and the 8-byte HXL..ST2 frame.
func decodeMeasurement(st1 byte, frame []byte) Measurement {
	return Measurement{
		HX:       int16(uint16(frame[0]) | uint16(frame[1])<<8),
		HY:       int16(uint16(frame[2]) | uint16(frame[3])<<8),
		HZ:       int16(uint16(frame[4]) | uint16(frame[5])<<8),
		Overflow: frame[7]&st2HOFL != 0,
		Overrun:  st1&st1DOR != 0,
	}
}

// Self-test tolerance intervals in raw counts, inclusive on both ends.
const (
	selfTestMinXY = -200
	selfTestMaxXY = 200
	selfTestMinZ  = -1000
	selfTestMaxZ  = -200
)

// SelfTestResult holds the self-test measurement and its verdict.
type SelfTestResult struct {
	Measurement Measurement
	// Valid is true when every axis delta lies inside its factory
	// tolerance interval.
	Valid bool
}

func newSelfTestResult(m Measurement) SelfTestResult {
	valid := m.HX >= selfTestMinXY && m.HX <= selfTestMaxXY &&
		m.HY >= selfTestMinXY && m.HY <= selfTestMaxXY &&
		m.HZ >= selfTestMinZ && m.HZ <= selfTestMaxZ
	return SelfTestResult{Measurement: m, Valid: valid}
}

// SensitivityAdjustment holds the fuse-ROM per-axis adjustment values.
type SensitivityAdjustment struct {
	ASAX, ASAY, ASAZ byte
}

// Adjust applies the fuse-ROM correction for one axis to a raw count:
// adjusted = h * (asa + 128) / 256. Integer arithmetic, truncating toward
// zero, identical on every target.
func adjust(h int16, asa byte) int16 {
	return int16(int32(h) * (int32(asa) + 128) / 256)
}

// AdjustX returns the X raw count corrected by the fuse-ROM value.
func (s SensitivityAdjustment) AdjustX(h int16) int16 { return adjust(h, s.ASAX) }

// AdjustY returns the Y raw count corrected by the fuse-ROM value.
func (s SensitivityAdjustment) AdjustY(h int16) int16 { return adjust(h, s.ASAY) }

// AdjustZ returns the Z raw count corrected by the fuse-ROM value.
func (s SensitivityAdjustment) AdjustZ(h int16) int16 { return adjust(h, s.ASAZ) }

// RegisterDump is a debugging snapshot of all non-reserved registers, read
// in a single 16-byte transaction starting at WIA1.
type RegisterDump struct {
	CompanyID byte
	DeviceID  byte
	ST1       byte
	HX        int16
	HY        int16
	HZ        int16
	ST2       byte
	CNTL2     byte
	CNTL3     byte
}

func decodeRegisterDump(buf []byte) RegisterDump {
	return RegisterDump{
		CompanyID: buf[0],
		DeviceID:  buf[1],
		ST1:       buf[4],
		HX:        int16(uint16(buf[5]) | uint16(buf[6])<<8),
		HY:        int16(uint16(buf[7]) | uint16(buf[8])<<8),
		HZ:        int16(uint16(buf[9]) | uint16(buf[10])<<8),
		ST2:       buf[12],
		CNTL2:     buf[14],
		CNTL3:     buf[15],
	}
}
