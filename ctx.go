package ak09916

import (
	"context"
	"time"
)

// Context-aware variants of the waiting operations. These are behaviourally
// identical to their blocking counterparts but park the goroutine on a timer
// between retries instead of calling the Delayer, so a cooperative scheduler
// can run other work and the operation can be cancelled.
//
// Cancellation only takes effect between retries: the single 8-byte frame
// read and the control-register writes are never interrupted once started,
// so a cancelled operation leaves the sensor's state untouched since the
// last completed transaction.

// PollMeasurementContext waits for the data-ready flag and returns the
// sample, suspending for pollInterval between status reads. It retries until
// data is ready or ctx is done.
func (d *Device) PollMeasurementContext(ctx context.Context, pollInterval time.Duration) (Measurement, error) {
	timer := newStoppedTimer()
	defer timer.Stop()
	for {
		st1, err := d.ReadRegister(regST1)
		if err != nil {
			return Measurement{}, err
		}
		if st1&st1DRDY != 0 {
			return d.readFrame(st1)
		}
		if err := sleepCtx(ctx, timer, pollInterval); err != nil {
			return Measurement{}, err
		}
	}
}

// SelfTestContext runs the self-test like SelfTest, suspending between the
// bounded status polls. Cancellation during the wait restores the pre-test
// mode before returning.
func (d *Device) SelfTestContext(ctx context.Context) (SelfTestResult, error) {
	prev := d.mode

	if err := d.enterSelfTest(); err != nil {
		if d.mode != prev {
			d.abortSelfTest(prev, err)
		}
		return SelfTestResult{}, err
	}

	st1, err := d.awaitSelfTestCtx(ctx)
	if err != nil {
		d.abortSelfTest(prev, err)
		return SelfTestResult{}, err
	}

	m, err := d.readFrame(st1)
	if err != nil {
		d.abortSelfTest(prev, err)
		return SelfTestResult{}, err
	}
	result := newSelfTestResult(m)
	d.tracef("self-test", "valid", result.Valid,
		"hx", m.HX, "hy", m.HY, "hz", m.HZ)

	if err := d.clearAndRestore(prev); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Device) awaitSelfTestCtx(ctx context.Context) (byte, error) {
	timer := newStoppedTimer()
	defer timer.Stop()
	for i := 0; i < d.stRetries; i++ {
		st1, err := d.ReadRegister(regST1)
		if err != nil {
			return 0, err
		}
		if st1&st1DRDY != 0 {
			return st1, nil
		}
		if i < d.stRetries-1 {
			if err := sleepCtx(ctx, timer, d.stPoll); err != nil {
				return 0, err
			}
		}
	}
	return 0, ErrSelfTestTimeout
}

// SoftResetContext issues a soft reset and suspends between CNTL3 polls
// until the reset bit self-clears or ctx is done.
func (d *Device) SoftResetContext(ctx context.Context) error {
	if err := d.writeReg(regCNTL3, cntl3SRST); err != nil {
		return err
	}
	timer := newStoppedTimer()
	defer timer.Stop()
	for {
		if err := sleepCtx(ctx, timer, MinModeSetWait); err != nil {
			return err
		}
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

// Timer plumbing: one timer per operation, re-armed per retry.

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		drainTimer(t)
	}
	return t
}

func sleepCtx(ctx context.Context, t *time.Timer, d time.Duration) error {
	resetTimer(t, d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// resetTimer safely stops, drains, and resets a timer.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		drainTimer(t)
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
