package sim

import (
	"fmt"

	"github.com/ManuGH/mediahal/internal/errs"
	"github.com/ManuGH/mediahal/internal/mhw"
	"github.com/ManuGH/mediahal/internal/mos"
)

// frame is one level of the batch buffer call stack.
type frame struct {
	dws []uint32
	pc  int
}

type submission struct {
	id     string
	label  string
	frames []frame

	executed int
	blocked  bool
	stalls   int

	done bool
	err  error
}

type engine struct {
	dev    *Device
	params mos.ContextParams
	name   string
	queue  []*submission
	regs   map[mhw.Register]uint32

	wdArmed     bool
	wdThreshold uint32
	wdCount     uint32
}

func (e *engine) head() *submission {
	if len(e.queue) == 0 {
		return nil
	}
	return e.queue[0]
}

// run executes queued submissions in order until the queue drains or the
// head blocks. It reports whether any command executed.
func (e *engine) run() bool {
	progressed := false
	for {
		s := e.head()
		if s == nil {
			return progressed
		}
		ran, finished := e.exec(s)
		if ran {
			progressed = true
		}
		if !finished {
			return progressed
		}
	}
}

// exec advances s. finished is true when s retired, either by completing
// or by a reset.
func (e *engine) exec(s *submission) (ran, finished bool) {
	s.blocked = false
	for len(s.frames) > 0 {
		top := &s.frames[len(s.frames)-1]
		if top.pc >= len(top.dws) {
			s.frames = s.frames[:len(s.frames)-1]
			continue
		}
		cmd, n, err := mhw.Decode(top.dws[top.pc:])
		if err != nil {
			e.fault(s, err)
			return true, true
		}
		adv, err := e.apply(s, top, cmd)
		if err != nil {
			e.fault(s, err)
			return true, true
		}
		if s.blocked {
			return ran, false
		}
		ran = true
		s.stalls = 0
		s.executed++
		if e.dev.opts.RecordTrace {
			e.dev.trace = append(e.dev.trace, Event{Engine: e.name, Label: s.label, Cmd: cmd})
		}
		if adv {
			top.pc += n
		}
		if e.wdArmed {
			e.wdCount++
			if e.wdCount > e.wdThreshold {
				e.reset(s, fmt.Sprintf("watchdog expired after %d commands", e.wdCount))
				return true, true
			}
		} else if s.executed > e.dev.opts.MaxCommands {
			e.reset(s, "command limit exceeded")
			return true, true
		}
	}
	e.retire(s, nil)
	return ran, true
}

// apply executes one command. adv reports whether the program counter of
// the current frame moves past it.
func (e *engine) apply(s *submission, top *frame, cmd mhw.Command) (adv bool, err error) {
	d := e.dev
	switch c := cmd.(type) {
	case mhw.BatchBufferStart:
		dws, err := d.batch(c.Target)
		if err != nil {
			return false, err
		}
		if c.SecondLevel {
			top.pc += c.Dwords()
			s.frames = append(s.frames, frame{dws: dws})
			return false, nil
		}
		d.stats.ChainedJumps++
		*top = frame{dws: dws}
		return false, nil
	case mhw.BatchBufferEnd:
		s.frames = s.frames[:len(s.frames)-1]
		return false, nil
	case mhw.ConditionalBatchBufferEnd:
		v, err := d.read32(c.Addr)
		if err != nil {
			return false, err
		}
		if c.Ends(v) {
			s.frames = s.frames[:len(s.frames)-1]
			return false, nil
		}
	case mhw.StoreDataImm:
		if err := d.write32(c.Addr, c.Value); err != nil {
			return false, err
		}
	case mhw.StoreRegisterMem:
		if err := d.write32(c.Addr, e.readReg(c.Register)); err != nil {
			return false, err
		}
	case mhw.LoadRegisterImm:
		e.writeReg(c.Register, c.Value)
	case mhw.FlushDw:
		if c.PostSync {
			if err := d.write32(c.Addr, c.Value); err != nil {
				return false, err
			}
		}
	case mhw.SemaphoreSignal:
		if err := d.write32(c.Addr, c.Value); err != nil {
			return false, err
		}
	case mhw.SemaphoreWait:
		v, err := d.read32(c.Addr)
		if err != nil {
			return false, err
		}
		if !c.Satisfied(v) {
			s.blocked = true
			return false, nil
		}
	case mhw.PipeModeSelect:
		e.regs[mhw.RegVdboxBytesDecoded] = 0
		e.regs[mhw.RegVdboxErrorStatus] = 0
	case mhw.BsdObject:
		e.regs[mhw.RegVdboxBytesDecoded] += c.Size
		if d.pendingDecErr != 0 {
			e.regs[mhw.RegVdboxErrorStatus] = d.pendingDecErr
			d.pendingDecErr = 0
		}
	case mhw.HucStart:
		d.stats.HucRuns++
	case mhw.SfcFrameStart:
		d.stats.SfcFrames++
	}
	return true, nil
}

func (e *engine) readReg(r mhw.Register) uint32 {
	if r == mhw.RegHucStatus2 {
		return e.dev.nextAuthValue()
	}
	return e.regs[r]
}

func (e *engine) writeReg(r mhw.Register, v uint32) {
	switch r {
	case mhw.RegWatchdogThreshold:
		e.wdThreshold = v
	case mhw.RegWatchdogControl:
		e.wdArmed = v&mhw.WatchdogEnable != 0
		e.wdCount = 0
	}
	e.regs[r] = v
}

func (e *engine) retire(s *submission, err error) {
	s.done = true
	s.err = err
	s.blocked = false
	s.frames = nil
	e.queue = e.queue[1:]
}

// reset models an engine reset: the head submission retires with a
// timeout and engine state is cleared.
func (e *engine) reset(s *submission, reason string) {
	e.dev.stats.Resets++
	e.dev.logger.Warn().Str("engine", e.name).Str("submission", s.id).Str("label", s.label).Str("reason", reason).Msg("engine reset")
	e.wdArmed = false
	e.wdCount = 0
	e.retire(s, errs.New(errs.CodeDeviceTimeout, "engine "+e.name, "%s: %s", s.label, reason))
}

func (e *engine) fault(s *submission, err error) {
	e.dev.stats.Resets++
	e.dev.logger.Error().Err(err).Str("engine", e.name).Str("submission", s.id).Msg("engine fault")
	e.wdArmed = false
	e.wdCount = 0
	e.retire(s, errs.Wrap(errs.CodeHardwareFault, "engine "+e.name, err))
}

type fence struct {
	dev *Device
	sub *submission
}

func (f *fence) ID() string { return f.sub.id }

// Status settles the device and reports the submission state.
func (f *fence) Status() (bool, error) {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.dev.settleLocked()
	return f.sub.done, f.sub.err
}
