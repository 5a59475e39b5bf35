// Package group implements the multi-motor DMA wave scheduler: k-way pulse
// merge, bounded wave packing, pipelined dispatch, and position commit on
// wave completion. Grounded on
// _examples/original_source/steppergroup.py's multimotor.
package group

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pootle/pisteppers/internal/dma"
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/logger"
	"github.com/pootle/pisteppers/internal/metrics"
	"github.com/pootle/pisteppers/internal/motor"
	"github.com/pootle/pisteppers/internal/observable"
)

// Mode is the group's top-level state, per spec.md §4.4.5.
type Mode int

const (
	ModeOff Mode = iota
	ModeDMAStepping
	ModeClosed
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeDMAStepping:
		return "dma-stepping"
	case ModeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// pollInterval is the pipeline's poll-sleep between dma.Engine.WaveTxAt
// calls, per spec.md §4.4.3's "~10-100ms" guidance.
const pollInterval = 20 * time.Millisecond

// RunRequest is one motor's participation in a run_fast call.
type RunRequest struct {
	MotorID   string
	StepMode  string
	Command   interval.Command // CommandGoto, CommandOneGoto or CommandRun
	TargetPos int64
	TargetDir interval.Dir
}

// Group is the motor group / wave scheduler.
type Group struct {
	motors map[string]*motor.Motor
	engine dma.Engine
	log    *zap.Logger

	maxPulsesPerWave *observable.Cell[int]
	maxWaveMicros    *observable.Cell[int64]
	maxPendingWaves  *observable.Cell[int]

	mode *observable.Cell[Mode]

	metrics *metrics.Metrics

	mu sync.Mutex
	wg sync.WaitGroup
}

// New builds a group over motors and engine, seeding the wave-limit cells
// from the engine's reported capabilities (steppergroup.py's __init__
// reads pigpmspw/pigpppw/pigpbpw from the daemon the same way) and
// clamping them to any narrower configured limits. mtx may be nil if the
// caller does not want process-wide counters.
func New(motors map[string]*motor.Motor, engine dma.Engine, maxPulsesPerWave int, maxWaveMicros int64, maxPendingWaves int, mtx *metrics.Metrics) *Group {
	enginePulses := engine.MaxPulsesPerWave()
	if maxPulsesPerWave <= 0 || maxPulsesPerWave > enginePulses {
		maxPulsesPerWave = enginePulses
	}
	engineMicros := int64(engine.MaxMicrosPerWave())
	if maxWaveMicros <= 0 || maxWaveMicros > engineMicros {
		maxWaveMicros = engineMicros
	}
	if maxPendingWaves <= 0 {
		maxPendingWaves = 2
	}
	return &Group{
		motors:           motors,
		engine:           engine,
		log:              logger.Get(),
		maxPulsesPerWave: observable.NewCell(maxPulsesPerWave, positiveInt),
		maxWaveMicros:    observable.NewCell(maxWaveMicros, positiveInt64),
		maxPendingWaves:  observable.NewCell(maxPendingWaves, positiveInt),
		mode:             observable.NewCell(ModeOff, nil),
		metrics:          mtx,
	}
}

func positiveInt(v int) error {
	if v <= 0 {
		return errs.Wrap(errs.Configuration, "wave limit must be positive, got %d", v)
	}
	return nil
}

func positiveInt64(v int64) error {
	if v <= 0 {
		return errs.Wrap(errs.Configuration, "wave limit must be positive, got %d", v)
	}
	return nil
}

func (g *Group) Mode() Mode { return g.mode.Get() }

// SetMaxPulsesPerWave live-edits the pulses-per-wave cap. Every wave packed
// after the call uses it, including later waves of a run already in
// progress; a wave already being packed keeps the old cap.
func (g *Group) SetMaxPulsesPerWave(v int) error {
	return g.maxPulsesPerWave.Set(v, observable.AgentApp)
}

// SetMaxWaveMicros live-edits the per-wave duration cap.
func (g *Group) SetMaxWaveMicros(v int64) error {
	return g.maxWaveMicros.Set(v, observable.AgentApp)
}

// SetMaxPendingWaves live-edits the scheduler's pipeline depth.
func (g *Group) SetMaxPendingWaves(v int) error {
	return g.maxPendingWaves.Set(v, observable.AgentApp)
}

// RunFast starts a DMA run across every motor named in reqs. It collects
// each motor's pulse generator, merges the streams, and spawns the group
// scheduler goroutine that packs and pipelines waves until the merged
// stream exhausts. Grounded on steppergroup.py's runfast/_threadfaststep.
func (g *Group) RunFast(reqs []RunRequest) error {
	g.mu.Lock()
	if g.mode.Get() != ModeOff {
		g.mu.Unlock()
		return errs.Wrap(errs.Precondition, "group: run_fast called in mode %s", g.mode.Get())
	}
	g.mode.Set(ModeDMAStepping, observable.AgentApp)
	g.mu.Unlock()

	gens := make([]*motor.PulseGenerator, 0, len(reqs))
	for _, req := range reqs {
		m, ok := g.motors[req.MotorID]
		if !ok {
			g.abort()
			return errs.Wrap(errs.Precondition, "group: unknown motor %q", req.MotorID)
		}
		var (
			gen *motor.PulseGenerator
			err error
		)
		switch req.Command {
		case interval.CommandGoto, interval.CommandOneGoto:
			gen, err = m.DmaGoto(req.StepMode, req.TargetPos, req.Command == interval.CommandOneGoto)
		default:
			gen, err = m.DmaRun(req.StepMode, req.TargetPos, req.TargetDir)
		}
		if err != nil {
			g.abort()
			return err
		}
		gens = append(gens, gen)
	}

	merged := newMerger(gens)
	g.wg.Add(1)
	go g.pipeline(merged)
	return nil
}

func (g *Group) abort() {
	g.mode.Set(ModeOff, observable.AgentApp)
}

// CleanStop sends every motor a close command (which clears step_active,
// releases its pins and joins its step-loop), waits for the scheduler
// goroutine, and marks the group closed. Grounded on steppergroup.py's
// cleanstop.
func (g *Group) CleanStop() {
	for _, m := range g.motors {
		_, _ = m.DoThis(motor.DoThisRequest{Command: motor.CmdClose})
		m.WaitStop()
	}
	g.wg.Wait()
	g.mode.Set(ModeClosed, observable.AgentApp)
}

// motorEnd is the final (raw_pos, action) recorded for a motor inside one
// wave, per spec.md §4.4.2 step 3.
type motorEnd struct {
	rawPos int64
	action motor.Action
}

type builtWave struct {
	id        int
	endStates map[string]motorEnd
}

// pipeline is the group scheduler goroutine: build waves from merged,
// submit up to maxPendingWaves of them, then poll-drain. Grounded on
// steppergroup.py's _threadfaststep wave-build/poll loop.
func (g *Group) pipeline(merged *merger) {
	defer g.wg.Done()
	log := logger.Get()

	var fifo []builtWave
	exhausted := false
	aborted := false

	failAbort := func(err error) {
		aborted = true
		log.Error("dma wave pipeline aborted", zap.Error(err))
		for _, m := range g.motors {
			_ = m.EndDMARun()
		}
		g.mode.Set(ModeOff, observable.AgentApp)
	}

	fillOnce := func() bool {
		maxPending := g.maxPendingWaves.Get()
		if exhausted || len(fifo) >= maxPending {
			return false
		}
		w, more, err := g.buildWave(merged)
		if err != nil {
			failAbort(err)
			return false
		}
		if w != nil {
			id, err := g.submitWave(w)
			if err != nil {
				failAbort(err)
				return false
			}
			fifo = append(fifo, builtWave{id: id, endStates: w.endStates})
		}
		if !more {
			exhausted = true
		}
		return w != nil
	}

	for !exhausted || len(fifo) > 0 {
		for fillOnce() {
		}
		if aborted {
			return
		}
		if len(fifo) == 0 {
			break
		}

		curID, err := g.engine.WaveTxAt()
		if err != nil {
			failAbort(dma.ErrEngine("wave_tx_at", err))
			return
		}

		for len(fifo) > 0 && fifo[0].id != curID {
			head := fifo[0]
			fifo = fifo[1:]
			if err := g.engine.WaveDelete(head.id); err != nil {
				failAbort(dma.ErrEngine("wave_delete", err))
				return
			}
			if g.metrics != nil {
				g.metrics.IncrementWavesCompleted()
			}
			g.commitWave(head)
		}

		time.Sleep(pollInterval)
	}

	g.mode.Set(ModeOff, observable.AgentApp)
}

func (g *Group) commitWave(w builtWave) {
	for motorID, end := range w.endStates {
		m, ok := g.motors[motorID]
		if !ok {
			continue
		}
		m.CommitRawPos(end.rawPos)
		if end.action == motor.ActionTerminal {
			if err := m.EndDMARun(); err != nil {
				g.log.Error("end dma run", zap.String("motor", motorID), zap.Error(err))
			}
		}
	}
}

type preparedWave struct {
	pulses    []dma.Pulse
	endStates map[string]motorEnd
}

// buildWave packs one wave from merged, per spec.md §4.4.2. Returns
// (nil, false, nil) once merged has no more data; otherwise (wave, more,
// nil) where more is false only for the final wave that drained the
// stream in the same call.
func (g *Group) buildWave(merged *merger) (*preparedWave, bool, error) {
	maxPulses := g.maxPulsesPerWave.Get()
	maxMicros := g.maxWaveMicros.Get()

	entry, ok := merged.Next()
	if !ok {
		return nil, false, nil
	}

	w := &preparedWave{endStates: make(map[string]motorEnd)}
	recordEnds := func(e *mergedEntry) {
		for _, r := range e.records {
			w.endStates[r.MotorID] = motorEnd{rawPos: r.RawPos, action: r.Action}
		}
	}
	recordEnds(&entry)

	var accMicros int64
	lastWasTerminal := func(e *mergedEntry) bool {
		for _, r := range e.records {
			if r.Action == motor.ActionTerminal {
				return true
			}
		}
		return false
	}

	for {
		next, hasNext := merged.Next()
		var dt int64
		if hasNext {
			dt = next.usClock - entry.usClock
			if dt <= 0 {
				dt = 1 // spec.md §4.4.4: minimum 1us delay between equal-clock pulses
			}
		} else {
			dt = 1 // flush pulse on stream exhaustion, per spec.md §4.4.2 step 2(c)
		}
		w.pulses = append(w.pulses, dma.Pulse{OnMask: entry.onMask, OffMask: entry.offMask, DelayUs: uint32(dt)})
		accMicros += dt

		if !hasNext {
			return w, false, nil
		}

		if len(w.pulses) >= maxPulses || accMicros >= maxMicros || lastWasTerminal(&entry) {
			merged.pushback(next)
			return w, true, nil
		}
		entry = next
		recordEnds(&entry)
	}
}

func (g *Group) submitWave(w *preparedWave) (int, error) {
	if err := g.engine.WaveClear(); err != nil {
		return 0, dma.ErrEngine("wave_clear", err)
	}
	if err := g.engine.WaveAddGeneric(w.pulses); err != nil {
		return 0, dma.ErrEngine("wave_add_generic", err)
	}
	id, err := g.engine.WaveCreateAndPad(waveModePercent(g.maxPendingWaves.Get()))
	if err != nil {
		return 0, dma.ErrEngine("wave_create_and_pad", err)
	}
	if err := g.engine.WaveSendUsingMode(id, dma.WaveModeOneShotSync); err != nil {
		return 0, dma.ErrEngine("wave_send_using_mode", err)
	}
	if g.metrics != nil {
		g.metrics.IncrementWavesDispatched()
		g.metrics.AddPulsesEmitted(int64(len(w.pulses)))
	}
	logger.WithWave(strconv.Itoa(id)).Debug("wave submitted", zap.Int("pulses", len(w.pulses)))
	return id, nil
}

// waveModePercent mirrors steppergroup.py's wavepercent = 100 // maxwaves:
// wave_create_and_pad's padding budget is divided evenly across the
// in-flight FIFO so no single wave starves the others of control blocks.
func waveModePercent(maxPendingWaves int) int {
	if maxPendingWaves <= 0 {
		return 100
	}
	return 100 / maxPendingWaves
}
