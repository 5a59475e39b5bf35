package motor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/logger"
	"github.com/pootle/pisteppers/internal/metrics"
	"github.com/pootle/pisteppers/internal/observable"
)

// OpMode is a motor's operating mode cell, per spec §3.
type OpMode int

const (
	OpClosed OpMode = iota
	OpStopped
	OpRunningSoft
	OpRunningDMA
)

func (m OpMode) String() string {
	switch m {
	case OpClosed:
		return "closed"
	case OpStopped:
		return "stopped"
	case OpRunningSoft:
		return "running-soft"
	case OpRunningDMA:
		return "running-dma"
	default:
		return "unknown"
	}
}

// Command selects a do_this operation, per spec §4.3's operations table.
type Command int

const (
	CmdNone Command = iota
	CmdClose
	CmdStop
	CmdGoto
	CmdOneGoto
	CmdRun
	CmdSetPos
)

// Result distinguishes the two shapes do_this can return: nothing, or a
// signal that the caller must now drive the DMA path via DmaRun.
type Result int

const (
	ResultNone Result = iota
	ResultWave
)

// DoThisRequest is one do_this call.
type DoThisRequest struct {
	Command   Command
	TargetPos int64
	TargetDir interval.Dir
	StepMode  string
}

// Motor is the per-motor state machine: observable cells, the software
// step-loop, and step-mode/driver ownership. Grounded on
// _examples/original_source/stepperbase.py's basestepper.
type Motor struct {
	name      string
	driver    Driver
	stepModes map[string]*StepMode
	log       *zap.Logger
	metrics   *metrics.Metrics

	opMode         *observable.Cell[OpMode]
	rawPos         *observable.Cell[int64]
	targetRawPos   *observable.Cell[int64]
	targetDir      *observable.Cell[interval.Dir]
	holdStopped    *observable.Cell[float64]
	activeStepMode *observable.Cell[string]
	overrunCount   *observable.Cell[int64]
	overrunSeconds *observable.Cell[float64]

	mu           sync.Mutex
	stepActive   bool
	updateParams bool
	wg           sync.WaitGroup
}

// NewMotor constructs a motor in the stopped state, pins already prepared
// by driver's constructor. mtx may be nil if the caller does not want
// process-wide counters.
func NewMotor(name string, driver Driver, stepModes map[string]*StepMode, holdStopped float64, mtx *metrics.Metrics) *Motor {
	m := &Motor{
		name:           name,
		driver:         driver,
		stepModes:      stepModes,
		log:            logger.WithMotor(name),
		metrics:        mtx,
		opMode:         observable.NewCell(OpStopped, nil),
		rawPos:         observable.NewCell[int64](0, nil),
		targetRawPos:   observable.NewCell[int64](0, nil),
		targetDir:      observable.NewCell(interval.Forward, nil),
		holdStopped:    observable.NewCell(holdStopped, nil),
		activeStepMode: observable.NewCell("-", nil),
		overrunCount:   observable.NewCell[int64](0, nil),
		overrunSeconds: observable.NewCell[float64](0, nil),
	}
	for _, sm := range stepModes {
		sm := sm
		// Any step-mode parameter edit, whether or not this mode is
		// currently active, is cheap to flag; only an active generator
		// will ever observe it via UpdateParams.
		if sm.StepRate != nil {
			sm.StepRate.Subscribe(func(float64, observable.Agent) { m.signalUpdateParams() })
		}
		if sm.SlowTPS != nil {
			sm.SlowTPS.Subscribe(func(float64, observable.Agent) { m.signalUpdateParams() })
			sm.FastTPS.Subscribe(func(float64, observable.Agent) { m.signalUpdateParams() })
			sm.Slope.Subscribe(func(float64, observable.Agent) { m.signalUpdateParams() })
		}
	}
	return m
}

func (m *Motor) Name() string { return m.name }

func (m *Motor) OpMode() OpMode          { return m.opMode.Get() }
func (m *Motor) RawPos() int64           { return m.rawPos.Get() }
func (m *Motor) ActiveStepMode() string  { return m.activeStepMode.Get() }
func (m *Motor) OverrunCount() int64     { return m.overrunCount.Get() }
func (m *Motor) OverrunSeconds() float64 { return m.overrunSeconds.Get() }
func (m *Motor) HoldStopped() float64    { return m.holdStopped.Get() }

func (m *Motor) signalUpdateParams() {
	m.mu.Lock()
	m.updateParams = true
	m.mu.Unlock()
}

// MotorView implementation, consumed by internal/interval generators.

func (m *Motor) StepActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stepActive
}

func (m *Motor) TargetRawPos() int64     { return m.targetRawPos.Get() }
func (m *Motor) TargetDir() interval.Dir { return m.targetDir.Get() }
func (m *Motor) MaxStepFactor() int      { return m.driver.MaxStepFactor() }

func (m *Motor) UpdateParams() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateParams
}

func (m *Motor) ClearUpdateParams() {
	m.mu.Lock()
	m.updateParams = false
	m.mu.Unlock()
}

// DoThis applies command, per spec §4.3's operations table.
func (m *Motor) DoThis(req DoThisRequest) (Result, error) {
	if req.Command == CmdNone {
		return ResultNone, nil
	}

	m.mu.Lock()
	cur := m.opMode.Get()
	if cur == OpClosed {
		m.mu.Unlock()
		return ResultNone, errs.Wrap(errs.Precondition, "motor %q is closed", m.name)
	}

	switch req.Command {
	case CmdClose:
		m.mu.Unlock()
		return ResultNone, m.doClose()

	case CmdStop:
		if cur == OpRunningSoft || cur == OpRunningDMA {
			m.stepActive = false
		}
		m.mu.Unlock()
		return ResultNone, nil

	case CmdSetPos:
		defer m.mu.Unlock()
		if cur != OpStopped {
			return ResultNone, errs.Wrap(errs.Precondition, "motor %q: cannot set-pos in mode %s", m.name, cur)
		}
		return ResultNone, m.rawPos.Set(req.TargetPos, observable.AgentApp)

	case CmdGoto, CmdOneGoto, CmdRun:
		if cur == OpRunningSoft || cur == OpRunningDMA {
			if req.Command == CmdRun {
				m.targetDir.Set(req.TargetDir, observable.AgentApp)
			} else {
				m.targetRawPos.Set(req.TargetPos, observable.AgentApp)
			}
			m.updateParams = true
			m.mu.Unlock()
			return ResultNone, nil
		}
		if cur != OpStopped {
			m.mu.Unlock()
			return ResultNone, errs.Wrap(errs.Precondition, "motor %q: cannot start in mode %s", m.name, cur)
		}
		sm, ok := m.stepModes[req.StepMode]
		if !ok {
			m.mu.Unlock()
			return ResultNone, errs.Wrap(errs.Precondition, "motor %q: unknown step-mode %q", m.name, req.StepMode)
		}
		if sm.DriverMode == "dma" {
			m.mu.Unlock()
			return ResultWave, nil
		}
		m.targetRawPos.Set(req.TargetPos, observable.AgentApp)
		m.targetDir.Set(req.TargetDir, observable.AgentApp)
		m.stepActive = true
		m.updateParams = true
		m.opMode.Set(OpRunningSoft, observable.AgentApp)
		if m.metrics != nil {
			m.metrics.IncrementActiveMotors()
		}
		m.wg.Add(1)
		go m.softLoop(sm, commandFor(req.Command), req.TargetPos)
		m.mu.Unlock()
		return ResultNone, nil

	default:
		m.mu.Unlock()
		return ResultNone, errs.Wrap(errs.Precondition, "motor %q: unknown command", m.name)
	}
}

func commandFor(c Command) interval.Command {
	switch c {
	case CmdOneGoto:
		return interval.CommandOneGoto
	case CmdGoto:
		return interval.CommandGoto
	default:
		return interval.CommandRun
	}
}

func (m *Motor) newGenerator(sm *StepMode, command interval.Command, initialPos int64) (interval.Generator, error) {
	factor, err := m.driver.MicrostepFactor(sm.MicrostepLevel)
	if err != nil {
		return nil, err
	}
	switch sm.GeneratorKind {
	case "onespeed":
		return interval.NewOneSpeedGenerator(m, command, initialPos, interval.OneSpeedParams{
			StepRate: sm.StepRate.Get,
			FActive:  factor,
		}), nil
	case "ramped":
		return interval.NewRampedGenerator(m, command, initialPos, interval.RampedParams{
			SlowTPS: sm.SlowTPS.Get,
			FastTPS: sm.FastTPS.Get,
			Slope:   sm.Slope.Get,
			FActive: factor,
		}), nil
	default:
		return nil, errs.Wrap(errs.Configuration, "step-mode %q: unknown generator class %q", sm.Name, sm.GeneratorKind)
	}
}

// softLoop drives a software-timed run to completion. Grounded on
// _examples/original_source/stepperbase.py's _softrun.
func (m *Motor) softLoop(sm *StepMode, command interval.Command, targetPos int64) {
	defer m.wg.Done()
	agent := observable.AgentApp
	runID := uuid.NewString()
	log := logger.WithRun(m.name, runID)

	m.activeStepMode.Set(sm.Name, agent)
	if err := m.driver.Prepare(sm.MicrostepLevel, agent); err != nil {
		log.Error("prepare driver", zap.Error(err))
		m.finishSoft(agent)
		return
	}

	factor, err := m.driver.MicrostepFactor(sm.MicrostepLevel)
	if err != nil {
		log.Error("microstep factor", zap.Error(err))
		m.finishSoft(agent)
		return
	}
	stepSize := int64(m.driver.MaxStepFactor() / factor)

	gen, err := m.newGenerator(sm, command, m.rawPos.Get())
	if err != nil {
		log.Error("build generator", zap.Error(err))
		m.finishSoft(agent)
		return
	}

	log.Info("softrun starting")
	pos := m.rawPos.Get()
	dir := interval.Forward
	held := false
	var idleSince time.Time
	var overrunCtr int64
	var overrunSecs float64
	m.overrunCount.Set(0, agent)
	m.overrunSeconds.Set(0, agent)
	nextTick := time.Now()

	for {
		item, ok := gen.Next()
		if !ok {
			break
		}
		switch item.Kind {
		case interval.TickDirSet:
			dir = item.Dir
			if err := m.driver.SetDirection(dir, agent); err != nil {
				log.Error("set direction", zap.Error(err))
			}
			nextTick = nextTick.Add(time.Duration(item.Seconds * float64(time.Second)))
			idleSince = time.Time{}
		case interval.TickStep:
			if held {
				if err := m.driver.SetEnabled(true, agent); err != nil {
					log.Error("re-enable drive", zap.Error(err))
				}
				held = false
			}
			if err := m.driver.StepTrigger(); err != nil {
				log.Error("step trigger", zap.Error(err))
			}
			if dir == interval.Reverse {
				pos -= stepSize
			} else {
				pos += stepSize
			}
			m.rawPos.Set(pos, agent)
			nextTick = nextTick.Add(time.Duration(item.Seconds * float64(time.Second)))
			idleSince = time.Time{}
		case interval.TickIdle:
			if idleSince.IsZero() {
				idleSince = time.Now()
			} else if hs := m.holdStopped.Get(); hs > 0 && !held && time.Since(idleSince) >= time.Duration(hs*float64(time.Second)) {
				if err := m.driver.SetEnabled(false, agent); err != nil {
					log.Error("disable drive", zap.Error(err))
				}
				held = true
			}
			nextTick = nextTick.Add(50 * time.Millisecond)
		}

		delay := time.Until(nextTick)
		if delay > 0 {
			time.Sleep(delay)
		} else {
			overrunCtr++
			overrunSecs += -delay.Seconds()
			m.overrunCount.Set(overrunCtr, agent)
			m.overrunSeconds.Set(overrunSecs, agent)
			if m.metrics != nil {
				m.metrics.IncrementOverrun()
			}
		}
	}

	m.rawPos.Set(pos, agent)
	if err := m.driver.EndStepping(agent); err != nil {
		log.Error("end stepping", zap.Error(err))
	}
	log.Info("softrun complete", zap.Int64("raw_pos", pos), zap.Int64("overruns", overrunCtr), zap.Float64("overrun_seconds", overrunSecs))
	m.finishSoft(agent)
}

func (m *Motor) finishSoft(agent observable.Agent) {
	m.mu.Lock()
	if m.opMode.Get() != OpClosed {
		m.opMode.Set(OpStopped, agent)
	}
	m.stepActive = false
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.DecrementActiveMotors()
	}
}

// DmaRun prepares a DMA-mode run and returns its pulse generator for the
// group scheduler to merge with other motors' streams. Grounded on
// _examples/original_source/stepperbase.py's dmarun.
func (m *Motor) DmaRun(stepModeName string, targetPos int64, targetDir interval.Dir) (*PulseGenerator, error) {
	m.mu.Lock()
	if m.opMode.Get() != OpStopped {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: cannot start DMA run in mode %s", m.name, m.opMode.Get())
	}
	sm, ok := m.stepModes[stepModeName]
	if !ok {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: unknown step-mode %q", m.name, stepModeName)
	}
	if sm.DriverMode != "dma" {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: step-mode %q is not a DMA mode", m.name, stepModeName)
	}
	m.targetRawPos.Set(targetPos, observable.AgentApp)
	m.targetDir.Set(targetDir, observable.AgentApp)
	m.stepActive = true
	m.updateParams = true
	m.activeStepMode.Set(sm.Name, observable.AgentApp)
	m.opMode.Set(OpRunningDMA, observable.AgentApp)
	initial := m.rawPos.Get()
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.IncrementActiveMotors()
	}

	gen, err := m.newGenerator(sm, interval.CommandRun, initial)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger.WithRun(m.name, runID).Info("dma run starting", zap.String("stepmode", stepModeName))
	return NewPulseGenerator(m.name, m.driver, sm.MicrostepLevel, m.holdStopped.Get(), initial, gen), nil
}

// DmaGoto is DmaRun's goto/one-goto counterpart: the generator tracks
// targetPos instead of the live target_dir cell.
func (m *Motor) DmaGoto(stepModeName string, targetPos int64, oneShot bool) (*PulseGenerator, error) {
	m.mu.Lock()
	if m.opMode.Get() != OpStopped {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: cannot start DMA run in mode %s", m.name, m.opMode.Get())
	}
	sm, ok := m.stepModes[stepModeName]
	if !ok {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: unknown step-mode %q", m.name, stepModeName)
	}
	if sm.DriverMode != "dma" {
		m.mu.Unlock()
		return nil, errs.Wrap(errs.Precondition, "motor %q: step-mode %q is not a DMA mode", m.name, stepModeName)
	}
	m.targetRawPos.Set(targetPos, observable.AgentApp)
	m.stepActive = true
	m.updateParams = true
	m.activeStepMode.Set(sm.Name, observable.AgentApp)
	m.opMode.Set(OpRunningDMA, observable.AgentApp)
	initial := m.rawPos.Get()
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.IncrementActiveMotors()
	}

	command := interval.CommandGoto
	if oneShot {
		command = interval.CommandOneGoto
	}
	gen, err := m.newGenerator(sm, command, initial)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	logger.WithRun(m.name, runID).Info("dma goto starting", zap.String("stepmode", stepModeName), zap.Int64("target", targetPos))
	return NewPulseGenerator(m.name, m.driver, sm.MicrostepLevel, m.holdStopped.Get(), initial, gen), nil
}

// CommitRawPos is called by the group scheduler with the position recorded
// in a completed wave's end-state for this motor.
func (m *Motor) CommitRawPos(pos int64) {
	m.rawPos.Set(pos, observable.AgentApp)
}

// EndDMARun is called by the group scheduler when a wave's end-state
// carries a terminal action for this motor.
func (m *Motor) EndDMARun() error {
	agent := observable.AgentApp
	if err := m.driver.EndStepping(agent); err != nil {
		return err
	}
	m.finishSoft(agent) // same "revert to stopped unless closed" bookkeeping
	return nil
}

func (m *Motor) doClose() error {
	m.mu.Lock()
	if m.opMode.Get() == OpClosed {
		m.mu.Unlock()
		return nil
	}
	m.stepActive = false
	m.opMode.Set(OpClosed, observable.AgentApp)
	m.mu.Unlock()

	err := m.driver.Shutdown()
	m.wg.Wait()
	return err
}

// WaitStop blocks until any in-flight software step-loop has exited.
func (m *Motor) WaitStop() { m.wg.Wait() }
