// Package battery implements the coulomb-counting state-of-charge estimator:
// an 11-point voltage lookup table anchors the counter at boot or whenever
// the persisted state looks stale, and a running mAh counter tracks charge
// between anchors.
package battery

import (
	"errors"
	"math"
)

// MaxVoltage is the fully-charged pack voltage (2S Li-ion).
const MaxVoltage = 8.40

// MaxMAh is the pack capacity used to convert mAh-used into a percentage.
const MaxMAh = 3200.0

// VoltDiffThreshold: a boot-time voltage more than this far from the
// persisted highest-recorded-voltage means the pack was swapped or charged
// externally, and the counter must be re-anchored rather than resumed.
const VoltDiffThreshold = 0.20

// SaveIntervalMS is how often Update persists state while running.
const SaveIntervalMS = 120_000

// Magic identifies a valid persisted BatteryState.
const Magic uint16 = 0xBEEF

var voltTable = [11]float32{6.40, 6.70, 6.90, 7.10, 7.30, 7.50, 7.70, 7.90, 8.10, 8.30, 8.40}
var socTable = [11]float32{0, 10, 20, 30, 40, 50, 60, 70, 80, 95, 100}

// ErrPersistFailed is logged, never fatal: a persistence failure just means
// the next boot re-anchors from voltage instead of resuming.
var ErrPersistFailed = errors.New("battery: persist failed")

// State is the on-disk / on-flash representation of estimator state.
type State struct {
	Magic                  uint16
	HighestRecordedVoltage float32
	MAhUsed                float32
}

// Valid reports whether a loaded State looks plausible: correct magic and
// fields within physically sane ranges.
func (s State) Valid() bool {
	if s.Magic != Magic {
		return false
	}
	if s.HighestRecordedVoltage < 0 || s.HighestRecordedVoltage > 20 {
		return false
	}
	if s.MAhUsed < 0 || s.MAhUsed > MaxMAh {
		return false
	}
	return true
}

// Store persists and loads battery state across power cycles. The TinyGo
// build backs it with flash, the host build with an in-memory or file fake.
type Store interface {
	Load() (State, bool)
	Save(State) error
}

// Estimator tracks state-of-charge from bus voltage and current readings.
type Estimator struct {
	store Store
	log   func(string)

	highestVoltage float32
	mAhUsed        float32

	lastUpdateMS     int64
	haveLastUpdate   bool
	lastSaveMS       int64
	BatteryPercent   int
}

// NewEstimator constructs an Estimator backed by store. log receives
// human-readable diagnostics (persistence failures, re-anchor events); it
// may be nil.
func NewEstimator(store Store, log func(string)) *Estimator {
	if log == nil {
		log = func(string) {}
	}
	return &Estimator{store: store, log: log}
}

// Begin loads persisted state (if valid and voltage-consistent) or
// re-anchors from the current voltage, per spec §4.3. nowMS is the current
// monotonic millisecond tick.
func (e *Estimator) Begin(voltage float32, nowMS int64) {
	st, ok := e.store.Load()
	if ok && st.Valid() {
		diff := voltage - st.HighestRecordedVoltage
		if diff < 0 {
			diff = -diff
		}
		if diff < VoltDiffThreshold {
			e.highestVoltage = st.HighestRecordedVoltage
			e.mAhUsed = st.MAhUsed
			e.BatteryPercent = computeSOC(e.mAhUsed)
			e.lastUpdateMS = nowMS
			e.haveLastUpdate = true
			e.lastSaveMS = nowMS
			return
		}
		e.log("battery: voltage diverged from persisted anchor, re-anchoring")
	} else {
		e.log("battery: no valid persisted state, re-anchoring from voltage")
	}

	e.resetFromVoltage(voltage)
	if err := e.store.Save(e.snapshot()); err != nil {
		e.log("battery: " + err.Error())
	}
	e.lastUpdateMS = nowMS
	e.haveLastUpdate = true
	e.lastSaveMS = nowMS
}

// Update folds one (voltage, current) sample into the running estimate.
// currentMA is signed: positive discharge, negative charge. nowMS is the
// current monotonic millisecond tick.
func (e *Estimator) Update(voltage float32, currentMA float32, nowMS int64) {
	var deltaHours float32
	if e.haveLastUpdate && nowMS > e.lastUpdateMS {
		deltaHours = float32(nowMS-e.lastUpdateMS) / 3_600_000.0
	}
	e.lastUpdateMS = nowMS
	e.haveLastUpdate = true

	e.mAhUsed += currentMA * deltaHours
	if e.mAhUsed < 0 {
		e.mAhUsed = 0
	}
	if e.mAhUsed > MaxMAh {
		e.mAhUsed = MaxMAh
	}

	e.BatteryPercent = computeSOC(e.mAhUsed)

	if voltage > e.highestVoltage {
		e.highestVoltage = voltage
	}

	if nowMS-e.lastSaveMS >= SaveIntervalMS {
		if err := e.store.Save(e.snapshot()); err != nil {
			e.log("battery: " + err.Error())
		}
		e.lastSaveMS = nowMS
	}
}

// Percent returns the last computed state-of-charge, 0..100.
func (e *Estimator) Percent() int {
	return e.BatteryPercent
}

// MAhUsed exposes the raw counter, mainly for tests and telemetry debugging.
func (e *Estimator) MAhUsed() float32 {
	return e.mAhUsed
}

func (e *Estimator) snapshot() State {
	return State{Magic: Magic, HighestRecordedVoltage: e.highestVoltage, MAhUsed: e.mAhUsed}
}

func (e *Estimator) resetFromVoltage(voltage float32) {
	soc := estimateSOCFromVoltage(voltage)
	remaining := (soc / 100.0) * MaxMAh
	e.mAhUsed = MaxMAh - remaining
	e.BatteryPercent = int(math.Round(float64(soc)))
	e.highestVoltage = voltage
}

// estimateSOCFromVoltage maps a pack voltage to a percentage via
// piecewise-linear interpolation over the 11-point table.
func estimateSOCFromVoltage(v float32) float32 {
	if v <= voltTable[0] {
		return 0
	}
	if v >= voltTable[len(voltTable)-1] {
		return 100
	}
	for i := 0; i < len(voltTable)-1; i++ {
		if v >= voltTable[i] && v <= voltTable[i+1] {
			t := (v - voltTable[i]) / (voltTable[i+1] - voltTable[i])
			return socTable[i] + t*(socTable[i+1]-socTable[i])
		}
	}
	return 0
}

func computeSOC(used float32) int {
	remaining := MaxMAh - used
	soc := (remaining / MaxMAh) * 100.0
	if soc < 0 {
		soc = 0
	}
	if soc > 100 {
		soc = 100
	}
	return int(math.Round(float64(soc)))
}
