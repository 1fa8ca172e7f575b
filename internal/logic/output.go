package logic

// LightFullScale is the raw light reading that maps to 100% ambient brightness.
const LightFullScale = 4095

// OutputInput is everything the output controller reads on one control tick.
type OutputInput struct {
	LightRaw uint16 // filtered light level, 0..LightFullScale
	Offset   int32
	Enabled  bool
	Present  bool
	Fault    bool
}

// Output turns filtered light, offset and presence into a duty cycle through
// target, hysteresis and ramp stages.
type Output struct {
	autoPercent       uint8
	targetPercent     uint8
	hysteresisPercent uint8
	rampedPercent     uint8
	lastApplied       uint8

	hysteresisInit bool
	rampInit       bool
	fastOn         bool
}

// OutputSnapshot exposes intermediate values for diagnostics.
type OutputSnapshot struct {
	AutoPercent       uint8
	TargetPercent     uint8
	HysteresisPercent uint8
	RampedPercent     uint8
	FastOn            bool
}

// AutoPercent maps a raw light reading to an automatic brightness.
// Brighter ambient light gives a lower percentage.
func AutoPercent(raw uint16) uint8 {
	scaled := uint32(raw) * 100 / LightFullScale
	if scaled > 100 {
		scaled = 100
	}
	return uint8(100 - scaled)
}

// Tick runs one control period and returns the ramped output.
func (o *Output) Tick(in OutputInput, p Policy) uint8 {
	o.autoPercent = AutoPercent(in.LightRaw)
	o.targetPercent = clampPercent(int32(o.autoPercent) + in.Offset)
	if !in.Enabled || !in.Present || in.Fault {
		o.targetPercent = 0
	}

	o.hysteresisPercent = o.applyHysteresis(o.targetPercent, p.HysteresisBandPercent)

	if in.Fault {
		o.rampedPercent = 0
		o.rampInit = true
		o.fastOn = false
		return 0
	}
	o.rampedPercent = o.applyRamp(o.hysteresisPercent, p)
	return o.rampedPercent
}

// BeginFastOn marks a 0 to 1 enable transition. The hysteresis anchor is
// re-seeded on the next tick. The flag is reported in snapshots until the
// fade-in reaches its target; it does not change the ramp step.
func (o *Output) BeginFastOn() {
	o.hysteresisInit = false
	o.fastOn = true
}

// EndFastOn clears the fade-in flag.
func (o *Output) EndFastOn() {
	o.fastOn = false
}

// Percent returns the current authoritative output.
func (o *Output) Percent() uint8 {
	return o.rampedPercent
}

// Snapshot returns the intermediate values of the last tick.
func (o *Output) Snapshot() OutputSnapshot {
	return OutputSnapshot{
		AutoPercent:       o.autoPercent,
		TargetPercent:     o.targetPercent,
		HysteresisPercent: o.hysteresisPercent,
		RampedPercent:     o.rampedPercent,
		FastOn:            o.fastOn,
	}
}

func (o *Output) applyHysteresis(target, band uint8) uint8 {
	if !o.hysteresisInit {
		o.lastApplied = target
		o.hysteresisInit = true
		return target
	}
	if target == 0 || absDiffU8(target, o.lastApplied) >= band {
		o.lastApplied = target
	}
	return o.lastApplied
}

func (o *Output) applyRamp(desired uint8, p Policy) uint8 {
	if !o.rampInit {
		o.rampInit = true
		return desired
	}

	current := o.rampedPercent
	step := p.RampStepPercent
	switch {
	case current == 0 && desired > 0:
		step = p.RampStepOnPercent
	case desired == 0 && current > 0:
		step = p.RampStepOffPercent
	}
	if step == 0 {
		step = 1
	}

	switch {
	case desired > current:
		if desired-current > step {
			current += step
		} else {
			current = desired
		}
	case desired < current:
		if current-desired > step {
			current -= step
		} else {
			current = desired
		}
	}

	if current == desired || desired == 0 {
		o.fastOn = false
	}
	return current
}

// StatusInput is the set of flags status classification reads.
type StatusInput struct {
	Fault   bool
	Booting bool
	Enabled bool
	Present bool
	Offset  int32
}

// Classify derives the coarse fixture state. It keeps no memory.
func Classify(in StatusInput) StatusClass {
	switch {
	case in.Fault:
		return StatusFault
	case in.Booting:
		return StatusBoot
	case !in.Enabled:
		return StatusLightOff
	case !in.Present:
		return StatusNoUser
	case in.Offset != 0:
		return StatusOffset
	default:
		return StatusAuto
	}
}

func clampPercent(v int32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return uint8(v)
}

func absDiffU8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
