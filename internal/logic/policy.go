package logic

// PolicyVersion is the current layout version of Policy.
const PolicyVersion = 1

// Policy holds every tunable threshold of the engine. It is a plain value:
// the engine keeps its own copy and only replaces it between ticks.
type Policy struct {
	Version int `yaml:"version"`

	// Cadences
	ControlTickMs    uint32 `yaml:"control_tick_ms"`
	LightSampleMs    uint32 `yaml:"light_sample_ms"`
	DistanceSampleMs uint32 `yaml:"distance_sample_ms"`
	LogMs            uint32 `yaml:"log_ms"` // 0 disables the summary line
	BootSetupMs      uint32 `yaml:"boot_setup_ms"`

	// Input
	LongPressMs uint32 `yaml:"long_press_ms"`
	OffsetStep  int32  `yaml:"offset_step"`
	OffsetMin   int32  `yaml:"offset_min"`
	OffsetMax   int32  `yaml:"offset_max"`

	// Sensors
	DistanceErrorCm uint32 `yaml:"distance_error_cm"`
	EchoTimeoutUs   uint32 `yaml:"echo_timeout_us"`
	LightWindow     int    `yaml:"light_window"`

	// Output
	HysteresisBandPercent uint8 `yaml:"hysteresis_band_percent"`
	RampStepPercent       uint8 `yaml:"ramp_step_percent"`
	RampStepOnPercent     uint8 `yaml:"ramp_step_on_percent"`
	RampStepOffPercent    uint8 `yaml:"ramp_step_off_percent"`

	// Presence
	AwayModeEnabled bool   `yaml:"away_mode_enabled"`
	FlatModeEnabled bool   `yaml:"flat_mode_enabled"`
	RefFallbackCm   uint32 `yaml:"ref_fallback_cm"`
	BodyMarginCm    uint32 `yaml:"body_margin_cm"`
	ReturnBandCm    uint32 `yaml:"return_band_cm"`
	ReturnConfirmMs uint32 `yaml:"return_confirm_ms"`
	AwayTimeoutMs   uint32 `yaml:"away_timeout_ms"`
	FlatBandCm      uint32 `yaml:"flat_band_cm"`
	MotionDeltaCm   uint32 `yaml:"motion_delta_cm"`
	StaleTimeoutMs  uint32 `yaml:"stale_timeout_ms"`
	// ResumeMotionMs is accepted and persisted but not used: recovery from
	// Flat triggers on a single motion sample.
	ResumeMotionMs uint32 `yaml:"resume_motion_ms"`
}

// Bounds for the user-adjustable presence settings.
const (
	AwayTimeoutMinMs  = 3000
	AwayTimeoutMaxMs  = 120000
	StaleTimeoutMinMs = 10000
	StaleTimeoutMaxMs = 300000
	TimeoutStepMs     = 1000
	ReturnBandMinCm   = 1
	ReturnBandMaxCm   = 30
)

// DefaultPolicy returns the built-in thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Version: PolicyVersion,

		ControlTickMs:    50,
		LightSampleMs:    50,
		DistanceSampleMs: 100,
		LogMs:            1000,
		BootSetupMs:      1000,

		LongPressMs: 1000,
		OffsetStep:  5,
		OffsetMin:   -50,
		OffsetMax:   50,

		DistanceErrorCm: 999,
		EchoTimeoutUs:   30000,
		LightWindow:     8,

		HysteresisBandPercent: 3,
		RampStepPercent:       1,
		RampStepOnPercent:     4,
		RampStepOffPercent:    2,

		AwayModeEnabled: true,
		FlatModeEnabled: true,
		RefFallbackCm:   80,
		BodyMarginCm:    20,
		ReturnBandCm:    10,
		ReturnConfirmMs: 1500,
		AwayTimeoutMs:   30000,
		FlatBandCm:      1,
		MotionDeltaCm:   5,
		StaleTimeoutMs:  120000,
		ResumeMotionMs:  1000,
	}
}

// Clamp returns a copy of p with every field forced into its valid range.
// Out-of-range values are never rejected.
func (p Policy) Clamp() Policy {
	p.Version = PolicyVersion

	p.ControlTickMs = clampU32(p.ControlTickMs, 10, 1000)
	p.LightSampleMs = clampU32(p.LightSampleMs, 10, 5000)
	p.DistanceSampleMs = clampU32(p.DistanceSampleMs, 20, 5000)
	if p.LogMs != 0 {
		p.LogMs = clampU32(p.LogMs, 100, 3600000)
	}
	p.BootSetupMs = clampU32(p.BootSetupMs, 0, 60000)

	p.LongPressMs = clampU32(p.LongPressMs, 200, 10000)
	p.OffsetStep = clampI32(p.OffsetStep, 1, 50)
	p.OffsetMin = clampI32(p.OffsetMin, -100, 0)
	p.OffsetMax = clampI32(p.OffsetMax, 0, 100)

	if p.DistanceErrorCm == 0 {
		p.DistanceErrorCm = DefaultPolicy().DistanceErrorCm
	}
	p.EchoTimeoutUs = clampU32(p.EchoTimeoutUs, 1000, 100000)
	if p.LightWindow < 1 || p.LightWindow > 16 {
		p.LightWindow = 1
	}

	p.HysteresisBandPercent = clampU8(p.HysteresisBandPercent, 0, 100)
	p.RampStepPercent = clampU8(p.RampStepPercent, 0, 100)
	p.RampStepOnPercent = clampU8(p.RampStepOnPercent, 0, 100)
	p.RampStepOffPercent = clampU8(p.RampStepOffPercent, 0, 100)

	p.RefFallbackCm = clampU32(p.RefFallbackCm, 2, 400)
	p.BodyMarginCm = clampU32(p.BodyMarginCm, 0, 400)
	p.ReturnBandCm = clampU32(p.ReturnBandCm, ReturnBandMinCm, ReturnBandMaxCm)
	p.ReturnConfirmMs = clampU32(p.ReturnConfirmMs, 0, 60000)
	p.AwayTimeoutMs = clampStepU32(p.AwayTimeoutMs, AwayTimeoutMinMs, AwayTimeoutMaxMs, TimeoutStepMs)
	p.FlatBandCm = clampU32(p.FlatBandCm, 0, 50)
	p.MotionDeltaCm = clampU32(p.MotionDeltaCm, 1, 400)
	p.StaleTimeoutMs = clampStepU32(p.StaleTimeoutMs, StaleTimeoutMinMs, StaleTimeoutMaxMs, TimeoutStepMs)
	p.ResumeMotionMs = clampU32(p.ResumeMotionMs, 0, 60000)

	return p
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampU8(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampStepU32 clamps v to [lo, hi] and rounds it to the nearest step above lo.
func clampStepU32(v, lo, hi, step uint32) uint32 {
	v = clampU32(v, lo, hi)
	if step == 0 {
		return v
	}
	rounded := ((v - lo + step/2) / step) * step
	if rounded > hi-lo {
		rounded = hi - lo
	}
	return lo + rounded
}
