package logic

// Presence decides whether a user is in front of the fixture from filtered
// distance samples. It is evaluated once per distance sample, not per control tick.
//
// States are Present, NoUser(Away) and NoUser(Flat). Streaks are integer
// milliseconds and grow by the configured distance sample period per sample.
type Presence struct {
	present bool
	reason  Reason

	refCm         uint32
	refValid      bool
	refPending    bool
	usingFallback bool

	prevCm    uint32
	prevValid bool

	awayMs   uint32
	flatMs   uint32
	motionMs uint32
	nearMs   uint32
}

// PresenceUpdate reports what changed during one Observe call.
type PresenceUpdate struct {
	ReferenceCaptured bool
	Lost              bool
	Restored          bool
}

// NewPresence returns a presence engine in the Present state using the fallback reference.
func NewPresence() *Presence {
	return &Presence{present: true, usingFallback: true}
}

// Enable re-arms the engine when the light is switched on: the next valid
// sample becomes the reference and the user is assumed present.
func (p *Presence) Enable(policy Policy) {
	p.clearStreaks()
	p.reason = ReasonNone
	p.present = true
	p.refCm = policy.RefFallbackCm
	p.refValid = true
	p.refPending = true
	p.usingFallback = true
	p.prevValid = false
}

// Disable suspends evaluation. The machine rests in Present with no reason
// until the next Enable.
func (p *Presence) Disable() {
	p.clearStreaks()
	p.reason = ReasonNone
	p.present = true
}

// Observe feeds one filtered distance sample.
func (p *Presence) Observe(cm uint32, lightEnabled bool, policy Policy) PresenceUpdate {
	var upd PresenceUpdate

	if p.refPending {
		p.refCm = cm
		p.refValid = true
		p.refPending = false
		p.usingFallback = false
		upd.ReferenceCaptured = true
	}

	defer func() {
		p.prevCm = cm
		p.prevValid = true
	}()

	if !lightEnabled {
		p.clearStreaks()
		p.reason = ReasonNone
		return upd
	}

	ref := policy.RefFallbackCm
	if p.refValid {
		ref = p.refCm
	}

	var delta uint32
	if p.prevValid {
		delta = absDiff(cm, p.prevCm)
	}
	away := cm > ref+policy.BodyMarginCm
	flat := p.prevValid && delta <= policy.FlatBandCm
	motion := p.prevValid && delta >= policy.MotionDeltaCm
	period := policy.DistanceSampleMs

	if p.present {
		p.awayMs = accumulate(p.awayMs, away, period)
		p.flatMs = accumulate(p.flatMs, flat, period)
	} else {
		p.awayMs = 0
		p.flatMs = 0
	}

	// Motion only matters as a recovery signal from Flat. It decays by half a
	// period per quiet sample so one noisy sample does not restart the timing.
	if !p.present && p.reason == ReasonFlat {
		if motion {
			p.motionMs += period
		} else if p.motionMs > period/2 {
			p.motionMs -= period / 2
		} else {
			p.motionMs = 0
		}
	} else {
		p.motionMs = 0
	}

	if !p.present && p.reason == ReasonAway && cm <= ref+policy.ReturnBandCm {
		p.nearMs += period
	} else {
		p.nearMs = 0
	}

	if p.present {
		p.reason = ReasonNone
		switch {
		case policy.AwayModeEnabled && p.awayMs >= policy.AwayTimeoutMs:
			p.present = false
			p.reason = ReasonAway
			upd.Lost = true
		case policy.FlatModeEnabled && p.flatMs >= policy.StaleTimeoutMs:
			p.present = false
			p.reason = ReasonFlat
			upd.Lost = true
		}
		return upd
	}

	switch {
	case p.reason == ReasonAway && p.nearMs >= policy.ReturnConfirmMs:
		p.restore()
		upd.Restored = true
	case p.reason == ReasonFlat && motion:
		p.restore()
		upd.Restored = true
	}
	return upd
}

// Present reports the current presence decision and, when absent, why.
func (p *Presence) Present() (bool, Reason) {
	return p.present, p.reason
}

// Reference returns the reference distance and whether it is the fallback.
func (p *Presence) Reference() (cm uint32, fallback bool) {
	return p.refCm, p.usingFallback
}

// ReferencePending reports whether the next sample will be captured as reference.
func (p *Presence) ReferencePending() bool {
	return p.refPending
}

// Streaks returns the away, flat, motion and near-reference streaks in ms.
func (p *Presence) Streaks() (away, flat, motion, near uint32) {
	return p.awayMs, p.flatMs, p.motionMs, p.nearMs
}

func (p *Presence) restore() {
	p.present = true
	p.reason = ReasonNone
	p.clearStreaks()
}

func (p *Presence) clearStreaks() {
	p.awayMs = 0
	p.flatMs = 0
	p.motionMs = 0
	p.nearMs = 0
}

func accumulate(streak uint32, cond bool, period uint32) uint32 {
	if !cond {
		return 0
	}
	return streak + period
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
