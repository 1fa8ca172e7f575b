package logic

import "testing"

func presencePolicy() Policy {
	p := DefaultPolicy()
	p.DistanceSampleMs = 100
	p.BodyMarginCm = 20
	p.ReturnBandCm = 10
	p.ReturnConfirmMs = 1500
	p.AwayTimeoutMs = 5000
	p.StaleTimeoutMs = 120000
	p.FlatBandCm = 1
	p.MotionDeltaCm = 5
	return p
}

// enabledPresence returns an enabled engine whose reference was captured at refCm.
func enabledPresence(t *testing.T, p Policy, refCm uint32) *Presence {
	t.Helper()
	pr := NewPresence()
	pr.Enable(p)
	upd := pr.Observe(refCm, true, p)
	if !upd.ReferenceCaptured {
		t.Fatal("first sample after enable should capture the reference")
	}
	ref, fallback := pr.Reference()
	if ref != refCm || fallback {
		t.Fatalf("reference = %d (fallback=%t), want %d captured", ref, fallback, refCm)
	}
	return pr
}

func TestPresenceEnableSeedsFallback(t *testing.T) {
	p := presencePolicy()
	pr := NewPresence()
	pr.Enable(p)

	ref, fallback := pr.Reference()
	if ref != p.RefFallbackCm || !fallback {
		t.Errorf("reference = %d (fallback=%t), want %d fallback", ref, fallback, p.RefFallbackCm)
	}
	if !pr.ReferencePending() {
		t.Error("reference capture should be pending after enable")
	}
	if present, reason := pr.Present(); !present || reason != ReasonNone {
		t.Errorf("Present() = %t, %s; want true, none", present, reason)
	}
}

func TestPresenceAwayTriggersAtTimeout(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)

	// 5000 ms at 100 ms per sample: sample 50 reaches the timeout.
	for i := 1; i <= 49; i++ {
		upd := pr.Observe(90, true, p)
		if upd.Lost {
			t.Fatalf("presence lost early at sample %d", i)
		}
	}
	away, _, _, _ := pr.Streaks()
	if away != 4900 {
		t.Errorf("away streak = %d, want 4900", away)
	}

	upd := pr.Observe(90, true, p)
	if !upd.Lost {
		t.Fatal("presence should be lost when the away streak reaches 5000ms")
	}
	if present, reason := pr.Present(); present || reason != ReasonAway {
		t.Errorf("Present() = %t, %s; want false, away", present, reason)
	}
}

func TestPresenceAwayStreakResets(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)

	for i := 0; i < 30; i++ {
		pr.Observe(90, true, p)
	}
	pr.Observe(70, true, p) // back within reference + margin
	away, _, _, _ := pr.Streaks()
	if away != 0 {
		t.Errorf("away streak = %d, want 0 after a near sample", away)
	}
}

func TestPresenceReturnConfirm(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)
	for i := 0; i < 50; i++ {
		pr.Observe(90, true, p)
	}
	if present, _ := pr.Present(); present {
		t.Fatal("setup: expected presence lost")
	}

	// 65 is within 60 + return band 10; 1500 ms is 15 samples.
	for i := 1; i <= 14; i++ {
		if upd := pr.Observe(65, true, p); upd.Restored {
			t.Fatalf("restored early at sample %d", i)
		}
	}
	upd := pr.Observe(65, true, p)
	if !upd.Restored {
		t.Fatal("presence should be restored after return_confirm_ms near the reference")
	}
	if present, reason := pr.Present(); !present || reason != ReasonNone {
		t.Errorf("Present() = %t, %s; want true, none", present, reason)
	}
	away, flat, motion, near := pr.Streaks()
	if away+flat+motion+near != 0 {
		t.Errorf("streaks not cleared on restore: %d %d %d %d", away, flat, motion, near)
	}
}

func TestPresenceReturnInterrupted(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)
	for i := 0; i < 50; i++ {
		pr.Observe(90, true, p)
	}

	for i := 0; i < 10; i++ {
		pr.Observe(65, true, p)
	}
	pr.Observe(75, true, p) // outside the return band
	_, _, _, near := pr.Streaks()
	if near != 0 {
		t.Errorf("near streak = %d, want 0", near)
	}
	for i := 0; i < 14; i++ {
		pr.Observe(65, true, p)
	}
	if present, _ := pr.Present(); present {
		t.Error("interrupted return should restart the confirm window")
	}
}

func TestPresenceFlatAndMotionRecovery(t *testing.T) {
	p := presencePolicy()
	p.StaleTimeoutMs = 10000
	pr := enabledPresence(t, p, 60)

	for i := 1; i <= 99; i++ {
		if upd := pr.Observe(60, true, p); upd.Lost {
			t.Fatalf("flat triggered early at sample %d", i)
		}
	}
	if upd := pr.Observe(60, true, p); !upd.Lost {
		t.Fatal("flat should trigger when the flat streak reaches the stale timeout")
	}
	if present, reason := pr.Present(); present || reason != ReasonFlat {
		t.Fatalf("Present() = %t, %s; want false, flat", present, reason)
	}

	// A change below the motion delta does not recover.
	if upd := pr.Observe(62, true, p); upd.Restored {
		t.Fatal("change of 2cm should not count as motion")
	}
	// A single sample at or above the motion delta does.
	if upd := pr.Observe(67, true, p); !upd.Restored {
		t.Fatal("change of 5cm should restore presence")
	}
	if present, reason := pr.Present(); !present || reason != ReasonNone {
		t.Errorf("Present() = %t, %s; want true, none", present, reason)
	}
}

func TestPresenceAwayTakesPriorityOverFlat(t *testing.T) {
	p := presencePolicy()
	p.AwayTimeoutMs = 1000
	p.StaleTimeoutMs = 900
	pr := enabledPresence(t, p, 60)

	// First far sample is not flat (delta 40), so after 10 samples the away
	// streak is 1000 and the flat streak 900: both thresholds are met.
	var upd PresenceUpdate
	for i := 0; i < 10; i++ {
		upd = pr.Observe(100, true, p)
	}
	if !upd.Lost {
		t.Fatal("expected presence lost")
	}
	if _, reason := pr.Present(); reason != ReasonAway {
		t.Errorf("reason = %s, want away", reason)
	}
}

func TestPresenceModeFlags(t *testing.T) {
	tests := []struct {
		name       string
		away, flat bool
		wantReason Reason
		wantLost   bool
	}{
		{"both enabled", true, true, ReasonAway, true},
		{"away disabled", false, true, ReasonFlat, true},
		{"both disabled", false, false, ReasonNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := presencePolicy()
			p.AwayTimeoutMs = 3000
			p.StaleTimeoutMs = 10000
			p.AwayModeEnabled = tt.away
			p.FlatModeEnabled = tt.flat
			pr := enabledPresence(t, p, 60)

			for i := 0; i < 200; i++ {
				pr.Observe(90, true, p)
			}
			present, reason := pr.Present()
			if present == tt.wantLost || reason != tt.wantReason {
				t.Errorf("Present() = %t, %s; want %t, %s", present, reason, !tt.wantLost, tt.wantReason)
			}
		})
	}
}

func TestPresenceDisabledClearsEverySample(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)
	for i := 0; i < 20; i++ {
		pr.Observe(90, true, p)
	}

	for _, cm := range []uint32{90, 200, 60} {
		if upd := pr.Observe(cm, false, p); upd.Lost || upd.Restored {
			t.Errorf("no transitions expected while disabled, got %+v", upd)
		}
		away, flat, motion, near := pr.Streaks()
		if away+flat+motion+near != 0 {
			t.Errorf("streaks should be zero while disabled: %d %d %d %d", away, flat, motion, near)
		}
		if _, reason := pr.Present(); reason != ReasonNone {
			t.Errorf("reason = %s, want none", reason)
		}
	}
}

func TestPresenceDisableFromNoUser(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)
	for i := 0; i < 50; i++ {
		pr.Observe(90, true, p)
	}

	pr.Disable()
	if present, reason := pr.Present(); !present || reason != ReasonNone {
		t.Errorf("Present() = %t, %s after disable; want true, none", present, reason)
	}
}

func TestPresenceReenableRecapturesReference(t *testing.T) {
	p := presencePolicy()
	pr := enabledPresence(t, p, 60)
	pr.Disable()
	pr.Enable(p)

	upd := pr.Observe(120, true, p)
	if !upd.ReferenceCaptured {
		t.Fatal("expected reference recapture")
	}
	if ref, _ := pr.Reference(); ref != 120 {
		t.Errorf("reference = %d, want 120", ref)
	}
	// The first sample after enable has no previous sample, so it is never flat.
	_, flat, _, _ := pr.Streaks()
	if flat != 0 {
		t.Errorf("flat streak = %d, want 0", flat)
	}
}
