package logic

import "testing"

func TestDefaultPolicyIsClampStable(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Clamp(); got != p {
		t.Errorf("Clamp changed the defaults:\n got %+v\nwant %+v", got, p)
	}
}

func TestPolicyClamp(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Policy)
		check func(Policy) bool
	}{
		{"away timeout below min", func(p *Policy) { p.AwayTimeoutMs = 1 }, func(p Policy) bool { return p.AwayTimeoutMs == 3000 }},
		{"away timeout above max", func(p *Policy) { p.AwayTimeoutMs = 999999 }, func(p Policy) bool { return p.AwayTimeoutMs == 120000 }},
		{"away timeout rounds down", func(p *Policy) { p.AwayTimeoutMs = 4499 }, func(p Policy) bool { return p.AwayTimeoutMs == 4000 }},
		{"away timeout rounds up", func(p *Policy) { p.AwayTimeoutMs = 4500 }, func(p Policy) bool { return p.AwayTimeoutMs == 5000 }},
		{"stale timeout below min", func(p *Policy) { p.StaleTimeoutMs = 5000 }, func(p Policy) bool { return p.StaleTimeoutMs == 10000 }},
		{"return band zero", func(p *Policy) { p.ReturnBandCm = 0 }, func(p Policy) bool { return p.ReturnBandCm == 1 }},
		{"return band high", func(p *Policy) { p.ReturnBandCm = 99 }, func(p Policy) bool { return p.ReturnBandCm == 30 }},
		{"window zero", func(p *Policy) { p.LightWindow = 0 }, func(p Policy) bool { return p.LightWindow == 1 }},
		{"window too large", func(p *Policy) { p.LightWindow = 17 }, func(p Policy) bool { return p.LightWindow == 1 }},
		{"error sentinel zero", func(p *Policy) { p.DistanceErrorCm = 0 }, func(p Policy) bool { return p.DistanceErrorCm == 999 }},
		{"log disabled", func(p *Policy) { p.LogMs = 0 }, func(p Policy) bool { return p.LogMs == 0 }},
		{"log too fast", func(p *Policy) { p.LogMs = 5 }, func(p Policy) bool { return p.LogMs == 100 }},
		{"percent over 100", func(p *Policy) { p.HysteresisBandPercent = 200 }, func(p Policy) bool { return p.HysteresisBandPercent == 100 }},
		{"offset min positive", func(p *Policy) { p.OffsetMin = 10 }, func(p Policy) bool { return p.OffsetMin == 0 }},
		{"offset max negative", func(p *Policy) { p.OffsetMax = -10 }, func(p Policy) bool { return p.OffsetMax == 0 }},
		{"offset step zero", func(p *Policy) { p.OffsetStep = 0 }, func(p Policy) bool { return p.OffsetStep == 1 }},
		{"control tick too fast", func(p *Policy) { p.ControlTickMs = 1 }, func(p Policy) bool { return p.ControlTickMs == 10 }},
		{"version forced", func(p *Policy) { p.Version = 0 }, func(p Policy) bool { return p.Version == PolicyVersion }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.apply(&p)
			if got := p.Clamp(); !tt.check(got) {
				t.Errorf("unexpected clamp result: %+v", got)
			}
		})
	}
}

func TestPolicyClampDoesNotMutateReceiver(t *testing.T) {
	p := DefaultPolicy()
	p.LightWindow = 0
	_ = p.Clamp()
	if p.LightWindow != 0 {
		t.Errorf("receiver modified: LightWindow = %d", p.LightWindow)
	}
}
