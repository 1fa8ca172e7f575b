// Package filter provides fixed-size integer filters for raw sensor samples.
// Both filters are allocation-free and O(1) per sample.
package filter

// MaxWindow is the largest moving-average window supported.
const MaxWindow = 16

// MovingAverage is a running mean over the last Window light samples.
// The zero value is not usable; call NewMovingAverage.
type MovingAverage struct {
	buf    [MaxWindow]uint16
	sum    uint32
	window int
	count  int
	index  int
}

// NewMovingAverage returns a filter with the given window.
// Windows outside 1..MaxWindow are treated as 1.
func NewMovingAverage(window int) *MovingAverage {
	if window < 1 || window > MaxWindow {
		window = 1
	}
	return &MovingAverage{window: window}
}

// Push adds a sample and returns the mean of the samples currently held.
// Until the window fills the mean is taken over the samples seen so far.
func (m *MovingAverage) Push(sample uint16) uint16 {
	if m.count < m.window {
		m.count++
	} else {
		m.sum -= uint32(m.buf[m.index])
	}
	m.buf[m.index] = sample
	m.sum += uint32(sample)
	m.index = (m.index + 1) % m.window

	return uint16(m.sum / uint32(m.count))
}

// Get returns the current mean, or 0 if nothing has been pushed.
func (m *MovingAverage) Get() uint16 {
	if m.count == 0 {
		return 0
	}
	return uint16(m.sum / uint32(m.count))
}

// IsReady reports whether the window is full.
func (m *MovingAverage) IsReady() bool {
	return m.count >= m.window
}

// Window returns the configured window size.
func (m *MovingAverage) Window() int {
	return m.window
}

// Count returns how many samples the mean is currently taken over.
func (m *MovingAverage) Count() int {
	return m.count
}

// Median3 rejects single-sample spikes in distance readings.
// The zero value is ready to use.
type Median3 struct {
	samples [3]uint32
	count   int
	index   int
}

// Push overwrites the oldest of the three slots.
func (m *Median3) Push(sample uint32) {
	m.samples[m.index] = sample
	m.index = (m.index + 1) % 3
	if m.count < 3 {
		m.count++
	}
}

// Get returns the single sample after one push, the mean of two after two,
// and the true median once three samples have been seen. It returns 0 when empty.
func (m *Median3) Get() uint32 {
	switch m.count {
	case 0:
		return 0
	case 1:
		return m.samples[0]
	case 2:
		// Both values fit in uint32; widen so the sum cannot wrap.
		return uint32((uint64(m.samples[0]) + uint64(m.samples[1])) / 2)
	}
	return median(m.samples[0], m.samples[1], m.samples[2])
}

// IsReady reports whether three samples have been seen.
func (m *Median3) IsReady() bool {
	return m.count >= 3
}

// Reset empties the filter.
func (m *Median3) Reset() {
	*m = Median3{}
}

func median(a, b, c uint32) uint32 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}
