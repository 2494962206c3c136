package audio

import "time"

// pacer holds a synthetic source to the real-time frame rate so it blocks
// the way a hardware transfer would.
type pacer struct {
	sampleRate int
	start      time.Time
	frames     uint64
	sleep      func(time.Duration)
	now        func() time.Time
}

func newPacer(sampleRate int) *pacer {
	return &pacer{
		sampleRate: sampleRate,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// wait blocks until n more frames are due, then accounts for them.
func (p *pacer) wait(n int) {
	if p.start.IsZero() {
		p.start = p.now()
	}
	p.frames += uint64(n)
	due := p.start.Add(time.Duration(p.frames) * time.Second / time.Duration(p.sampleRate))
	if d := due.Sub(p.now()); d > 0 {
		p.sleep(d)
	}
}
