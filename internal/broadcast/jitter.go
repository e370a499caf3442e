package broadcast

import (
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
)

// MinWait is the shortest pause between two cycles.
const MinWait = time.Second

// JitterSchedule spaces cycles Interval apart, shifted by a uniform offset in
// [-Jitter, +Jitter]. Rand returns values in [0, 1); nil uses math/rand.
type JitterSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
	Rand     func() float64
}

var _ cron.Schedule = JitterSchedule{}

// ScheduleFor builds the schedule described by s.
func ScheduleFor(s Settings) JitterSchedule {
	return JitterSchedule{
		Interval: time.Duration(s.IntervalMinutes) * time.Minute,
		Jitter:   time.Duration(s.JitterSeconds) * time.Second,
	}
}

// Wait samples the next pause, never shorter than MinWait.
func (j JitterSchedule) Wait() time.Duration {
	wait := j.Interval
	if j.Jitter > 0 {
		r := j.Rand
		if r == nil {
			r = rand.Float64
		}
		offsetMs := int64((r()*2 - 1) * float64(j.Jitter.Milliseconds()))
		wait += time.Duration(offsetMs) * time.Millisecond
	}
	return max(wait, MinWait)
}

func (j JitterSchedule) Next(t time.Time) time.Time {
	return t.Add(j.Wait())
}
