package sched

import (
	"fmt"
	"math"
	"time"

	"edfsched/internal/world"
)

// Sample is one timestamped radar reading.
type Sample struct {
	At  time.Time
	Pos world.Position
}

// Estimator extrapolates the time a target reaches the critical line
// (Y == 0) from two samples. MinSpeed is the slowest approach, in units
// per second, that is still considered a real descent.
type Estimator struct {
	MinSpeed float64
}

// Estimate returns the absolute deadline s1.At + (-y1 / v), where v is the
// approach rate between the samples. Receding, stationary, too slow or
// otherwise degenerate inputs yield ErrEstimationInvalid.
func (e Estimator) Estimate(s0, s1 Sample) (time.Time, error) {
	dt := s1.At.Sub(s0.At)
	if dt <= 0 {
		return time.Time{}, fmt.Errorf("%w: samples not increasing in time (dt=%s)", ErrEstimationInvalid, dt)
	}

	v := float64(s1.Pos.Y-s0.Pos.Y) / dt.Seconds()
	if v >= 0 {
		return time.Time{}, fmt.Errorf("%w: target not approaching (v=%.3f/s)", ErrEstimationInvalid, v)
	}
	if math.Abs(v) < e.MinSpeed {
		return time.Time{}, fmt.Errorf("%w: approach %.3f/s below minimum %.3f/s", ErrEstimationInvalid, -v, e.MinSpeed)
	}

	remaining := -float64(s1.Pos.Y) / v
	if remaining < 0 || math.IsInf(remaining, 0) || math.IsNaN(remaining) ||
		remaining > float64(math.MaxInt64)/float64(time.Second) {
		return time.Time{}, fmt.Errorf("%w: time to line %.3fs out of range", ErrEstimationInvalid, remaining)
	}

	return s1.At.Add(time.Duration(remaining * float64(time.Second))), nil
}
