package sched

// Priority is a task's scheduling level. The numeric values are part of
// the external contract.
type Priority uint8

const (
	// PriorityIdle runs only when nothing else is ready.
	PriorityIdle Priority = 0
	// PriorityLow is for background work.
	PriorityLow Priority = 8
	// PriorityBelowNormal is below the default level.
	PriorityBelowNormal Priority = 12
	// PriorityNormal is the default level.
	PriorityNormal Priority = 16
	// PriorityAboveNormal is above the default level.
	PriorityAboveNormal Priority = 20
	// PriorityHigh is for latency-sensitive work.
	PriorityHigh Priority = 24
	// PriorityRealtime preempts everything else.
	PriorityRealtime Priority = 31
)

// Levels lists every priority from lowest to highest.
var Levels = [...]Priority{
	PriorityIdle,
	PriorityLow,
	PriorityBelowNormal,
	PriorityNormal,
	PriorityAboveNormal,
	PriorityHigh,
	PriorityRealtime,
}

// NumLevels is the number of named priority levels.
const NumLevels = len(Levels)

// Index returns the position of p in Levels.
func (p Priority) Index() int {
	for i, level := range Levels {
		if level == p {
			return i
		}
	}
	// Unrecognized raw values bucket through FromLevel.
	return FromLevel(uint8(p)).Index()
}

// Higher steps up exactly one level, saturating at Realtime.
func (p Priority) Higher() Priority {
	i := p.Index()
	if i+1 < NumLevels {
		return Levels[i+1]
	}
	return PriorityRealtime
}

// Lower steps down exactly one level, saturating at Idle.
func (p Priority) Lower() Priority {
	i := p.Index()
	if i > 0 {
		return Levels[i-1]
	}
	return PriorityIdle
}

// FromLevel buckets a raw 0-31 priority number into one of the seven
// named levels using fixed boundaries.
func FromLevel(n uint8) Priority {
	switch {
	case n <= 3:
		return PriorityIdle
	case n <= 9:
		return PriorityLow
	case n <= 13:
		return PriorityBelowNormal
	case n <= 17:
		return PriorityNormal
	case n <= 21:
		return PriorityAboveNormal
	case n <= 27:
		return PriorityHigh
	default:
		return PriorityRealtime
	}
}

// String returns the level name.
func (p Priority) String() string {
	switch p {
	case PriorityIdle:
		return "idle"
	case PriorityLow:
		return "low"
	case PriorityBelowNormal:
		return "below_normal"
	case PriorityNormal:
		return "normal"
	case PriorityAboveNormal:
		return "above_normal"
	case PriorityHigh:
		return "high"
	case PriorityRealtime:
		return "realtime"
	default:
		return FromLevel(uint8(p)).String()
	}
}
