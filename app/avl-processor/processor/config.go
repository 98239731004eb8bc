package processor

import (
	"fmt"
	"regexp"
	"time"
)

// Config carries every processing threshold, validated and compiled once at
// startup. Workers read it without synchronization.
type Config struct {
	// MaxBadMatches is how many consecutive missed matches a predictable
	// vehicle survives before it is made unpredictable
	MaxBadMatches int
	// MaxBadAssignments is how many consecutive reports may arrive without a
	// usable assignment before a predictable vehicle loses its old one
	MaxBadAssignments int

	// NoProgressWindow and NoProgressMinDistance define the no-progress
	// check: a vehicle that covered less than the distance over the window
	// is stuck, unless it sat at a wait stop
	NoProgressWindow      time.Duration
	NoProgressMinDistance float64

	// DelayWindow and DelayMaxDistance define the delay check: covering less
	// than the distance over the window flags the vehicle delayed
	DelayWindow      time.Duration
	DelayMaxDistance float64

	// AllowableEarly and AllowableLate bound schedule adherence for an
	// existing match to remain valid
	AllowableEarly time.Duration
	AllowableLate  time.Duration
	// AllowableLateAtWaitStop is how long past its scheduled departure a
	// vehicle may sit at a wait stop before a NOT_LEAVING_TERMINAL event
	AllowableLateAtWaitStop time.Duration
	// EarlyToLateRatio weights earliness when comparing candidate matches
	EarlyToLateRatio float64

	// MaxDistanceForAssignmentGrab is how far from its claimed block a
	// vehicle may be and still take the assignment away from another vehicle
	MaxDistanceForAssignmentGrab float64
	// LayoverDistance is how far off route a vehicle may sit and still be
	// matched to an upcoming layover stop
	LayoverDistance float64
	// MaxMatchDistance is the furthest a fix may sit from block geometry for
	// a spatial match
	MaxMatchDistance float64

	// MaxStopsWhenNoPreviousMatch caps how many stops may be inferred behind
	// a vehicle matched mid trip with no previous match
	MaxStopsWhenNoPreviousMatch int
	// AllowableAvlTimeDifference bounds how far an estimated stop time may
	// sit from the report time that produced it
	AllowableAvlTimeDifference time.Duration

	// TerminalEarly and TerminalLate are the thresholds for terminal
	// departure events
	TerminalEarly time.Duration
	TerminalLate  time.Duration

	// BlockActiveBefore and BlockActiveAfter widen a block's scheduled span
	// when deciding whether it is active
	BlockActiveBefore time.Duration
	BlockActiveAfter  time.Duration

	// AutoAssign enables matching vehicles that report no assignment
	AutoAssign bool
	// IgnoreReportAssignments drops feed assignments entirely, leaving only
	// automatic assignment
	IgnoreReportAssignments bool

	// UnpredictableAssignments matches assignment ids that must never make a
	// vehicle predictable. Nil matches nothing.
	UnpredictableAssignments *regexp.Regexp
}

// DefaultConfig returns the thresholds used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxBadMatches:                2,
		MaxBadAssignments:            2,
		NoProgressWindow:             6 * time.Minute,
		NoProgressMinDistance:        60.0,
		DelayWindow:                  4 * time.Minute,
		DelayMaxDistance:             60.0,
		AllowableEarly:               15 * time.Minute,
		AllowableLate:                90 * time.Minute,
		AllowableLateAtWaitStop:      20 * time.Minute,
		EarlyToLateRatio:             3.0,
		MaxDistanceForAssignmentGrab: 10_000.0,
		LayoverDistance:              2_000.0,
		MaxMatchDistance:             200.0,
		MaxStopsWhenNoPreviousMatch:  6,
		AllowableAvlTimeDifference:   30 * time.Minute,
		TerminalEarly:                time.Minute,
		TerminalLate:                 4 * time.Minute,
		BlockActiveBefore:            30 * time.Minute,
		BlockActiveAfter:             30 * time.Minute,
		AutoAssign:                   false,
	}
}

// Validate rejects configurations the processor cannot run with.
func (c *Config) Validate() error {
	if c.MaxBadMatches < 1 {
		return fmt.Errorf("max bad matches must be at least 1, got %d", c.MaxBadMatches)
	}
	if c.MaxBadAssignments < 1 {
		return fmt.Errorf("max bad assignments must be at least 1, got %d", c.MaxBadAssignments)
	}
	if c.EarlyToLateRatio <= 0 {
		return fmt.Errorf("early to late ratio must be positive, got %f", c.EarlyToLateRatio)
	}
	if c.NoProgressWindow <= 0 || c.DelayWindow <= 0 {
		return fmt.Errorf("no progress and delay windows must be positive")
	}
	if c.MaxStopsWhenNoPreviousMatch < 1 {
		return fmt.Errorf("max stops when no previous match must be at least 1, got %d",
			c.MaxStopsWhenNoPreviousMatch)
	}
	return nil
}

// CompileUnpredictableAssignments compiles the assignment exclusion pattern.
// An empty pattern matches nothing.
func (c *Config) CompileUnpredictableAssignments(pattern string) error {
	if len(pattern) == 0 {
		c.UnpredictableAssignments = nil
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling unpredictable assignment pattern %q: %w", pattern, err)
	}
	c.UnpredictableAssignments = re
	return nil
}

// assignmentIsUnpredictable reports whether the assignment id is excluded
// from ever producing a predictable vehicle.
func (c *Config) assignmentIsUnpredictable(assignmentId string) bool {
	return c.UnpredictableAssignments != nil && c.UnpredictableAssignments.MatchString(assignmentId)
}
