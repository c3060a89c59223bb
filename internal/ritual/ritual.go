// Package ritual holds the pure decision logic for the 28-day devotional
// cycle: phase arithmetic, solicitation eligibility, and message intensity.
// Nothing here performs I/O.
package ritual

import (
	"math/rand"
	"time"
)

// Phase is one of the four 7-day segments of a 28-day cycle.
type Phase string

const (
	PhaseInitiation Phase = "INITIATION"
	PhaseBlessing   Phase = "BLESSING"
	PhaseSilent     Phase = "SILENT"
	PhaseMaha       Phase = "MAHA"
)

// Intensity selects the message variant for an eligible prompt day.
type Intensity string

const (
	IntensityGentle     Intensity = "GENTLE"
	IntensityMedium     Intensity = "MEDIUM"
	IntensityStrong     Intensity = "STRONG"
	IntensityMaha       Intensity = "MAHA"
	IntensityLeadership Intensity = "LEADERSHIP"
	IntensityCollective Intensity = "COLLECTIVE"
	IntensityLight      Intensity = "LIGHT"
	IntensitySilent     Intensity = "SILENT"
)

// ContentType is the nurture dispatch decision for a due user.
type ContentType string

const (
	ContentFullSankalp   ContentType = "FULL_SANKALP"
	ContentLightBlessing ContentType = "LIGHT_BLESSING"
	ContentSilentWisdom  ContentType = "SILENT_WISDOM"
	ContentMahaSankalp   ContentType = "MAHA_SANKALP"
	ContentSkip          ContentType = "SKIP"
)

const (
	CycleLength            = 28
	MaxDevotionalCycles    = 4
	CooldownWindow         = 168 * time.Hour
	MaxPromptsPerMonth     = 2
	MinDaysBetweenPrompts  = 6
	MahaIntensityThreshold = 3
	JitterWindow           = 15 * time.Minute
)

// Eligibility reasons surfaced to analytics and admin views.
const (
	ReasonNotPromptPhase   = "Not in a prompt phase"
	ReasonMonthlyCap       = "Monthly prompt cap reached"
	ReasonTooSoon          = "Too soon since last prompt"
	ReasonBelowMaha        = "Intensity below maha threshold"
	ReasonInCooldown       = "In post-sankalp cooldown"
	ReasonEligible         = "Eligible"
)

// Profile carries the user fields the orchestrator decides on.
type Profile struct {
	CycleDay         int
	DevotionalCycle  int
	IntensityScore   int
	PromptsThisMonth int
	LastPromptAt     *time.Time
	LastSankalpAt    *time.Time
	TotalSankalps    int
}

// PhaseOf maps a cycle day in [1,28] to its phase.
func PhaseOf(cycleDay int) Phase {
	switch {
	case cycleDay <= 7:
		return PhaseInitiation
	case cycleDay <= 14:
		return PhaseBlessing
	case cycleDay <= 21:
		return PhaseSilent
	default:
		return PhaseMaha
	}
}

// WeekOf maps a cycle day to its week in [1,4].
func WeekOf(cycleDay int) int {
	return (cycleDay-1)/7 + 1
}

// InCooldown reports whether the user is within the 168-hour post-payment
// window.
func InCooldown(p Profile, now time.Time) bool {
	return p.LastSankalpAt != nil && now.Sub(*p.LastSankalpAt) < CooldownWindow
}

// EligibleForSankalp gates a solicitation prompt. Checks run in order:
// phase, monthly cap, minimum gap, maha intensity threshold.
func EligibleForSankalp(p Profile, now time.Time) (bool, string) {
	phase := PhaseOf(p.CycleDay)
	if phase != PhaseInitiation && phase != PhaseMaha {
		return false, ReasonNotPromptPhase
	}
	if p.PromptsThisMonth >= MaxPromptsPerMonth {
		return false, ReasonMonthlyCap
	}
	if p.LastPromptAt != nil && now.Sub(*p.LastPromptAt) < MinDaysBetweenPrompts*24*time.Hour {
		return false, ReasonTooSoon
	}
	if phase == PhaseMaha && p.IntensityScore < MahaIntensityThreshold {
		return false, ReasonBelowMaha
	}
	return true, ReasonEligible
}

// baseIntensity is keyed by (devotional cycle bucket, week). Weeks 2 and 3
// never reach it.
var baseIntensity = map[[2]int]Intensity{
	{1, 1}: IntensityGentle,
	{1, 4}: IntensityMedium,
	{2, 1}: IntensityStrong,
	{2, 4}: IntensityMaha,
	{3, 1}: IntensityLeadership,
	{3, 4}: IntensityCollective,
}

// downgrade maps an intensity one level down for users who have never paid,
// so a never-paying user is never addressed as a leader.
var downgrade = map[Intensity]Intensity{
	IntensityGentle:     IntensityGentle,
	IntensityMedium:     IntensityGentle,
	IntensityStrong:     IntensityMedium,
	IntensityMaha:       IntensityStrong,
	IntensityLeadership: IntensityMedium,
	IntensityCollective: IntensityStrong,
}

// IntensityFor selects the message intensity for the user's current day.
func IntensityFor(p Profile, now time.Time) Intensity {
	week := WeekOf(p.CycleDay)
	switch week {
	case 2:
		return IntensityLight
	case 3:
		return IntensitySilent
	}
	if InCooldown(p, now) {
		return IntensityLight
	}

	cycle := p.DevotionalCycle
	if cycle < 1 {
		cycle = 1
	}
	if cycle > 3 {
		cycle = 3
	}
	level := baseIntensity[[2]int{cycle, week}]
	if p.TotalSankalps == 0 {
		level = downgrade[level]
	}
	return level
}

// NurtureContent picks the content type for a due nurture tick.
func NurtureContent(p Profile, now time.Time) ContentType {
	switch WeekOf(p.CycleDay) {
	case 2:
		return ContentLightBlessing
	case 3:
		return ContentSilentWisdom
	}

	eligible, _ := EligibleForSankalp(p, now)
	if !eligible || InCooldown(p, now) {
		return ContentSkip
	}
	if PhaseOf(p.CycleDay) == PhaseMaha {
		return ContentMahaSankalp
	}
	return ContentFullSankalp
}

// AdvanceCycleDay increments the cycle day, wrapping 28 -> 1 and bumping the
// devotional cycle number capped at MaxDevotionalCycles. Returns the new
// (cycleDay, devotionalCycle, phase).
func AdvanceCycleDay(cycleDay, devotionalCycle int) (int, int, Phase) {
	cycleDay++
	if cycleDay > CycleLength {
		cycleDay = 1
		if devotionalCycle < MaxDevotionalCycles {
			devotionalCycle++
		}
	}
	return cycleDay, devotionalCycle, PhaseOf(cycleDay)
}

// JitterAround spreads a trigger time uniformly within +/- JitterWindow.
func JitterAround(base time.Time) time.Time {
	offset := time.Duration(rand.Int63n(int64(2*JitterWindow))) - JitterWindow
	return base.Add(offset)
}
