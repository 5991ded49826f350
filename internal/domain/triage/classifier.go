// Package triage maps a primary-survey observation (arrival mode, ABCDE
// assessment, optional vitals) to a triage level from 1 (resuscitation) to 5
// (least urgent). Classification is pure and safe for concurrent use.
package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ehr/edops/internal/platform/apperr"
)

const (
	// MaxTier is the severity of an immediate life threat on an axis.
	MaxTier = 4

	escalationScore = 20
	minEscalated    = 2
	ambulanceCap    = 4
)

var (
	airwayTiers = map[Airway]int{
		AirwayClear:               0,
		AirwayArtificial:          2,
		AirwayPartiallyObstructed: 3,
		AirwayFullyObstructed:     4,
	}
	breathingTiers = map[Breathing]int{
		BreathingNormal:   0,
		BreathingLabored:  2,
		BreathingShallow:  3,
		BreathingAssisted: 3,
		BreathingAbsent:   4,
	}
	circulationTiers = map[Circulation]int{
		CirculationNormal:    0,
		CirculationDecreased: 2,
		CirculationWeak:      3,
		CirculationAbsent:    4,
	}
	disabilityTiers = map[Disability]int{
		DisabilityAlert:           0,
		DisabilityVoiceResponsive: 1,
		DisabilityPainResponsive:  3,
		DisabilityUnresponsive:    4,
	}
	exposureTiers = map[Exposure]int{
		ExposureNoTrauma:    0,
		ExposureMinorTrauma: 1,
		ExposureHypothermia: 2,
		ExposureBurns:       3,
		ExposureMajorTrauma: 4,
	}
	arrivalModes = map[ArrivalMode]bool{
		ArrivalAmbulance:  true,
		ArrivalWalkIn:     true,
		ArrivalWheelchair: true,
		ArrivalOther:      true,
	}

	axisWeights = [...]int{5, 4, 3, 2, 1}

	tierWording = [...]string{
		"no finding",
		"minor finding",
		"moderate compromise",
		"severe compromise",
		"immediate threat",
	}
)

// Classify derives the triage level and status for obs. It fails with
// InvalidObservation when a required field is missing or outside its
// enumeration, or when a vital sign is out of range.
func Classify(obs Observation) (Classification, error) {
	tiers, values, err := axisTiers(obs)
	if err != nil {
		return Classification{}, err
	}
	if err := checkVitals(obs.Vitals); err != nil {
		return Classification{}, err
	}

	worst := AxisAirway
	score := 0
	deranged := 0
	for a := AxisAirway; a <= AxisExposure; a++ {
		score += axisWeights[a] * tiers[a]
		// Strict comparison keeps the higher-priority axis on ties.
		if tiers[a] > tiers[worst] {
			worst = a
		}
		if tiers[a] >= 2 {
			deranged++
		}
	}
	worstTier := tiers[worst]

	level := 5 - worstTier
	if worstTier < MaxTier && (deranged >= 2 || score >= escalationScore) {
		level = max(level-1, minEscalated)
	}
	level = applyVitals(level, obs.Vitals)
	if obs.ArrivalMode == ArrivalAmbulance {
		level = min(level, ambulanceCap)
	}

	return Classification{
		Level:            level,
		Status:           StatusForLevel(level),
		AcuityScore:      score,
		WorstAxis:        worst,
		WorstTier:        worstTier,
		PrimaryComplaint: complaint(worst, worstTier, values[worst], obs.ReportedComplaint),
	}, nil
}

// StatusForLevel is Critical for levels 1 and 2, Stable otherwise.
func StatusForLevel(level int) Status {
	if level <= 2 {
		return StatusCritical
	}
	return StatusStable
}

// ValidLevel reports whether level is a triage level.
func ValidLevel(level int) bool {
	return level >= 1 && level <= 5
}

func axisTiers(obs Observation) ([5]int, [5]string, error) {
	var tiers [5]int
	var values [5]string

	if obs.ArrivalMode == "" {
		return tiers, values, missing("arrival_mode")
	}
	if !arrivalModes[obs.ArrivalMode] {
		return tiers, values, outOfEnum("arrival_mode", string(obs.ArrivalMode), keys(arrivalModes))
	}

	var err error
	if tiers[AxisAirway], err = lookup("airway", obs.Airway, airwayTiers); err != nil {
		return tiers, values, err
	}
	if tiers[AxisBreathing], err = lookup("breathing", obs.Breathing, breathingTiers); err != nil {
		return tiers, values, err
	}
	if tiers[AxisCirculation], err = lookup("circulation", obs.Circulation, circulationTiers); err != nil {
		return tiers, values, err
	}
	if tiers[AxisDisability], err = lookup("disability", obs.Disability, disabilityTiers); err != nil {
		return tiers, values, err
	}
	if tiers[AxisExposure], err = lookup("exposure", obs.Exposure, exposureTiers); err != nil {
		return tiers, values, err
	}

	values = [5]string{
		string(obs.Airway), string(obs.Breathing), string(obs.Circulation),
		string(obs.Disability), string(obs.Exposure),
	}
	return tiers, values, nil
}

func lookup[T ~string](field string, v T, table map[T]int) (int, error) {
	if v == "" {
		return 0, missing(field)
	}
	tier, ok := table[v]
	if !ok {
		return 0, outOfEnum(field, string(v), keys(table))
	}
	return tier, nil
}

func checkVitals(v Vitals) error {
	if v.SystolicBP != nil && (*v.SystolicBP < 0 || *v.SystolicBP > 300) {
		return rangeErr("systolic_bp", *v.SystolicBP, "0-300")
	}
	if v.O2Saturation != nil && (*v.O2Saturation < 0 || *v.O2Saturation > 100) {
		return rangeErr("o2_saturation", *v.O2Saturation, "0-100")
	}
	if v.Temperature != nil && (*v.Temperature < 25 || *v.Temperature > 45) {
		return rangeErr("temperature", *v.Temperature, "25-45")
	}
	if v.PainScale != nil && (*v.PainScale < 0 || *v.PainScale > 10) {
		return rangeErr("pain_scale", *v.PainScale, "0-10")
	}
	return nil
}

// applyVitals only ever lowers the level number (raises urgency).
func applyVitals(level int, v Vitals) int {
	if v.SystolicBP != nil && *v.SystolicBP < 90 {
		level = min(level, 2)
	}
	if v.O2Saturation != nil && *v.O2Saturation < 90 {
		level = min(level, 2)
	}
	if v.Temperature != nil && (*v.Temperature >= 40 || *v.Temperature <= 35) {
		level = min(level, 3)
	}
	if v.PainScale != nil {
		switch {
		case *v.PainScale >= 7:
			level = min(level, 3)
		case *v.PainScale >= 4:
			level = min(level, 4)
		}
	}
	return level
}

func complaint(axis Axis, tier int, value, reported string) string {
	if tier == 0 {
		if r := strings.TrimSpace(reported); r != "" {
			return r
		}
		return "No immediate threat"
	}
	return fmt.Sprintf("%s %s (%s)", axis, tierWording[tier], value)
}

func missing(field string) error {
	return apperr.New(apperr.CodeInvalidObservation, "%s is required", field).WithField(field)
}

func outOfEnum(field, value string, allowed []string) error {
	return apperr.New(apperr.CodeInvalidObservation, "%q is not a valid %s", value, field).
		WithField(field).
		WithDetails(map[string][]string{"allowed": allowed})
}

func rangeErr(field string, value interface{}, bounds string) error {
	return apperr.New(apperr.CodeInvalidObservation, "%s %v outside %s", field, value, bounds).WithField(field)
}

func keys[T ~string, V any](m map[T]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}
