package triage

import (
	"errors"
	"testing"

	"github.com/ehr/edops/internal/platform/apperr"
)

func ptrInt(v int) *int { return &v }

func ptrFloat(v float64) *float64 { return &v }

func baseline() Observation {
	return Observation{
		ArrivalMode: ArrivalWalkIn,
		Airway:      AirwayClear,
		Breathing:   BreathingNormal,
		Circulation: CirculationNormal,
		Disability:  DisabilityAlert,
		Exposure:    ExposureNoTrauma,
	}
}

func TestClassify_AllCombinationsInRange(t *testing.T) {
	count := 0
	for aw, awTier := range airwayTiers {
		for br, brTier := range breathingTiers {
			for ci, ciTier := range circulationTiers {
				for di, diTier := range disabilityTiers {
					for ex, exTier := range exposureTiers {
						for mode := range arrivalModes {
							obs := Observation{
								ArrivalMode: mode,
								Airway:      aw,
								Breathing:   br,
								Circulation: ci,
								Disability:  di,
								Exposure:    ex,
							}
							cls, err := Classify(obs)
							if err != nil {
								t.Fatalf("unexpected error for %+v: %v", obs, err)
							}
							if !ValidLevel(cls.Level) {
								t.Fatalf("level %d out of range for %+v", cls.Level, obs)
							}
							anyMax := awTier == MaxTier || brTier == MaxTier || ciTier == MaxTier ||
								diTier == MaxTier || exTier == MaxTier
							if anyMax && cls.Level != 1 {
								t.Fatalf("expected level 1 with an axis at max tier, got %d for %+v", cls.Level, obs)
							}
							if !anyMax && cls.Level == 1 {
								t.Fatalf("level 1 without a life threat for %+v", obs)
							}
							count++
						}
					}
				}
			}
		}
	}
	if count != 4*5*4*4*5*4 {
		t.Errorf("expected to cover every combination, covered %d", count)
	}
}

func TestClassify_Baseline(t *testing.T) {
	cls, err := Classify(baseline())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Level != 5 {
		t.Errorf("expected level 5, got %d", cls.Level)
	}
	if cls.Status != StatusStable {
		t.Errorf("expected Stable, got %s", cls.Status)
	}
	if cls.PrimaryComplaint != "No immediate threat" {
		t.Errorf("unexpected complaint %q", cls.PrimaryComplaint)
	}
}

func TestClassify_ReportedComplaintUsedWithoutFindings(t *testing.T) {
	obs := baseline()
	obs.ReportedComplaint = "  sprained ankle "
	cls, err := Classify(obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.PrimaryComplaint != "sprained ankle" {
		t.Errorf("expected reported complaint, got %q", cls.PrimaryComplaint)
	}
}

func TestClassify_TieBreakPrefersAirway(t *testing.T) {
	obs := baseline()
	obs.Airway = AirwayFullyObstructed
	obs.Circulation = CirculationAbsent
	cls, err := Classify(obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cls.Level != 1 || cls.Status != StatusCritical {
		t.Errorf("expected level 1 Critical, got %d %s", cls.Level, cls.Status)
	}
	if cls.WorstAxis != AxisAirway {
		t.Errorf("expected airway to win the tie, got %s", cls.WorstAxis)
	}
	if cls.PrimaryComplaint != "Airway immediate threat (FULLY_OBSTRUCTED)" {
		t.Errorf("unexpected complaint %q", cls.PrimaryComplaint)
	}

	// Same level regardless of which axis wins the wording.
	obs.Airway = AirwayClear
	cls2, _ := Classify(obs)
	if cls2.Level != cls.Level {
		t.Errorf("tie-break changed the level: %d vs %d", cls2.Level, cls.Level)
	}
	if cls2.WorstAxis != AxisCirculation {
		t.Errorf("expected circulation, got %s", cls2.WorstAxis)
	}
}

func TestClassify_Escalation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(o *Observation)
		level int
	}{
		{"single moderate axis", func(o *Observation) { o.Breathing = BreathingLabored }, 3},
		{"two moderate axes escalate", func(o *Observation) {
			o.Breathing = BreathingLabored
			o.Circulation = CirculationDecreased
		}, 2},
		{"severe axis", func(o *Observation) { o.Disability = DisabilityPainResponsive }, 2},
		{"minor finding only", func(o *Observation) { o.Exposure = ExposureMinorTrauma }, 4},
		{"ambulance caps least urgent", func(o *Observation) { o.ArrivalMode = ArrivalAmbulance }, 4},
		{"low saturation", func(o *Observation) { o.O2Saturation = ptrInt(85) }, 2},
		{"hypotension", func(o *Observation) { o.SystolicBP = ptrInt(80) }, 2},
		{"fever", func(o *Observation) { o.Temperature = ptrFloat(40.2) }, 3},
		{"severe pain", func(o *Observation) { o.PainScale = ptrInt(8) }, 3},
		{"moderate pain", func(o *Observation) { o.PainScale = ptrInt(5) }, 4},
		{"normal vitals do not de-escalate", func(o *Observation) {
			o.Airway = AirwayPartiallyObstructed
			o.SystolicBP = ptrInt(120)
			o.O2Saturation = ptrInt(99)
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := baseline()
			tt.mut(&obs)
			cls, err := Classify(obs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cls.Level != tt.level {
				t.Errorf("expected level %d, got %d", tt.level, cls.Level)
			}
			if cls.Status != StatusForLevel(tt.level) {
				t.Errorf("status %s inconsistent with level %d", cls.Status, tt.level)
			}
		})
	}
}

func TestClassify_InvalidObservation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(o *Observation)
		field string
	}{
		{"missing arrival", func(o *Observation) { o.ArrivalMode = "" }, "arrival_mode"},
		{"bad arrival", func(o *Observation) { o.ArrivalMode = "HELICOPTER" }, "arrival_mode"},
		{"missing airway", func(o *Observation) { o.Airway = "" }, "airway"},
		{"bad breathing", func(o *Observation) { o.Breathing = "FAST" }, "breathing"},
		{"missing circulation", func(o *Observation) { o.Circulation = "" }, "circulation"},
		{"bad disability", func(o *Observation) { o.Disability = "asleep" }, "disability"},
		{"missing exposure", func(o *Observation) { o.Exposure = "" }, "exposure"},
		{"pain above scale", func(o *Observation) { o.PainScale = ptrInt(11) }, "pain_scale"},
		{"negative saturation", func(o *Observation) { o.O2Saturation = ptrInt(-1) }, "o2_saturation"},
		{"implausible temperature", func(o *Observation) { o.Temperature = ptrFloat(50) }, "temperature"},
		{"implausible pressure", func(o *Observation) { o.SystolicBP = ptrInt(400) }, "systolic_bp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := baseline()
			tt.mut(&obs)
			_, err := Classify(obs)
			if !errors.Is(err, apperr.ErrInvalidObservation) {
				t.Fatalf("expected InvalidObservation, got %v", err)
			}
			ae, _ := apperr.As(err)
			if ae.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, ae.Field)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	obs := baseline()
	obs.Breathing = BreathingShallow
	obs.Exposure = ExposureBurns
	first, _ := Classify(obs)
	for i := 0; i < 50; i++ {
		got, _ := Classify(obs)
		if got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", got, first)
		}
	}
}
