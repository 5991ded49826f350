package triage

// ArrivalMode is how the patient reached the department.
type ArrivalMode string

const (
	ArrivalAmbulance  ArrivalMode = "AMBULANCE"
	ArrivalWalkIn     ArrivalMode = "WALK_IN"
	ArrivalWheelchair ArrivalMode = "WHEELCHAIR"
	ArrivalOther      ArrivalMode = "OTHER"
)

type Airway string

const (
	AirwayClear               Airway = "CLEAR"
	AirwayPartiallyObstructed Airway = "PARTIALLY_OBSTRUCTED"
	AirwayFullyObstructed     Airway = "FULLY_OBSTRUCTED"
	AirwayArtificial          Airway = "ARTIFICIAL_AIRWAY"
)

type Breathing string

const (
	BreathingNormal   Breathing = "NORMAL"
	BreathingLabored  Breathing = "LABORED"
	BreathingShallow  Breathing = "SHALLOW"
	BreathingAbsent   Breathing = "ABSENT"
	BreathingAssisted Breathing = "ASSISTED"
)

type Circulation string

const (
	CirculationNormal    Circulation = "NORMAL"
	CirculationDecreased Circulation = "DECREASED"
	CirculationWeak      Circulation = "WEAK"
	CirculationAbsent    Circulation = "ABSENT"
)

type Disability string

const (
	DisabilityAlert           Disability = "ALERT"
	DisabilityVoiceResponsive Disability = "VOICE_RESPONSIVE"
	DisabilityPainResponsive  Disability = "PAIN_RESPONSIVE"
	DisabilityUnresponsive    Disability = "UNRESPONSIVE"
)

type Exposure string

const (
	ExposureNoTrauma    Exposure = "NO_TRAUMA"
	ExposureMinorTrauma Exposure = "MINOR_TRAUMA"
	ExposureMajorTrauma Exposure = "MAJOR_TRAUMA"
	ExposureBurns       Exposure = "BURNS"
	ExposureHypothermia Exposure = "HYPOTHERMIA"
)

// Axis is one of the five primary-survey axes, declared in tie-break priority
// order (airway first).
type Axis int

const (
	AxisAirway Axis = iota
	AxisBreathing
	AxisCirculation
	AxisDisability
	AxisExposure
)

var axisNames = [...]string{"Airway", "Breathing", "Circulation", "Disability", "Exposure"}

func (a Axis) String() string {
	if a < AxisAirway || a > AxisExposure {
		return "Unknown"
	}
	return axisNames[a]
}

// MarshalText renders the axis by name in JSON.
func (a Axis) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Status is the clinical status implied by a triage level.
type Status string

const (
	StatusCritical Status = "Critical"
	StatusStable   Status = "Stable"
)

// Vitals are the optional continuous measurements taken at triage.
type Vitals struct {
	SystolicBP   *int     `json:"systolic_bp,omitempty"`
	O2Saturation *int     `json:"o2_saturation,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	PainScale    *int     `json:"pain_scale,omitempty"`
}

// Observation is a single triage assessment. Every ABCDE field and the
// arrival mode are required.
type Observation struct {
	ArrivalMode       ArrivalMode `json:"arrival_mode"`
	Airway            Airway      `json:"airway"`
	Breathing         Breathing   `json:"breathing"`
	Circulation       Circulation `json:"circulation"`
	Disability        Disability  `json:"disability"`
	Exposure          Exposure    `json:"exposure"`
	ReportedComplaint string      `json:"reported_complaint,omitempty"`
	Vitals
}

// Classification is the classifier's output.
type Classification struct {
	Level            int    `json:"level"`
	Status           Status `json:"status"`
	AcuityScore      int    `json:"acuity_score"`
	WorstAxis        Axis   `json:"worst_axis"`
	WorstTier        int    `json:"worst_tier"`
	PrimaryComplaint string `json:"primary_complaint"`
}
