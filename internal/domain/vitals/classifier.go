package vitals

// Status is the clinical label assigned to a banded measurement.
type Status string

const (
	StatusNormal   Status = "normal"
	StatusLow      Status = "low"
	StatusHigh     Status = "high"
	StatusCritical Status = "critical"
)

func (s Status) severity() int {
	switch s {
	case StatusCritical:
		return 3
	case StatusHigh:
		return 2
	case StatusLow:
		return 1
	}
	return 0
}

// worst returns the more severe of a and b.
func worst(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// cut is one edge of a band. The zero cut never matches.
type cut struct {
	limit     float64
	inclusive bool
	set       bool
}

// under matches values strictly below x.
func under(x float64) cut { return cut{limit: x, set: true} }

// over matches values strictly above x.
func over(x float64) cut { return cut{limit: x, set: true} }

// atLeast matches values greater than or equal to x.
func atLeast(x float64) cut { return cut{limit: x, inclusive: true, set: true} }

func (c cut) below(v float64) bool {
	if !c.set {
		return false
	}
	if c.inclusive {
		return v <= c.limit
	}
	return v < c.limit
}

func (c cut) above(v float64) bool {
	if !c.set {
		return false
	}
	if c.inclusive {
		return v >= c.limit
	}
	return v > c.limit
}

// band holds the thresholds of one metric.
type band struct {
	criticalLow  cut
	low          cut
	high         cut
	criticalHigh cut
}

func (b band) classify(v float64) Status {
	switch {
	case b.criticalLow.below(v) || b.criticalHigh.above(v):
		return StatusCritical
	case b.low.below(v):
		return StatusLow
	case b.high.above(v):
		return StatusHigh
	}
	return StatusNormal
}

var (
	heartRateBand   = band{criticalLow: under(50), low: under(60), high: over(100), criticalHigh: over(120)}
	temperatureBand = band{criticalLow: under(95), low: under(97), high: over(99), criticalHigh: over(103)}
	oxygenBand      = band{criticalLow: under(90), low: under(95)}
	systolicBand    = band{criticalLow: under(70), low: under(90), high: atLeast(140), criticalHigh: atLeast(180)}
	diastolicBand   = band{criticalLow: under(50), low: under(60), high: atLeast(90), criticalHigh: atLeast(120)}
)

// Measurements are the raw values to classify. A nil field is absent.
type Measurements struct {
	HeartRate   *float64
	Systolic    *float64
	Diastolic   *float64
	Temperature *float64
	OxygenLevel *float64
}

// Result holds one status per present metric; absent metrics are "".
type Result struct {
	HeartRate     Status
	BloodPressure Status
	Temperature   Status
	OxygenLevel   Status
	IsCritical    bool
}

// Statuses returns the present metrics keyed by name.
func (r Result) Statuses() map[string]Status {
	out := make(map[string]Status, 4)
	for name, s := range map[string]Status{
		"heartRate":     r.HeartRate,
		"bloodPressure": r.BloodPressure,
		"temperature":   r.Temperature,
		"oxygenLevel":   r.OxygenLevel,
	} {
		if s != "" {
			out[name] = s
		}
	}
	return out
}

// Classify labels every present measurement. Blood pressure is classified
// only when both components are present, as the worse of the two.
func Classify(m Measurements) Result {
	var r Result
	if m.HeartRate != nil {
		r.HeartRate = heartRateBand.classify(*m.HeartRate)
	}
	if m.Systolic != nil && m.Diastolic != nil {
		r.BloodPressure = worst(systolicBand.classify(*m.Systolic), diastolicBand.classify(*m.Diastolic))
	}
	if m.Temperature != nil {
		r.Temperature = temperatureBand.classify(*m.Temperature)
	}
	if m.OxygenLevel != nil {
		r.OxygenLevel = oxygenBand.classify(*m.OxygenLevel)
	}
	r.IsCritical = r.HeartRate == StatusCritical ||
		r.BloodPressure == StatusCritical ||
		r.Temperature == StatusCritical ||
		r.OxygenLevel == StatusCritical
	return r
}
