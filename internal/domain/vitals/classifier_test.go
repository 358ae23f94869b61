package vitals

import (
	"testing"

	"pgregory.net/rapid"
)

func fp(v float64) *float64 { return &v }

func TestClassify_HeartRate(t *testing.T) {
	tests := []struct {
		v    float64
		want Status
	}{
		{0, StatusCritical},
		{45, StatusCritical},
		{49.9, StatusCritical},
		{50, StatusLow},
		{59.9, StatusLow},
		{60, StatusNormal},
		{100, StatusNormal},
		{100.1, StatusHigh},
		{101, StatusHigh},
		{120, StatusHigh},
		{121, StatusCritical},
	}
	for _, tt := range tests {
		got := Classify(Measurements{HeartRate: fp(tt.v)})
		if got.HeartRate != tt.want {
			t.Errorf("heart rate %v: expected %s, got %s", tt.v, tt.want, got.HeartRate)
		}
		if got.IsCritical != (tt.want == StatusCritical) {
			t.Errorf("heart rate %v: isCritical=%v", tt.v, got.IsCritical)
		}
	}
}

func TestClassify_BloodPressure(t *testing.T) {
	tests := []struct {
		sys, dia float64
		want     Status
	}{
		{120, 80, StatusNormal},
		{90, 60, StatusNormal},
		{139, 89, StatusNormal},
		{140, 80, StatusHigh},
		{120, 90, StatusHigh},
		{179, 119, StatusHigh},
		{180, 80, StatusCritical},
		{120, 120, StatusCritical},
		{89, 70, StatusLow},
		{100, 59, StatusLow},
		{69, 70, StatusCritical},
		{100, 49, StatusCritical},
		{150, 45, StatusCritical},
		{150, 55, StatusHigh},
		{85, 95, StatusHigh},
	}
	for _, tt := range tests {
		got := Classify(Measurements{Systolic: fp(tt.sys), Diastolic: fp(tt.dia)})
		if got.BloodPressure != tt.want {
			t.Errorf("bp %v/%v: expected %s, got %s", tt.sys, tt.dia, tt.want, got.BloodPressure)
		}
	}
}

func TestClassify_BloodPressureNeedsBothComponents(t *testing.T) {
	got := Classify(Measurements{Systolic: fp(200)})
	if got.BloodPressure != "" || got.IsCritical {
		t.Errorf("half a pair was classified: %+v", got)
	}
}

func TestClassify_Temperature(t *testing.T) {
	tests := []struct {
		v    float64
		want Status
	}{
		{94.9, StatusCritical},
		{95, StatusLow},
		{96.9, StatusLow},
		{97, StatusNormal},
		{99, StatusNormal},
		{99.5, StatusHigh},
		{103, StatusHigh},
		{103.1, StatusCritical},
	}
	for _, tt := range tests {
		if got := Classify(Measurements{Temperature: fp(tt.v)}).Temperature; got != tt.want {
			t.Errorf("temperature %v: expected %s, got %s", tt.v, tt.want, got)
		}
	}
}

func TestClassify_Oxygen(t *testing.T) {
	tests := []struct {
		v    float64
		want Status
	}{
		{85, StatusCritical},
		{89.9, StatusCritical},
		{90, StatusLow},
		{92, StatusLow},
		{94.9, StatusLow},
		{95, StatusNormal},
		{100, StatusNormal},
	}
	for _, tt := range tests {
		got := Classify(Measurements{OxygenLevel: fp(tt.v)})
		if got.OxygenLevel != tt.want {
			t.Errorf("oxygen %v: expected %s, got %s", tt.v, tt.want, got.OxygenLevel)
		}
	}
	if r := Classify(Measurements{OxygenLevel: fp(92)}); r.IsCritical {
		t.Error("oxygen 92 must not be critical")
	}
}

func TestClassify_ZeroIsPresent(t *testing.T) {
	got := Classify(Measurements{HeartRate: fp(0)})
	if got.HeartRate != StatusCritical || !got.IsCritical {
		t.Errorf("heart rate 0 should classify as critical, got %+v", got)
	}
}

func TestApply_WeightHeightOnly(t *testing.T) {
	rec := &VitalRecord{
		Weight: &Quantity{Value: fp(70)},
		Height: &Quantity{Value: fp(170)},
	}
	res := Apply(rec)
	if rec.IsCritical {
		t.Error("weight/height must not be critical")
	}
	if rec.HeartRate != nil || rec.BloodPressure != nil || rec.Temperature != nil || rec.OxygenLevel != nil {
		t.Error("absent metrics gained fields")
	}
	if len(res.Statuses()) != 0 {
		t.Errorf("expected no statuses, got %v", res.Statuses())
	}
}

func TestApply_ScenarioHeartRate45(t *testing.T) {
	rec := &VitalRecord{HeartRate: &Reading{Value: fp(45)}}
	Apply(rec)
	if rec.HeartRate.Status != StatusCritical || !rec.IsCritical {
		t.Errorf("expected critical, got %s isCritical=%v", rec.HeartRate.Status, rec.IsCritical)
	}
}

func TestApply_ClearsStatusOfValuelessReading(t *testing.T) {
	rec := &VitalRecord{Temperature: &Reading{Status: StatusCritical}, IsCritical: true}
	Apply(rec)
	if rec.Temperature.Status != "" || rec.IsCritical {
		t.Errorf("stale status kept: %+v critical=%v", rec.Temperature, rec.IsCritical)
	}
}

func optional(t *rapid.T, name string, lo, hi float64) *float64 {
	if !rapid.Bool().Draw(t, name+"?") {
		return nil
	}
	v := rapid.Float64Range(lo, hi).Draw(t, name)
	return &v
}

func drawMeasurements(t *rapid.T) Measurements {
	return Measurements{
		HeartRate:   optional(t, "hr", 0, 250),
		Systolic:    optional(t, "sys", 0, 260),
		Diastolic:   optional(t, "dia", 0, 180),
		Temperature: optional(t, "temp", 85, 110),
		OxygenLevel: optional(t, "oxy", 0, 100),
	}
}

func TestProperty_HeartRateBands(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Float64Range(0, 300).Draw(t, "v")
		got := Classify(Measurements{HeartRate: &v}).HeartRate
		var want Status
		switch {
		case v < 50 || v > 120:
			want = StatusCritical
		case v < 60:
			want = StatusLow
		case v > 100:
			want = StatusHigh
		default:
			want = StatusNormal
		}
		if got != want {
			t.Fatalf("heart rate %v: expected %s, got %s", v, want, got)
		}
	})
}

func TestProperty_BloodPressureCriticalOverrides(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sys := rapid.Float64Range(0, 260).Draw(t, "sys")
		dia := rapid.Float64Range(0, 180).Draw(t, "dia")
		got := Classify(Measurements{Systolic: &sys, Diastolic: &dia}).BloodPressure
		if (sys >= 180 || dia >= 120) && got != StatusCritical {
			t.Fatalf("%v/%v: expected critical, got %s", sys, dia, got)
		}
	})
}

func TestProperty_IsCriticalIffAnyCritical(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := Classify(drawMeasurements(t))
		found := false
		for _, s := range r.Statuses() {
			if s == StatusCritical {
				found = true
			}
		}
		if r.IsCritical != found {
			t.Fatalf("isCritical=%v but statuses %v", r.IsCritical, r.Statuses())
		}
	})
}

func TestProperty_ApplyIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := drawMeasurements(t)
		rec := &VitalRecord{}
		if m.HeartRate != nil {
			rec.HeartRate = &Reading{Value: m.HeartRate}
		}
		if m.Systolic != nil || m.Diastolic != nil {
			rec.BloodPressure = &BloodPressure{Systolic: m.Systolic, Diastolic: m.Diastolic}
		}
		if m.Temperature != nil {
			rec.Temperature = &Reading{Value: m.Temperature}
		}
		if m.OxygenLevel != nil {
			rec.OxygenLevel = &Reading{Value: m.OxygenLevel}
		}
		first := Apply(rec)
		second := Apply(rec)
		if first != second {
			t.Fatalf("reclassification changed result: %+v -> %+v", first, second)
		}
	})
}
