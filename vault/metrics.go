package vault

import "fmt"

// MetricID identifies a tracked health metric.
type MetricID string

const (
	Weight           MetricID = "weight"
	BloodPressureSys MetricID = "bloodPressureSys"
	BloodPressureDia MetricID = "bloodPressureDia"
	Glucose          MetricID = "glucose"
	HeartRate        MetricID = "heartRate"
)

// Range is an inclusive interval of readings.
type Range struct {
	Min uint32
	Max uint32
}

// Contains reports whether x lies in r.
func (r Range) Contains(x uint32) bool {
	return r.Min <= x && x <= r.Max
}

// Metric describes a tracked health metric.
type Metric struct {
	ID          MetricID
	Name        string
	Unit        string
	NormalRange Range
}

// Catalog lists the metrics a vault tracks, in display order.
var Catalog = []Metric{
	{ID: Weight, Name: "Weight", Unit: "kg", NormalRange: Range{Min: 50, Max: 90}},
	{ID: BloodPressureSys, Name: "Blood Pressure (Systolic)", Unit: "mmHg", NormalRange: Range{Min: 90, Max: 120}},
	{ID: BloodPressureDia, Name: "Blood Pressure (Diastolic)", Unit: "mmHg", NormalRange: Range{Min: 60, Max: 80}},
	{ID: Glucose, Name: "Blood Glucose", Unit: "mg/dL", NormalRange: Range{Min: 70, Max: 140}},
	{ID: HeartRate, Name: "Heart Rate", Unit: "bpm", NormalRange: Range{Min: 60, Max: 100}},
}

// Lookup returns the catalog entry of id.
func Lookup(id MetricID) (Metric, error) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, nil
		}
	}
	return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, id)
}

// Status is the position of a reading relative to its normal range.
type Status int

const (
	Low Status = iota - 1
	Normal
	High
)

func (s Status) String() string {
	switch s {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
