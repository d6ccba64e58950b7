package types

import (
	"encoding/json"
	"math"
	"time"
)

// Field is a canonical column name
type Field string

const (
	FieldAgent           Field = "agent"
	FieldCallCount       Field = "call_count"
	FieldHandleTime      Field = "avg_handle_time"    // TMA, minutes
	FieldWaitTime        Field = "avg_wait_time"      // TME, minutes
	FieldPreCallTime     Field = "avg_pre_call_time"  // TMIA, minutes
	FieldPostCallTime    Field = "avg_post_call_time" // TMIC, minutes
	FieldFCR             Field = "first_contact_resolution"
	FieldSatisfaction    Field = "satisfaction"
	FieldNPS             Field = "nps"
	FieldEvaluationCount Field = "evaluation_count"

	// Evaluation detail columns
	FieldProtocol  Field = "protocol"
	FieldNote      Field = "note"
	FieldSourceDay Field = "source_day"
	FieldComment   Field = "comment"
)

// DurationFields are parsed from HH:MM:SS or MM:SS strings into minutes
var DurationFields = []Field{FieldHandleTime, FieldWaitTime, FieldPreCallTime, FieldPostCallTime}

// RatioFields are parsed as percentage-like numbers
var RatioFields = []Field{FieldFCR, FieldSatisfaction, FieldNPS}

// CountFields are non-negative integers
var CountFields = []Field{FieldCallCount, FieldEvaluationCount}

// ExpectedKPIFields are the metric columns a monthly export is expected to carry
var ExpectedKPIFields = []Field{
	FieldAgent,
	FieldCallCount,
	FieldHandleTime,
	FieldWaitTime,
	FieldPreCallTime,
	FieldPostCallTime,
	FieldFCR,
	FieldSatisfaction,
	FieldNPS,
	FieldEvaluationCount,
}

// IsMetric reports whether the field carries a numeric measure
func (f Field) IsMetric() bool {
	switch f {
	case FieldCallCount, FieldHandleTime, FieldWaitTime, FieldPreCallTime, FieldPostCallTime,
		FieldFCR, FieldSatisfaction, FieldNPS, FieldEvaluationCount:
		return true
	}
	return false
}

// Measure is a numeric cell that may be missing.
// A missing measure is excluded from sums and means.
type Measure struct {
	Value float64
	Valid bool
}

// Missing is the sentinel for an absent or unparseable value
var Missing = Measure{}

// Some wraps a finite value; non-finite input yields Missing
func Some(v float64) Measure {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	return Measure{Value: v, Valid: true}
}

// MarshalJSON encodes a missing measure as null
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON accepts a number or null
func (m *Measure) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Missing
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Some(v)
	return nil
}

// MonthRef identifies the calendar month a row came from
type MonthRef struct {
	Index int    `json:"month_index"` // 0-11, calendar order
	Label string `json:"month_label"`
}

// DayRef identifies the day file a row came from
type DayRef struct {
	Index int        `json:"day_index"` // day of month
	Label string     `json:"day_label"` // "01/10"
	Date  *time.Time `json:"calendar_date,omitempty"`
}

// Row is one agent-metric observation after normalization
type Row struct {
	Agent string `json:"agent"`

	CallCount       Measure `json:"call_count"`
	AvgHandleTime   Measure `json:"avg_handle_time"`
	AvgWaitTime     Measure `json:"avg_wait_time"`
	AvgPreCallTime  Measure `json:"avg_pre_call_time"`
	AvgPostCallTime Measure `json:"avg_post_call_time"`
	FCR             Measure `json:"first_contact_resolution"`
	Satisfaction    Measure `json:"satisfaction"`
	NPS             Measure `json:"nps"`
	EvaluationCount Measure `json:"evaluation_count"`

	Protocol  string `json:"protocol,omitempty"`
	Note      string `json:"note,omitempty"`
	SourceDay string `json:"source_day,omitempty"`
	Comment   string `json:"comment,omitempty"`

	Month *MonthRef `json:"month,omitempty"`
	Day   *DayRef   `json:"day,omitempty"`

	// Extra holds unmapped columns under their cleaned header name
	Extra map[string]string `json:"extra,omitempty"`
}

// Metric returns the measure stored for a metric field
func (r Row) Metric(f Field) Measure {
	switch f {
	case FieldCallCount:
		return r.CallCount
	case FieldHandleTime:
		return r.AvgHandleTime
	case FieldWaitTime:
		return r.AvgWaitTime
	case FieldPreCallTime:
		return r.AvgPreCallTime
	case FieldPostCallTime:
		return r.AvgPostCallTime
	case FieldFCR:
		return r.FCR
	case FieldSatisfaction:
		return r.Satisfaction
	case FieldNPS:
		return r.NPS
	case FieldEvaluationCount:
		return r.EvaluationCount
	}
	return Missing
}

// SetMetric stores a measure for a metric field. Unknown fields are ignored.
func (r *Row) SetMetric(f Field, m Measure) {
	switch f {
	case FieldCallCount:
		r.CallCount = m
	case FieldHandleTime:
		r.AvgHandleTime = m
	case FieldWaitTime:
		r.AvgWaitTime = m
	case FieldPreCallTime:
		r.AvgPreCallTime = m
	case FieldPostCallTime:
		r.AvgPostCallTime = m
	case FieldFCR:
		r.FCR = m
	case FieldSatisfaction:
		r.Satisfaction = m
	case FieldNPS:
		r.NPS = m
	case FieldEvaluationCount:
		r.EvaluationCount = m
	}
}
