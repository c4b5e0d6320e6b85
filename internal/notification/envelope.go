package notification

import (
	"encoding/json"
	"fmt"
	"time"
)

// Measurement is the decoded body of a measurement notification. Known
// envelope fields are lifted out; everything else stays in Fragments so
// sinks can walk the dynamic value structure.
type Measurement struct {
	ID        string
	Type      string
	Time      time.Time
	SourceID  string
	Fragments map[string]json.RawMessage
}

// SeriesValue is one numeric reading inside a measurement fragment.
type SeriesValue struct {
	Fragment string
	Series   string
	Value    float64
	Unit     string
}

type measurementEnvelope struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Source struct {
		ID string `json:"id"`
	} `json:"source"`
}

var envelopeFields = map[string]struct{}{
	"id": {}, "type": {}, "time": {}, "source": {}, "self": {},
}

// DecodeMeasurement parses a measurement notification body.
func DecodeMeasurement(body string) (Measurement, error) {
	var env measurementEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Measurement{}, fmt.Errorf("notification: decode measurement: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Measurement{}, fmt.Errorf("notification: decode measurement: %w", err)
	}
	m := Measurement{
		ID:        env.ID,
		Type:      env.Type,
		Time:      env.Time,
		SourceID:  env.Source.ID,
		Fragments: make(map[string]json.RawMessage),
	}
	for k, v := range raw {
		if _, known := envelopeFields[k]; known {
			continue
		}
		m.Fragments[k] = v
	}
	return m, nil
}

// Values flattens the measurement's fragments into numeric series
// readings. Non-numeric fragments are skipped.
func (m Measurement) Values() []SeriesValue {
	var out []SeriesValue
	for fragment, raw := range m.Fragments {
		var series map[string]struct {
			Value *float64 `json:"value"`
			Unit  string   `json:"unit"`
		}
		if err := json.Unmarshal(raw, &series); err != nil {
			continue
		}
		for name, v := range series {
			if v.Value == nil {
				continue
			}
			out = append(out, SeriesValue{
				Fragment: fragment,
				Series:   name,
				Value:    *v.Value,
				Unit:     v.Unit,
			})
		}
	}
	return out
}
