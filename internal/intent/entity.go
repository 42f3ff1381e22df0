package intent

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Entity names produced by the extractor.
const (
	EntityAppName    = "app_name"
	EntityRecipient  = "recipient"
	EntityMessage    = "message"
	EntityHour       = "hour"
	EntityMinute     = "minute"
	EntityDuration   = "duration"
	EntityTask       = "task"
	EntityTaskNumber = "task_number"
	EntityTaskID     = "task_id"
	EntityKind       = "kind"
	EntityQuery      = "query"
	EntityLevel      = "level"
	EntityDirection  = "direction"
	EntityText       = "text"
	EntityKey        = "key"
	EntityLocation   = "location"
	EntityRawQuery   = "raw_query"
)

// Kind is the type tag of a Value.
type Kind string

const (
	KindString    Kind = "string"
	KindInt       Kind = "int"
	KindDuration  Kind = "duration"
	KindTimeOfDay Kind = "time_of_day"
)

// TimeOfDay is a wall-clock time in 24-hour form.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Next returns the first instant at or after now with this wall-clock time.
func (t TimeOfDay) Next(now time.Time) time.Time {
	due := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if due.Before(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due
}

// Value is a typed entity value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Str   string
	Int   int
	Dur   time.Duration
	Clock TimeOfDay
}

func StringValue(s string) Value          { return Value{Kind: KindString, Str: s} }
func IntValue(n int) Value                { return Value{Kind: KindInt, Int: n} }
func DurationValue(d time.Duration) Value { return Value{Kind: KindDuration, Dur: d} }
func ClockValue(hour, minute int) Value {
	return Value{Kind: KindTimeOfDay, Clock: TimeOfDay{hour, minute}}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprint(v.Int)
	case KindDuration:
		return v.Dur.String()
	case KindTimeOfDay:
		return v.Clock.String()
	default:
		return v.Str
	}
}

type wireValue struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes as {"kind": ..., "value": ...}. Durations and times of
// day are written as strings ("1m30s", "07:30").
func (v Value) MarshalJSON() ([]byte, error) {
	var raw any
	switch v.Kind {
	case KindInt:
		raw = v.Int
	case KindDuration:
		raw = v.Dur.String()
	case KindTimeOfDay:
		raw = v.Clock.String()
	default:
		raw = v.Str
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: v.Kind, Value: data})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Value{Kind: w.Kind}
	switch w.Kind {
	case KindInt:
		if err := json.Unmarshal(w.Value, &out.Int); err != nil {
			return fmt.Errorf("int entity: %w", err)
		}
	case KindDuration:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("duration entity: %w", err)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("duration entity: %w", err)
		}
		out.Dur = d
	case KindTimeOfDay:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("time entity: %w", err)
		}
		if _, err := fmt.Sscanf(s, "%d:%d", &out.Clock.Hour, &out.Clock.Minute); err != nil {
			return fmt.Errorf("time entity %q: %w", s, err)
		}
	case KindString:
		if err := json.Unmarshal(w.Value, &out.Str); err != nil {
			return fmt.Errorf("string entity: %w", err)
		}
	default:
		return fmt.Errorf("unknown entity kind %q", w.Kind)
	}
	*v = out
	return nil
}

// EntitySet maps entity names to typed values. A nil set is empty.
type EntitySet map[string]Value

// Has reports whether key is present.
func (e EntitySet) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Str returns the string value of key.
func (e EntitySet) Str(key string) (string, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// Int returns the integer value of key.
func (e EntitySet) Int(key string) (int, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindInt {
		return 0, false
	}
	return v.Int, true
}

// Duration returns the duration value of key.
func (e EntitySet) Duration(key string) (time.Duration, bool) {
	v, ok := e[key]
	if !ok || v.Kind != KindDuration {
		return 0, false
	}
	return v.Dur, true
}

// Clock returns the hour/minute pair as a TimeOfDay when both are present.
func (e EntitySet) Clock() (TimeOfDay, bool) {
	h, okH := e.Int(EntityHour)
	m, okM := e.Int(EntityMinute)
	if !okH || !okM {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: h, Minute: m}, true
}

// Clone returns an independent copy. Cloning nil yields an empty set.
func (e EntitySet) Clone() EntitySet {
	out := make(EntitySet, len(e))
	maps.Copy(out, e)
	return out
}
