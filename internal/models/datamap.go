package models

import (
	"fmt"
	"time"
)

// JobDataMap is a string-keyed attribute map carried by jobs and triggers
// and handed to executing jobs. Values should be JSON-representable when the
// map is persisted or published.
type JobDataMap map[string]interface{}

// NewJobDataMap returns an empty data map.
func NewJobDataMap() JobDataMap { return JobDataMap{} }

// Clone returns a shallow copy of the map. Callers that mutate nested values
// must deep-copy those themselves.
func (m JobDataMap) Clone() JobDataMap {
	if m == nil {
		return nil
	}
	out := make(JobDataMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge returns a copy of m with entries from other layered on top.
func (m JobDataMap) Merge(other JobDataMap) JobDataMap {
	out := m.Clone()
	if out == nil {
		out = NewJobDataMap()
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Put sets a key, allocating the map when needed, and returns it.
func (m JobDataMap) Put(key string, value interface{}) JobDataMap {
	if m == nil {
		m = NewJobDataMap()
	}
	m[key] = value
	return m
}

// GetString returns the string stored under key, or "" when absent or of
// another type.
func (m JobDataMap) GetString(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetInt returns the int stored under key. Numeric JSON values decoded as
// float64 are converted.
func (m JobDataMap) GetInt(key string) (int, error) {
	switch v := m[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("data map key %q is not an int (got %T)", key, m[key])
	}
}

// GetInt64 returns the int64 stored under key.
func (m JobDataMap) GetInt64(key string) (int64, error) {
	switch v := m[key].(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("data map key %q is not an int64 (got %T)", key, m[key])
	}
}

// GetFloat returns the float64 stored under key.
func (m JobDataMap) GetFloat(key string) (float64, error) {
	switch v := m[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("data map key %q is not a float (got %T)", key, m[key])
	}
}

// GetBool returns the bool stored under key, or false when absent.
func (m JobDataMap) GetBool(key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// GetTime returns the time stored under key, accepting time.Time values or
// RFC3339 strings.
func (m JobDataMap) GetTime(key string) (time.Time, error) {
	switch v := m[key].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("data map key %q: %w", key, err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("data map key %q is not a time (got %T)", key, m[key])
	}
}
