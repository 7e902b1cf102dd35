package model

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Severity is the ordered importance level attached to a test.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Rank needs value receiver
type Severity string

const (
	// SeverityCritical is the highest severity.
	SeverityCritical Severity = "Critical"
	// SeverityHigh ranks below Critical.
	SeverityHigh Severity = "High"
	// SeverityMedium ranks below High.
	SeverityMedium Severity = "Medium"
	// SeverityLow ranks below Medium.
	SeverityLow Severity = "Low"
	// SeverityInfo is the lowest severity and the default for untagged tests.
	SeverityInfo Severity = "Info"
)

// AllSeverities returns every severity from most to least severe.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	v := strings.TrimSpace(s)
	for _, sev := range AllSeverities() {
		if strings.EqualFold(v, string(sev)) {
			return sev, nil
		}
	}
	return "", fmt.Errorf("invalid severity: %q", s)
}

// ParseSeverities parses a list of severity names, dropping duplicates while keeping order.
func ParseSeverities(values []string) ([]Severity, error) {
	out := make([]Severity, 0, len(values))
	for _, v := range values {
		sev, err := ParseSeverity(v)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, sev) {
			out = append(out, sev)
		}
	}
	return out, nil
}

// Rank returns 0 for Info up to 4 for Critical, or -1 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	default:
		return -1
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// UnmarshalText implements encoding.TextUnmarshaler for Severity.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SeverityFilter is a set of severities used to narrow a result document.
// An empty filter and a filter naming every severity both mean "no filter".
type SeverityFilter struct {
	set map[Severity]struct{}
}

// NewSeverityFilter builds a filter from the given severities.
func NewSeverityFilter(severities []Severity) SeverityFilter {
	set := make(map[Severity]struct{}, len(severities))
	for _, s := range severities {
		if s.Valid() {
			set[s] = struct{}{}
		}
	}
	return SeverityFilter{set: set}
}

// Active reports whether the filter is a strict, non-empty subset of all severities.
func (f SeverityFilter) Active() bool {
	return len(f.set) > 0 && len(f.set) < len(AllSeverities())
}

// Allows reports whether a record with severity s survives the filter.
func (f SeverityFilter) Allows(s Severity) bool {
	if !f.Active() {
		return true
	}
	_, ok := f.set[s]
	return ok
}

// Severities returns the filter members ordered from most to least severe.
func (f SeverityFilter) Severities() []Severity {
	out := make([]Severity, 0, len(f.set))
	for _, s := range AllSeverities() {
		if _, ok := f.set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// MarshalJSON renders the filter as an ordered array of severity names.
func (f SeverityFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Severities())
}

// UnmarshalJSON parses an array of severity names.
func (f *SeverityFilter) UnmarshalJSON(data []byte) error {
	var raw []Severity
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = NewSeverityFilter(raw)
	return nil
}
