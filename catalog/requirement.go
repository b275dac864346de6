package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Requirement is a closed set of activity predicates. The only implementations are
// HasEventOfType and HasEventWithMetadata.
type Requirement interface {
	requirement()
	// Describe renders the requirement for progress displays.
	Describe() string
}

// HasEventOfType is satisfied by at least MinCount events of ActivityType.
type HasEventOfType struct {
	ActivityType string
	MinCount     int
}

// HasEventWithMetadata is satisfied by at least MinCount events of ActivityType whose
// metadata contains every key in Metadata with the same (stringified) value.
type HasEventWithMetadata struct {
	ActivityType string
	Metadata     map[string]string
	MinCount     int
}

func (HasEventOfType) requirement()       {}
func (HasEventWithMetadata) requirement() {}

func (r HasEventOfType) Describe() string {
	if r.MinCount > 1 {
		return fmt.Sprintf("%s x%d", r.ActivityType, r.MinCount)
	}
	return r.ActivityType
}

func (r HasEventWithMetadata) Describe() string {
	keys := make([]string, 0, len(r.Metadata))
	for k := range r.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r.Metadata[k])
	}
	desc := r.ActivityType + "[" + strings.Join(parts, ",") + "]"
	if r.MinCount > 1 {
		desc += fmt.Sprintf(" x%d", r.MinCount)
	}
	return desc
}

// Threshold returns how many matching events the requirement needs.
func Threshold(r Requirement) int {
	var n int
	switch req := r.(type) {
	case HasEventOfType:
		n = req.MinCount
	case HasEventWithMetadata:
		n = req.MinCount
	}
	if n < 1 {
		return 1
	}
	return n
}

func validateRequirement(r Requirement) error {
	switch req := r.(type) {
	case HasEventOfType:
		if req.ActivityType == "" {
			return errors.New("has_event_of_type: empty activity_type")
		}
	case HasEventWithMetadata:
		if req.ActivityType == "" {
			return errors.New("has_event_with_metadata: empty activity_type")
		}
		if len(req.Metadata) == 0 {
			return errors.New("has_event_with_metadata: no metadata constraints")
		}
	case nil:
		return errors.New("nil requirement")
	default:
		return fmt.Errorf("unsupported requirement %T", r)
	}
	if Threshold(r) > 1000 {
		return errors.New("min_count above 1000")
	}
	return nil
}
