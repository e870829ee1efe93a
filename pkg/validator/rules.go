package validator

import (
	"context"
	"fmt"
)

// typeCompatibility documents which data_type_id transitions are
// considered safe widenings (WARNING only) versus unsafe (breaking).
// Keyed "from" -> set of compatible "to" values.
var typeCompatibility = map[string]map[string]bool{
	"int":    {"long": true, "double": true},
	"long":   {"double": true},
	"float":  {"double": true},
	"string": {"text": true},
}

func isCompatibleWidening(from, to string) bool {
	if from == to {
		return true
	}
	return typeCompatibility[from] != nil && typeCompatibility[from][to]
}

// DefaultRules returns the ADR-004 rule set, the authoritative default
// validation pipeline (see the design decision recorded for this
// question — the "legacy" rule set from the same ADR is never the
// default).
func DefaultRules() []Rule {
	return []Rule{
		&PrimaryKeyChangeRule{},
		&RequiredFieldRemovalRule{},
		&TypeIncompatibilityRule{},
		&TypeCompatibilityRule{},
		&SharedPropertyChangeRule{},
	}
}

func stringField(doc map[string]interface{}, field string) string {
	if doc == nil {
		return ""
	}
	s, _ := doc[field].(string)
	return s
}

func boolField(doc map[string]interface{}, field string) bool {
	if doc == nil {
		return false
	}
	b, _ := doc[field].(bool)
	return b
}

func primaryKeyProperty(doc map[string]interface{}) (name, dataType string, found bool) {
	if doc == nil {
		return "", "", false
	}
	props, _ := doc["properties"].([]interface{})
	for _, p := range props {
		m, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if boolField(m, "isPrimary") {
			return stringField(m, "name"), stringField(m, "dataTypeId"), true
		}
	}
	return "", "", false
}

// PrimaryKeyChangeRule flags a changed primary-key property name or
// type as CRITICAL.
type PrimaryKeyChangeRule struct{}

func (r *PrimaryKeyChangeRule) Name() string { return "PrimaryKeyChange" }

func (r *PrimaryKeyChangeRule) Evaluate(ctx context.Context, diffs []Diff) ([]BreakingChange, []Warning, error) {
	var breaking []BreakingChange
	for _, d := range diffs {
		if d.EntityType != "object_type" || d.Before == nil || d.After == nil {
			continue
		}
		beforeName, beforeType, beforeFound := primaryKeyProperty(d.Before)
		afterName, afterType, afterFound := primaryKeyProperty(d.After)
		if !beforeFound || !afterFound {
			continue
		}
		if beforeName != afterName || beforeType != afterType {
			breaking = append(breaking, BreakingChange{
				Rule:       r.Name(),
				Severity:   SeverityCritical,
				EntityType: d.EntityType,
				EntityID:   stringField(d.After, "name"),
				Field:      "properties",
				Message:    fmt.Sprintf("primary key changed from %s:%s to %s:%s", beforeName, beforeType, afterName, afterType),
			})
		}
	}
	return breaking, nil, nil
}

// RequiredFieldRemovalRule flags a required Property removed from an
// ObjectType as HIGH.
type RequiredFieldRemovalRule struct{}

func (r *RequiredFieldRemovalRule) Name() string { return "RequiredFieldRemoval" }

func (r *RequiredFieldRemovalRule) Evaluate(ctx context.Context, diffs []Diff) ([]BreakingChange, []Warning, error) {
	var breaking []BreakingChange
	for _, d := range diffs {
		if d.EntityType != "object_type" || d.Before == nil {
			continue
		}
		beforeProps := propsByName(d.Before)
		afterProps := propsByName(d.After)
		for name, p := range beforeProps {
			if !boolField(p, "required") {
				continue
			}
			if _, stillPresent := afterProps[name]; !stillPresent {
				breaking = append(breaking, BreakingChange{
					Rule:       r.Name(),
					Severity:   SeverityHigh,
					EntityType: d.EntityType,
					EntityID:   stringField(d.Before, "name"),
					Field:      name,
					Message:    fmt.Sprintf("required property %q removed", name),
				})
			}
		}
	}
	return breaking, nil, nil
}

func propsByName(doc map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{})
	if doc == nil {
		return out
	}
	props, _ := doc["properties"].([]interface{})
	for _, p := range props {
		m, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if name := stringField(m, "name"); name != "" {
			out[name] = m
		}
	}
	return out
}

// TypeIncompatibilityRule flags a Property's data_type_id changing to
// something outside the documented compatibility matrix as HIGH (or
// CRITICAL if it was the primary key, handled separately above).
type TypeIncompatibilityRule struct{}

func (r *TypeIncompatibilityRule) Name() string { return "TypeIncompatibility" }

func (r *TypeIncompatibilityRule) Evaluate(ctx context.Context, diffs []Diff) ([]BreakingChange, []Warning, error) {
	var breaking []BreakingChange
	for _, d := range diffs {
		if d.EntityType != "property" || d.Before == nil || d.After == nil {
			continue
		}
		from := stringField(d.Before, "dataTypeId")
		to := stringField(d.After, "dataTypeId")
		if from == to || isCompatibleWidening(from, to) {
			continue
		}
		breaking = append(breaking, BreakingChange{
			Rule:       r.Name(),
			Severity:   SeverityHigh,
			EntityType: d.EntityType,
			EntityID:   stringField(d.After, "name"),
			Field:      "dataTypeId",
			Message:    fmt.Sprintf("incompatible type change %s -> %s", from, to),
		})
	}
	return breaking, nil, nil
}

// TypeCompatibilityRule is the soft counterpart to
// TypeIncompatibilityRule: a documented widening change is a WARNING,
// never a breaking change.
type TypeCompatibilityRule struct{}

func (r *TypeCompatibilityRule) Name() string { return "TypeCompatibility" }

func (r *TypeCompatibilityRule) Evaluate(ctx context.Context, diffs []Diff) ([]BreakingChange, []Warning, error) {
	var warnings []Warning
	for _, d := range diffs {
		if d.EntityType != "property" || d.Before == nil || d.After == nil {
			continue
		}
		from := stringField(d.Before, "dataTypeId")
		to := stringField(d.After, "dataTypeId")
		if from != to && isCompatibleWidening(from, to) {
			warnings = append(warnings, Warning{
				Rule:       r.Name(),
				EntityType: d.EntityType,
				EntityID:   stringField(d.After, "name"),
				Message:    fmt.Sprintf("type widened %s -> %s", from, to),
			})
		}
	}
	return nil, warnings, nil
}

// SharedPropertyChangeRule flags a SharedProperty's type changing while
// still referenced as HIGH. Reference tracking itself (who references
// it) is a schema-service concern; this rule trusts the diff's
// EntityType to already be scoped to referenced shared properties.
type SharedPropertyChangeRule struct{}

func (r *SharedPropertyChangeRule) Name() string { return "SharedPropertyChange" }

func (r *SharedPropertyChangeRule) Evaluate(ctx context.Context, diffs []Diff) ([]BreakingChange, []Warning, error) {
	var breaking []BreakingChange
	for _, d := range diffs {
		if d.EntityType != "shared_property" || d.Before == nil || d.After == nil {
			continue
		}
		from := stringField(d.Before, "dataTypeId")
		to := stringField(d.After, "dataTypeId")
		if from != to {
			breaking = append(breaking, BreakingChange{
				Rule:       r.Name(),
				Severity:   SeverityHigh,
				EntityType: d.EntityType,
				EntityID:   stringField(d.After, "name"),
				Field:      "dataTypeId",
				Message:    fmt.Sprintf("shared property type changed %s -> %s", from, to),
			})
		}
	}
	return breaking, nil, nil
}
