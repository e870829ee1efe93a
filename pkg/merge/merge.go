// Package merge implements the three-way merge engine (C4): given a
// common ancestor, a source, and a target state for a set of resources,
// it computes a merged state plus any conflicts that need a caller's
// resolution.
//
// Grounded on original_source's core/branch three-way-merge semantics
// (the presence-matrix dispatch and by-name properties merge come from
// there) expressed in the teacher's discriminated-union, struct-tagged
// style rather than a class hierarchy.
package merge

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Document is the generic shape a resource takes for merge purposes:
// arbitrary JSON fields decoded into a map. Audit fields are ignored by
// equality but preserved verbatim in whichever side "wins".
type Document map[string]interface{}

var auditFields = map[string]bool{
	"createdAt":   true,
	"createdBy":   true,
	"modifiedAt":  true,
	"modifiedBy":  true,
	"versionHash": true,
}

// ConflictKind discriminates the shape of an unresolved resource-level
// conflict.
type ConflictKind string

const (
	ConflictAddAdd       ConflictKind = "ADD_ADD"
	ConflictModifyModify ConflictKind = "MODIFY_MODIFY"
	ConflictDeleteModify ConflictKind = "DELETE_MODIFY"
	ConflictModifyDelete ConflictKind = "MODIFY_DELETE"
)

// FieldConflict is one unresolved field inside a MODIFY_MODIFY resource
// conflict.
type FieldConflict struct {
	Field  string      `json:"field"`
	Base   interface{} `json:"base"`
	Source interface{} `json:"source"`
	Target interface{} `json:"target"`
}

// ResourceConflict is one resource id that could not be merged
// automatically.
type ResourceConflict struct {
	ResourceID     string          `json:"resourceId"`
	Kind           ConflictKind    `json:"kind"`
	FieldConflicts []FieldConflict `json:"fieldConflicts,omitempty"`
}

// Stats summarizes how a merge's resources were resolved.
type Stats struct {
	TotalResources int `json:"totalResources"`
	TakenFromBase  int `json:"takenFromBase"`
	TakenFromSource int `json:"takenFromSource"`
	TakenFromTarget int `json:"takenFromTarget"`
	FieldMerged    int `json:"fieldMerged"`
	Conflicted     int `json:"conflicted"`
}

// Result is the output of Merge.
type Result struct {
	Merged    map[string]Document `json:"merged"`
	Conflicts []ResourceConflict  `json:"conflicts"`
	Stats     Stats               `json:"stats"`
}

// HasConflicts reports whether any resource needs caller resolution.
func (r *Result) HasConflicts() bool { return len(r.Conflicts) > 0 }

// ResourceChanges is one resource type's set of conflict-free upserts
// and deletions, staged for a merge landing that spans every resource
// type a three-way merge touched. A merge produces one ResourceChanges
// per resource type that actually changed, all of which land as a
// single commit on the target branch.
type ResourceChanges struct {
	Merged    map[string]Document
	Deletions []string
}

// Merge computes the three-way merge of base/source/target, each a map
// from resource id to its document (a missing key meaning absent/deleted).
// resolutions, if non-nil, supplies caller-chosen documents for
// resource ids that would otherwise conflict; a resolution satisfies a
// conflict unconditionally (the caller is trusted to have resolved it
// correctly).
func Merge(base, source, target map[string]Document, resolutions map[string]Document) *Result {
	ids := unionKeys(base, source, target)
	result := &Result{Merged: make(map[string]Document, len(ids))}

	for _, id := range ids {
		b, hasBase := base[id]
		s, hasSource := source[id]
		t, hasTarget := target[id]

		if resolved, ok := resolutions[id]; ok {
			result.Merged[id] = resolved
			result.Stats.TotalResources++
			continue
		}

		merged, conflict := mergeResource(id, b, hasBase, s, hasSource, t, hasTarget)
		result.Stats.TotalResources++
		if conflict != nil {
			result.Conflicts = append(result.Conflicts, *conflict)
			result.Stats.Conflicted++
			continue
		}
		if merged != nil {
			result.Merged[id] = merged
		}
	}

	sort.Slice(result.Conflicts, func(i, j int) bool {
		return result.Conflicts[i].ResourceID < result.Conflicts[j].ResourceID
	})
	return result
}

func mergeResource(id string, b Document, hasBase bool, s Document, hasSource bool, t Document, hasTarget bool) (Document, *ResourceConflict) {
	sourceChanged := !hasBase || !docEqual(b, s)
	targetChanged := !hasBase || !docEqual(b, t)
	if hasBase && !hasSource && !hasTarget {
		return nil, nil // both deleted, accept
	}

	switch {
	case !hasBase && hasSource && !hasTarget:
		return s, nil
	case !hasBase && !hasSource && hasTarget:
		return t, nil
	case !hasBase && hasSource && hasTarget:
		if docEqual(s, t) {
			return s, nil
		}
		return nil, &ResourceConflict{ResourceID: id, Kind: ConflictAddAdd}

	case hasBase && !hasSource && hasTarget:
		if !targetChanged {
			return nil, nil // accept deletion
		}
		return nil, &ResourceConflict{ResourceID: id, Kind: ConflictDeleteModify}

	case hasBase && hasSource && !hasTarget:
		if !sourceChanged {
			return nil, nil // accept deletion
		}
		return nil, &ResourceConflict{ResourceID: id, Kind: ConflictModifyDelete}

	case hasBase && hasSource && hasTarget:
		if !sourceChanged && !targetChanged {
			return b, nil
		}
		if sourceChanged && !targetChanged {
			return s, nil
		}
		if !sourceChanged && targetChanged {
			return t, nil
		}
		if docEqual(s, t) {
			return s, nil
		}
		return mergeFields(id, b, s, t)
	}

	return nil, nil
}

// mergeFields applies the same presence-matrix logic per non-system
// field when both sides changed the resource differently. The
// "properties" field, when it's a []interface{} of maps carrying a
// "name" key, gets by-name sub-resource merge instead of whole-value
// comparison.
func mergeFields(id string, base, source, target Document) (Document, *ResourceConflict) {
	merged := make(Document)
	var fieldConflicts []FieldConflict

	fields := unionFieldKeys(base, source, target)
	for _, field := range fields {
		if auditFields[field] || len(field) > 0 && field[0] == '@' {
			continue
		}

		bv, hasB := base[field]
		sv, hasS := source[field]
		tv, hasT := target[field]

		if field == "properties" {
			mv, conflicts := mergeNamedList(bv, sv, tv)
			if len(conflicts) > 0 {
				fieldConflicts = append(fieldConflicts, conflicts...)
				continue
			}
			merged[field] = mv
			continue
		}

		sChanged := !hasB || !valueEqual(bv, sv)
		tChanged := !hasB || !valueEqual(bv, tv)

		switch {
		case !sChanged && !tChanged:
			merged[field] = bv
		case sChanged && !tChanged:
			if hasS {
				merged[field] = sv
			}
		case !sChanged && tChanged:
			if hasT {
				merged[field] = tv
			}
		default:
			if valueEqual(sv, tv) {
				if hasS {
					merged[field] = sv
				}
				continue
			}
			fieldConflicts = append(fieldConflicts, FieldConflict{Field: field, Base: bv, Source: sv, Target: tv})
		}
	}

	for k, v := range base {
		if auditFields[k] {
			merged[k] = v
		}
	}

	if len(fieldConflicts) > 0 {
		return nil, &ResourceConflict{ResourceID: id, Kind: ConflictModifyModify, FieldConflicts: fieldConflicts}
	}
	return merged, nil
}

// mergeNamedList merges a "properties"-shaped array by the "name" key.
// Per the design decision recorded for this merge, an unresolved
// per-item divergence always raises a conflict — there is no
// source-wins fallback for this field.
func mergeNamedList(base, source, target interface{}) ([]interface{}, []FieldConflict) {
	baseByName := indexByName(base)
	sourceByName := indexByName(source)
	targetByName := indexByName(target)

	names := make(map[string]bool)
	for n := range baseByName {
		names[n] = true
	}
	for n := range sourceByName {
		names[n] = true
	}
	for n := range targetByName {
		names[n] = true
	}

	var sortedNames []string
	for n := range names {
		sortedNames = append(sortedNames, n)
	}
	sort.Strings(sortedNames)

	var merged []interface{}
	var conflicts []FieldConflict

	for _, name := range sortedNames {
		b, hasB := baseByName[name]
		s, hasS := sourceByName[name]
		t, hasT := targetByName[name]

		item, conflict := mergeResource(name, Document(toMap(b)), hasB, Document(toMap(s)), hasS, Document(toMap(t)), hasT)
		if conflict != nil {
			conflicts = append(conflicts, FieldConflict{Field: "properties." + name, Base: b, Source: s, Target: t})
			continue
		}
		if item != nil {
			merged = append(merged, map[string]interface{}(item))
		}
	}

	return merged, conflicts
}

func indexByName(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name != "" {
			out[name] = m
		}
	}
	return out
}

func toMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func unionKeys(maps ...map[string]Document) []string {
	seen := make(map[string]bool)
	for _, m := range maps {
		for k := range m {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionFieldKeys(docs ...Document) []string {
	seen := make(map[string]bool)
	for _, d := range docs {
		for k := range d {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// docEqual compares two documents ignoring audit fields and system
// (@-prefixed) keys.
func docEqual(a, b Document) bool {
	return valueEqual(stripSystem(a), stripSystem(b))
}

func stripSystem(d Document) Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		if auditFields[k] || (len(k) > 0 && k[0] == '@') {
			continue
		}
		out[k] = v
	}
	return out
}

// valueEqual compares two arbitrary decoded-JSON values structurally,
// normalizing through a JSON round trip so that e.g. float64(1) and
// json.Number("1") compare equal regardless of decode path.
func valueEqual(a, b interface{}) bool {
	an, aErr := normalize(a)
	bn, bErr := normalize(b)
	if aErr != nil || bErr != nil {
		return reflect.DeepEqual(a, b)
	}
	return reflect.DeepEqual(an, bn)
}

func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
