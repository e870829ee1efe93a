// Entity definitions for the schema entities the ontology store
// versions: object types, properties, link types, interfaces, shared
// properties, action types, function types, and data types (§1, §4.2).
// Each is a plain Go struct serialized into ResourceVersion.ContentJSON
// — none of them are GORM models in their own right, since their
// persistence is entirely through the version chain, not a dedicated
// table per type.
package models

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	nameRule  = validation.Match(namePattern)
	colorRule = validation.Match(colorPattern)
)

// Entity is implemented by every schema entity type so pkg/repository
// can operate on them generically.
type Entity interface {
	// EntityName returns the document's unique name within its branch.
	EntityName() string
	// EntityTypeClass returns the entity type's wire name, e.g.
	// "object_type", used as the `type` component of ResourceVersion
	// keys and of published CloudEvent types.
	EntityTypeClass() string
	// Validate runs the entity's own field-level rules (§4.2). Rules
	// that require cross-entity reads (endpoint existence, cycles) are
	// applied by pkg/schema, not here.
	Validate() error
}

// PropertyRef is a lightweight reference to a Property owned by an
// ObjectType, carrying just enough to resolve the full Property via the
// repository.
type PropertyRef struct {
	Name       string `json:"name"`
	IsPrimary  bool   `json:"isPrimary"`
}

// ObjectType is the spec's top-level entity kind: a named, typed
// collection of properties.
type ObjectType struct {
	Name        string        `json:"name"`
	DisplayName string        `json:"displayName"`
	TypeClass   string        `json:"typeClass"` // "object"
	Color       string        `json:"color,omitempty"`
	Properties  []PropertyRef `json:"properties"`
	Status      string        `json:"status,omitempty"` // active | archived
}

func (o *ObjectType) EntityName() string      { return o.Name }
func (o *ObjectType) EntityTypeClass() string  { return "object_type" }

func (o *ObjectType) Validate() error {
	if err := validation.Validate(o.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	if o.Color != "" {
		if err := validation.Validate(o.Color, colorRule); err != nil {
			return &fieldErr{"color", err}
		}
	}
	primaries := 0
	for _, p := range o.Properties {
		if p.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return &fieldErr{"properties", errTooManyPrimaryKeys}
	}
	return nil
}

// PrimaryKeyProperty returns the name of the ObjectType's primary-key
// property, or "" if none is marked.
func (o *ObjectType) PrimaryKeyProperty() string {
	for _, p := range o.Properties {
		if p.IsPrimary {
			return p.Name
		}
	}
	return ""
}

// Property is a field definition, referenced by name from an
// ObjectType's Properties list.
type Property struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	DataTypeID  string `json:"dataTypeId"`
	Required    bool   `json:"required"`
}

func (p *Property) EntityName() string     { return p.Name }
func (p *Property) EntityTypeClass() string { return "property" }

func (p *Property) Validate() error {
	if err := validation.Validate(p.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	if err := validation.Validate(p.DataTypeID, validation.Required); err != nil {
		return &fieldErr{"dataTypeId", err}
	}
	return nil
}

// LinkType is a typed relationship between two ObjectTypes.
type LinkType struct {
	Name            string `json:"name"`
	FromObjectType  string `json:"fromObjectType"`
	ToObjectType    string `json:"toObjectType"`
	Cardinality     string `json:"cardinality"` // ONE_TO_ONE | ONE_TO_MANY | MANY_TO_MANY
}

func (l *LinkType) EntityName() string     { return l.Name }
func (l *LinkType) EntityTypeClass() string { return "link_type" }

func (l *LinkType) Validate() error {
	if err := validation.Validate(l.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	if err := validation.Validate(l.FromObjectType, validation.Required, nameRule); err != nil {
		return &fieldErr{"fromObjectType", err}
	}
	if err := validation.Validate(l.ToObjectType, validation.Required, nameRule); err != nil {
		return &fieldErr{"toObjectType", err}
	}
	return nil
}

// Interface declares a set of required properties that implementing
// ObjectTypes must carry, and may extend other Interfaces.
type Interface struct {
	Name       string   `json:"name"`
	Parents    []string `json:"parents,omitempty"`
	Properties []string `json:"properties"`
}

func (i *Interface) EntityName() string     { return i.Name }
func (i *Interface) EntityTypeClass() string { return "interface" }

func (i *Interface) Validate() error {
	return validation.Validate(i.Name, validation.Required, nameRule)
}

// SharedProperty is a Property definition reusable across ObjectTypes.
type SharedProperty struct {
	Name       string `json:"name"`
	DataTypeID string `json:"dataTypeId"`
}

func (s *SharedProperty) EntityName() string     { return s.Name }
func (s *SharedProperty) EntityTypeClass() string { return "shared_property" }

func (s *SharedProperty) Validate() error {
	if err := validation.Validate(s.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	return validation.Validate(s.DataTypeID, validation.Required)
}

// ActionType is an invocable operation that may reference other
// ActionTypes it depends on.
type ActionType struct {
	Name       string   `json:"name"`
	References []string `json:"references,omitempty"`
}

func (a *ActionType) EntityName() string     { return a.Name }
func (a *ActionType) EntityTypeClass() string { return "action_type" }

func (a *ActionType) Validate() error {
	if err := validation.Validate(a.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	for _, ref := range a.References {
		if ref == a.Name {
			return &fieldErr{"references", errSelfCycle}
		}
	}
	return nil
}

// FunctionParameter is one named, typed input to a FunctionType.
type FunctionParameter struct {
	Name       string `json:"name"`
	DataTypeID string `json:"dataTypeId"`
}

// FunctionType is a callable transform with a parameter list and a
// small bag of runtime configuration bounds.
type FunctionType struct {
	Name          string              `json:"name"`
	Parameters    []FunctionParameter `json:"parameters"`
	TimeoutMillis int                 `json:"timeoutMillis,omitempty"`
	MemoryMB      int                 `json:"memoryMb,omitempty"`
}

func (f *FunctionType) EntityName() string     { return f.Name }
func (f *FunctionType) EntityTypeClass() string { return "function_type" }

const (
	maxFunctionTimeoutMillis = 900000 // 15 minutes
	maxFunctionMemoryMB      = 10240
)

func (f *FunctionType) Validate() error {
	if err := validation.Validate(f.Name, validation.Required, nameRule); err != nil {
		return &fieldErr{"name", err}
	}
	seen := make(map[string]bool, len(f.Parameters))
	for _, p := range f.Parameters {
		if seen[p.Name] {
			return &fieldErr{"parameters", errDuplicateParam}
		}
		seen[p.Name] = true
	}
	if f.TimeoutMillis < 0 || f.TimeoutMillis > maxFunctionTimeoutMillis {
		return &fieldErr{"timeoutMillis", errOutOfBounds}
	}
	if f.MemoryMB < 0 || f.MemoryMB > maxFunctionMemoryMB {
		return &fieldErr{"memoryMb", errOutOfBounds}
	}
	return nil
}

// DataType is a primitive or composite type usable as a Property's or
// FunctionParameter's data_type_id.
type DataType struct {
	Name string `json:"name"`
	Kind string `json:"kind"` // primitive | struct | array
}

func (d *DataType) EntityName() string     { return d.Name }
func (d *DataType) EntityTypeClass() string { return "data_type" }

func (d *DataType) Validate() error {
	return validation.Validate(d.Name, validation.Required, nameRule)
}
