package repository

import (
	"encoding/json"
	"fmt"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/store"
)

// decodeJSON is the generic (de)serialization path used by every
// concrete constructor below: ResourceVersion.ContentJSON is always
// plain entity JSON, so decoding is just json.Unmarshal into a fresh
// pointer.
func decodeJSON[T any](raw []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("repository: decoding %T: %w", v, err)
	}
	return &v, nil
}

// NewObjectTypes constructs the Repository for object types.
func NewObjectTypes(s *store.Store) *Repository[*models.ObjectType] {
	return New[*models.ObjectType](s, "object_type", decodeJSON[models.ObjectType])
}

// NewProperties constructs the Repository for properties.
func NewProperties(s *store.Store) *Repository[*models.Property] {
	return New[*models.Property](s, "property", decodeJSON[models.Property])
}

// NewLinkTypes constructs the Repository for link types.
func NewLinkTypes(s *store.Store) *Repository[*models.LinkType] {
	return New[*models.LinkType](s, "link_type", decodeJSON[models.LinkType])
}

// NewInterfaces constructs the Repository for interfaces.
func NewInterfaces(s *store.Store) *Repository[*models.Interface] {
	return New[*models.Interface](s, "interface", decodeJSON[models.Interface])
}

// NewSharedProperties constructs the Repository for shared properties.
func NewSharedProperties(s *store.Store) *Repository[*models.SharedProperty] {
	return New[*models.SharedProperty](s, "shared_property", decodeJSON[models.SharedProperty])
}

// NewActionTypes constructs the Repository for action types.
func NewActionTypes(s *store.Store) *Repository[*models.ActionType] {
	return New[*models.ActionType](s, "action_type", decodeJSON[models.ActionType])
}

// NewFunctionTypes constructs the Repository for function types.
func NewFunctionTypes(s *store.Store) *Repository[*models.FunctionType] {
	return New[*models.FunctionType](s, "function_type", decodeJSON[models.FunctionType])
}

// NewDataTypes constructs the Repository for data types.
func NewDataTypes(s *store.Store) *Repository[*models.DataType] {
	return New[*models.DataType](s, "data_type", decodeJSON[models.DataType])
}
