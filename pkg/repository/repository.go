// Package repository implements the document repository (C2): typed,
// generic CRUD over schema entities, translated into the version
// store's untyped (type, id, branch) key space.
//
// Grounded on the per-model helper-function idiom in the teacher's
// pkg/models/document_revision.go (free functions taking a *gorm.DB and
// a typed struct) — generalized here with Go generics into a single
// Repository[T] instead of one hand-written set of helpers per model,
// since OMS has eight entity kinds (§4.2) where hermes had one.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/store"
)

// Entity is re-exported here so callers of this package don't also need
// to import pkg/models directly just to satisfy the type constraint.
type Entity = models.Entity

// Repository is generic CRUD over one entity kind T, scoped to a
// branch, backed by the version store.
type Repository[T Entity] struct {
	store     *store.Store
	typeClass string
	decode    func([]byte) (T, error)
}

// New constructs a Repository for entity kind T. typeClass must match
// T.EntityTypeClass() for every value T produces; decode unmarshals a
// stored ContentJSON blob back into a *T.
func New[T Entity](s *store.Store, typeClass string, decode func([]byte) (T, error)) *Repository[T] {
	return &Repository[T]{store: s, typeClass: typeClass, decode: decode}
}

// Create stages and commits an insert of a new entity in one step,
// convenient for callers that don't need to batch multiple entities
// into a single commit. Batched multi-entity writes should use
// store.Tx directly (see pkg/schema, which composes several
// repositories against one Tx).
func (r *Repository[T]) Create(ctx context.Context, branch oid.BranchName, entity T, author, message string) (oid.Hash, error) {
	if err := entity.Validate(); err != nil {
		return "", err
	}
	tx, err := r.store.BeginTx(ctx, branch)
	if err != nil {
		return "", err
	}
	if err := r.StageCreate(tx, entity); err != nil {
		return "", err
	}
	return tx.Commit(ctx, author, message)
}

// StageCreate buffers an insert of entity onto an already-open Tx,
// without validating or committing — for composing multi-entity writes
// from pkg/schema.
func (r *Repository[T]) StageCreate(tx *store.Tx, entity T) error {
	content, err := entityToMap(entity)
	if err != nil {
		return err
	}
	return tx.InsertDocument(r.typeClass, entity.EntityName(), content)
}

// Update stages and commits a modification of an existing entity.
func (r *Repository[T]) Update(ctx context.Context, branch oid.BranchName, entity T, author, message string) (oid.Hash, error) {
	if err := entity.Validate(); err != nil {
		return "", err
	}
	tx, err := r.store.BeginTx(ctx, branch)
	if err != nil {
		return "", err
	}
	if err := r.StageUpdate(tx, entity); err != nil {
		return "", err
	}
	return tx.Commit(ctx, author, message)
}

// StageUpdate buffers an update onto an already-open Tx.
func (r *Repository[T]) StageUpdate(tx *store.Tx, entity T) error {
	content, err := entityToMap(entity)
	if err != nil {
		return err
	}
	return tx.UpdateDocument(r.typeClass, entity.EntityName(), content)
}

// Delete stages and commits a tombstone for the named entity.
func (r *Repository[T]) Delete(ctx context.Context, branch oid.BranchName, name, author, message string) (oid.Hash, error) {
	tx, err := r.store.BeginTx(ctx, branch)
	if err != nil {
		return "", err
	}
	if err := tx.DeleteDocument(r.typeClass, name); err != nil {
		return "", err
	}
	return tx.Commit(ctx, author, message)
}

// Get returns the current (branch-HEAD) state of a named entity.
func (r *Repository[T]) Get(ctx context.Context, branch oid.BranchName, name string) (T, error) {
	var zero T
	rv, err := r.store.GetResourceAt(ctx, branch, r.typeClass, name, time.Now())
	if err != nil {
		return zero, &ocierr.NotFound{Kind: r.typeClass, ID: name, Err: err}
	}
	return r.decode([]byte(rv.ContentJSON))
}

// List returns every non-deleted entity of this kind currently on
// branch.
func (r *Repository[T]) List(ctx context.Context, branch oid.BranchName) ([]T, error) {
	rows, err := r.store.QueryAt(ctx, branch, r.typeClass, time.Now())
	if err != nil {
		return nil, fmt.Errorf("repository: listing %s: %w", r.typeClass, err)
	}
	out := make([]T, 0, len(rows))
	for _, rv := range rows {
		entity, err := r.decode([]byte(rv.ContentJSON))
		if err != nil {
			return nil, fmt.Errorf("repository: decoding %s %q: %w", r.typeClass, rv.ResourceID, err)
		}
		out = append(out, entity)
	}
	return out, nil
}

// Exists reports whether a named entity currently exists on branch.
func (r *Repository[T]) Exists(ctx context.Context, branch oid.BranchName, name string) (bool, error) {
	_, err := r.Get(ctx, branch, name)
	if err != nil {
		var nf *ocierr.NotFound
		if asNotFound(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func asNotFound(err error, target **ocierr.NotFound) bool {
	nf, ok := err.(*ocierr.NotFound)
	if ok {
		*target = nf
	}
	return ok
}

func entityToMap(entity Entity) (map[string]interface{}, error) {
	raw, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("repository: encoding %s: %w", entity.EntityTypeClass(), err)
	}
	var content map[string]interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("repository: decoding %s back to map: %w", entity.EntityTypeClass(), err)
	}
	return content, nil
}
