// Package schema implements the Schema Service (C3): thin
// orchestration around the document repository that applies
// entity-specific invariants needing cross-entity reads, commits
// through the version store inside a single Tx, and writes the
// transactional outbox row in that same Tx.
//
// Grounded on internal/server/server.go's service-struct-aggregates-
// providers shape: Schema holds one typed repository per entity kind
// plus the store and outbox writer, the way the teacher's Server holds
// one client per backend.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foundry/oms/pkg/merge"
	"github.com/foundry/oms/pkg/models"
	"github.com/foundry/oms/pkg/ocierr"
	"github.com/foundry/oms/pkg/oid"
	"github.com/foundry/oms/pkg/repository"
	"github.com/foundry/oms/pkg/store"
	"gorm.io/gorm"
)

// Schema is the orchestrator for every schema-entity mutation.
type Schema struct {
	store *store.Store

	ObjectTypes     *repository.Repository[*models.ObjectType]
	Properties      *repository.Repository[*models.Property]
	LinkTypes       *repository.Repository[*models.LinkType]
	Interfaces      *repository.Repository[*models.Interface]
	SharedProperties *repository.Repository[*models.SharedProperty]
	ActionTypes     *repository.Repository[*models.ActionType]
	FunctionTypes   *repository.Repository[*models.FunctionType]
	DataTypes       *repository.Repository[*models.DataType]
}

// New wires a Schema over an already-constructed Store; the outbox row
// for each mutation is written through the Store's own Tx rather than a
// separate *gorm.DB handle, so Schema no longer needs one of its own.
func New(s *store.Store) *Schema {
	return &Schema{
		store:            s,
		ObjectTypes:      repository.NewObjectTypes(s),
		Properties:       repository.NewProperties(s),
		LinkTypes:        repository.NewLinkTypes(s),
		Interfaces:       repository.NewInterfaces(s),
		SharedProperties: repository.NewSharedProperties(s),
		ActionTypes:      repository.NewActionTypes(s),
		FunctionTypes:    repository.NewFunctionTypes(s),
		DataTypes:        repository.NewDataTypes(s),
	}
}

// CreateObjectType validates, checks for a duplicate name, commits, and
// emits a schema.changed outbox event in the same Tx as the commit.
func (sc *Schema) CreateObjectType(ctx context.Context, branch oid.BranchName, ot *models.ObjectType, author string) (oid.Hash, error) {
	if err := ot.Validate(); err != nil {
		return "", err
	}
	if exists, err := sc.ObjectTypes.Exists(ctx, branch, ot.Name); err != nil {
		return "", err
	} else if exists {
		return "", &ocierr.AlreadyExists{Kind: "object_type", ID: ot.Name}
	}
	return sc.commitWithEvent(ctx, branch, author, "created", fmt.Sprintf("create object type %s", ot.Name), func(tx *store.Tx) (string, string, error) {
		return "object_type", ot.Name, sc.ObjectTypes.StageCreate(tx, ot)
	})
}

// CreateLinkType validates, verifies both endpoint ObjectTypes exist on
// branch (the cross-entity check §4.3 calls out), then commits.
func (sc *Schema) CreateLinkType(ctx context.Context, branch oid.BranchName, lt *models.LinkType, author string) (oid.Hash, error) {
	if err := lt.Validate(); err != nil {
		return "", err
	}
	if ok, err := sc.ObjectTypes.Exists(ctx, branch, lt.FromObjectType); err != nil {
		return "", err
	} else if !ok {
		return "", &ocierr.NotFound{Kind: "object_type", ID: lt.FromObjectType}
	}
	if ok, err := sc.ObjectTypes.Exists(ctx, branch, lt.ToObjectType); err != nil {
		return "", err
	} else if !ok {
		return "", &ocierr.NotFound{Kind: "object_type", ID: lt.ToObjectType}
	}
	return sc.commitWithEvent(ctx, branch, author, "created", fmt.Sprintf("create link type %s", lt.Name), func(tx *store.Tx) (string, string, error) {
		return "link_type", lt.Name, sc.LinkTypes.StageCreate(tx, lt)
	})
}

// DeleteInterface verifies no other Interface still extends it before
// allowing deletion (the "interface implementation impact" check named
// in §4.3). Reference discovery here is a full scan over Interfaces;
// acceptable since interfaces are a low-cardinality entity kind.
func (sc *Schema) DeleteInterface(ctx context.Context, branch oid.BranchName, name, author string) (oid.Hash, error) {
	interfaces, err := sc.Interfaces.List(ctx, branch)
	if err != nil {
		return "", err
	}
	var referredBy []string
	for _, iface := range interfaces {
		for _, parent := range iface.Parents {
			if parent == name {
				referredBy = append(referredBy, iface.Name)
			}
		}
	}
	if len(referredBy) > 0 {
		return "", &ocierr.InUse{Kind: "interface", ID: name, ReferredBy: referredBy}
	}
	return sc.commitWithEvent(ctx, branch, author, "deleted", fmt.Sprintf("delete interface %s", name), func(tx *store.Tx) (string, string, error) {
		return "interface", name, tx.DeleteDocument("interface", name)
	})
}

// commitWithEvent is the shared write path every mutation above funnels
// through: open a Tx, let the caller stage its document change, and
// commit with the schema.changed outbox row inserted through
// store.Tx.CommitWithCallback so it lands in the exact same database
// transaction as the version rows, the commit row, and the branch HEAD
// advance (§4.3, §4.7's "same Tx" requirement) — a crash anywhere in
// that transaction rolls back the whole thing, so there is never a
// commit with no outbox row or an outbox row for a commit that didn't
// happen.
//
// The CloudEvent type is built as "com.foundry.oms.<resource>.<action>"
// (e.g. "com.foundry.oms.objecttype.created"), the reverse-DNS,
// resource-plus-action wire form the router's default rules classify
// by resource segment; entityType (snake_case, e.g. "object_type") is
// carried separately in the payload for readers that want the
// canonical internal name.
func (sc *Schema) commitWithEvent(ctx context.Context, branch oid.BranchName, author, action, message string, stage func(tx *store.Tx) (entityType, entityID string, err error)) (oid.Hash, error) {
	tx, err := sc.store.BeginTx(ctx, branch)
	if err != nil {
		return "", err
	}
	entityType, entityID, err := stage(tx)
	if err != nil {
		return "", err
	}
	return tx.CommitWithCallback(ctx, author, message, func(gtx *gorm.DB, hash oid.Hash) error {
		return sc.writeOutboxEvent(gtx, branch, hash, entityType, entityID, action, message)
	})
}

// writeOutboxEvent builds and inserts the schema.changed row for one
// commit, using gtx so the insert is part of the caller's already-open
// transaction rather than a new one.
func (sc *Schema) writeOutboxEvent(gtx *gorm.DB, branch oid.BranchName, hash oid.Hash, entityType, entityID, action, message string) error {
	payload := map[string]interface{}{
		"branch":     string(branch),
		"commit":     string(hash),
		"operation":  message,
		"entityType": entityType,
		"entityId":   entityID,
		"changes":    action,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("schema: encoding schema.changed payload: %w", err)
	}

	eventType := fmt.Sprintf("com.foundry.oms.%s.%s", wireResourceSegment(entityType), action)
	event := models.NewOutboxEvent("", eventType, branch, hash, payloadJSON)
	if err := gtx.Create(event).Error; err != nil {
		return fmt.Errorf("schema: writing outbox row for commit %s: %w", hash, err)
	}
	return nil
}

// wireResourceSegment strips the snake_case separators from an entity
// type class ("object_type" -> "objecttype") to match the CloudEvents
// type naming convention's resource segment.
func wireResourceSegment(entityType string) string {
	out := make([]byte, 0, len(entityType))
	for i := 0; i < len(entityType); i++ {
		if entityType[i] != '_' {
			out = append(out, entityType[i])
		}
	}
	return string(out)
}

// BranchDocuments implements branch.MergeDocSource, reading every
// current document of resourceType on branch as generic merge.Document
// maps.
func (sc *Schema) BranchDocuments(ctx context.Context, branch oid.BranchName, resourceType string) (map[string]merge.Document, error) {
	rows, err := sc.store.QueryAt(ctx, branch, resourceType, time.Now())
	if err != nil {
		return nil, err
	}
	out := make(map[string]merge.Document, len(rows))
	for _, rv := range rows {
		var doc merge.Document
		if err := json.Unmarshal(rv.ContentJSON, &doc); err != nil {
			return nil, fmt.Errorf("schema: decoding %s %q: %w", resourceType, rv.ResourceID, err)
		}
		out[rv.ResourceID] = doc
	}
	return out, nil
}

// ApplyMerged implements branch.MergeDocSource, landing every resource
// type's merged documents as a single commit on targetBranch with
// parents=[target_head, sourceHead] (§4.6's MERGE strategy), the
// schema.changed outbox row inserted through CommitWithCallback in that
// same transaction.
func (sc *Schema) ApplyMerged(ctx context.Context, targetBranch oid.BranchName, sourceHead oid.Hash, changes map[string]merge.ResourceChanges, author, message string) (oid.Hash, error) {
	tx, err := sc.store.BeginTx(ctx, targetBranch)
	if err != nil {
		return "", err
	}
	for resourceType, rc := range changes {
		existing, err := sc.BranchDocuments(ctx, targetBranch, resourceType)
		if err != nil {
			return "", err
		}
		for id, doc := range rc.Merged {
			if _, ok := existing[id]; ok {
				if err := tx.UpdateDocument(resourceType, id, doc); err != nil {
					return "", err
				}
			} else {
				if err := tx.InsertDocument(resourceType, id, doc); err != nil {
					return "", err
				}
			}
		}
		for _, id := range rc.Deletions {
			if err := tx.DeleteDocument(resourceType, id); err != nil {
				return "", err
			}
		}
	}
	if tx.Empty() {
		return sc.store.BranchHead(ctx, targetBranch)
	}
	tx.SetMergeParent(sourceHead)
	return tx.CommitWithCallback(ctx, author, message, func(gtx *gorm.DB, hash oid.Hash) error {
		return sc.writeOutboxEvent(gtx, targetBranch, hash, "merge", string(targetBranch), "merged", message)
	})
}
