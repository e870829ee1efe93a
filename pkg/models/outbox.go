package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/foundry/oms/pkg/oid"
	"gorm.io/gorm"
)

// OutboxStatus is an OutboxEvent's delivery state.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxEvent is a row in the transactional outbox (the "_outbox"
// branch/table of §3). Exactly one row is inserted, in the same Tx that
// produced the business commit, per successful mutation — never zero,
// never more than one.
//
// Grounded on the teacher's DocumentRevisionOutbox: same idempotent-key
// + retry-count + last-error shape, generalized from a single
// document-indexing concern to the general commit-to-event fan-out this
// service needs.
type OutboxEvent struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	EventID       string   `gorm:"column:event_id;type:varchar(64);uniqueIndex" json:"eventId"` // ce-id
	Type          string   `gorm:"type:varchar(255);not null;index:idx_outbox_type" json:"type"`
	Branch        oid.BranchName `gorm:"type:varchar(255);not null" json:"branch"`
	CommitHash    oid.Hash `gorm:"type:varchar(64);not null" json:"commitHash"`
	PayloadJSON   JSON     `gorm:"column:payload_json;type:jsonb;not null" json:"payloadJson"`
	IdempotentKey string   `gorm:"column:idempotent_key;type:varchar(128);uniqueIndex" json:"idempotentKey"`

	Status OutboxStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_outbox_status_created,priority:1" json:"status"`

	CreatedAt   time.Time  `gorm:"index:idx_outbox_status_created,priority:2" json:"createdAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	RetryCount int        `gorm:"not null;default:0" json:"retryCount"`
	LastError  string     `gorm:"type:text" json:"lastError,omitempty"`
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`
	NextAttemptAt time.Time `gorm:"index:idx_outbox_next_attempt" json:"nextAttemptAt"`
}

func (OutboxEvent) TableName() string { return "outbox" }

// BeforeCreate fills in defaults the way DocumentRevisionOutbox's hook
// does: generate the idempotent key from the commit+type if the caller
// didn't supply one, and seed NextAttemptAt to now so a fresh row is
// immediately eligible for the first poll.
func (e *OutboxEvent) BeforeCreate(tx *gorm.DB) error {
	if e.IdempotentKey == "" {
		e.IdempotentKey = GenerateIdempotentKey(string(e.Branch), string(e.CommitHash), e.Type)
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = time.Now()
	}
	if e.Status == "" {
		e.Status = OutboxPending
	}
	return nil
}

// GenerateIdempotentKey derives a stable dedup key for an outbox row so
// that re-inserting the "same" event (same branch, commit, and type)
// never produces a duplicate row even across retried Txes.
func GenerateIdempotentKey(branch, commitHash, eventType string) string {
	sum := sha256.Sum256([]byte(branch + "|" + commitHash + "|" + eventType))
	return hex.EncodeToString(sum[:])
}

// NewOutboxEvent builds a pending OutboxEvent ready for insertion in
// the same Tx as the commit that produced it.
func NewOutboxEvent(eventID, eventType string, branch oid.BranchName, commitHash oid.Hash, payloadJSON []byte) *OutboxEvent {
	return &OutboxEvent{
		EventID:     eventID,
		Type:        eventType,
		Branch:      branch,
		CommitHash:  commitHash,
		PayloadJSON: JSON(payloadJSON),
		Status:      OutboxPending,
	}
}

// FindPendingOutboxEntries returns up to limit pending rows whose
// NextAttemptAt has elapsed, oldest first. It takes no row lock and
// leaves the rows' status unchanged, so relay workers polling at the
// same time can read the same rows.
func FindPendingOutboxEntries(db *gorm.DB, limit int) ([]OutboxEvent, error) {
	var entries []OutboxEvent
	err := db.Where("status = ? AND next_attempt_at <= ?", OutboxPending, time.Now()).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkAsPublished transitions a row to published and stamps the time.
func MarkAsPublished(db *gorm.DB, id uint) error {
	now := time.Now()
	return db.Model(&OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       OutboxPublished,
		"published_at": now,
	}).Error
}

// MarkAsFailed increments retry_count and records the error; the next
// eligible attempt time is computed by the caller (pkg/outbox's backoff
// policy) and passed in as nextAttempt.
func MarkAsFailed(db *gorm.DB, id uint, errMsg string, nextAttempt time.Time, terminal bool) error {
	now := time.Now()
	updates := map[string]interface{}{
		"retry_count":     gorm.Expr("retry_count + 1"),
		"last_error":      errMsg,
		"last_attempt":    now,
		"next_attempt_at": nextAttempt,
	}
	if terminal {
		updates["status"] = OutboxFailed
	}
	return db.Model(&OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}

// GetFailedOutboxEntries returns rows that exhausted their retry budget.
func GetFailedOutboxEntries(db *gorm.DB, limit int) ([]OutboxEvent, error) {
	var entries []OutboxEvent
	err := db.Where("status = ?", OutboxFailed).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountOutboxByStatus returns the number of rows in the given status, used
// by the backpressure monitor (§4.7) to detect a growing backlog.
func CountOutboxByStatus(db *gorm.DB, status OutboxStatus) (int64, error) {
	var count int64
	err := db.Model(&OutboxEvent{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// DeleteOldPublishedEntries prunes published rows older than the given
// time, keeping the outbox table bounded.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Time) (int64, error) {
	res := db.Where("status = ? AND published_at < ?", OutboxPublished, olderThan).Delete(&OutboxEvent{})
	return res.RowsAffected, res.Error
}

// Requeue resets a row back to pending for immediate retry, used by
// operator tooling after a failed row's underlying issue is fixed.
func Requeue(db *gorm.DB, id uint) error {
	return db.Model(&OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          OutboxPending,
		"retry_count":     0,
		"next_attempt_at": time.Now(),
	}).Error
}
