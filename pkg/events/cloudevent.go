// Package events implements the CloudEvents envelope, routing rules,
// and fan-out targets for the outbox event router (C7). pkg/outbox
// owns the transactional outbox and poll loop; this package owns
// everything downstream of "a row became eligible to publish."
//
// Grounded on pkg/notifications/message.go's envelope-plus-metadata
// shape and pkg/indexer/relay/relay.go's Kafka record construction,
// generalized from hermes's single DocumentRevisionEvent type to the
// CloudEvents 1.0 envelope this service's wire protocol requires.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const specVersion = "1.0"

// CloudEvent is the CloudEvents 1.0 envelope, extended with the
// oms-specific `ce_*` extension attributes the wire protocol defines.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Subject         string          `json:"subject,omitempty"`
	Data            json.RawMessage `json:"data"`

	CorrelationID  string `json:"ce_correlationid,omitempty"`
	CausationID    string `json:"ce_causationid,omitempty"`
	Branch         string `json:"ce_branch,omitempty"`
	Commit         string `json:"ce_commit,omitempty"`
	Author         string `json:"ce_author,omitempty"`
	Tenant         string `json:"ce_tenant,omitempty"`
	TraceParent    string `json:"ce_traceparent,omitempty"`
	SpanID         string `json:"ce_spanid,omitempty"`
	SequenceNumber int64  `json:"ce_sequencenumber,omitempty"`
}

// New builds a CloudEvent from a commit-scoped outbox payload.
// eventID defaults to a fresh uuid when the caller doesn't need
// idempotency keyed on something else (the outbox's own event_id is
// the normal source of this value, passed through unchanged).
func New(eventID, eventType, source, branch, commit string, data json.RawMessage) *CloudEvent {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return &CloudEvent{
		SpecVersion:     specVersion,
		Type:            eventType,
		Source:          source,
		ID:              eventID,
		Time:            time.Now(),
		DataContentType: "application/json",
		Data:            data,
		Branch:          branch,
		Commit:          commit,
	}
}

// ToStructuredJSON serializes the event as a single JSON body, the
// form HTTP targets (and anything reading the outbox directly) expect.
func (c *CloudEvent) ToStructuredJSON() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("events: encoding structured CloudEvent %s: %w", c.ID, err)
	}
	return b, nil
}

// ToBinaryHeaders renders the envelope's context attributes as ce-*
// headers and returns the data payload separately, the form
// message-bus targets use (data becomes the record value, everything
// else becomes a header).
func (c *CloudEvent) ToBinaryHeaders() (headers map[string]string, data []byte) {
	headers = map[string]string{
		"ce-specversion":     c.SpecVersion,
		"ce-type":            c.Type,
		"ce-source":          c.Source,
		"ce-id":              c.ID,
		"ce-time":            c.Time.Format(time.RFC3339),
		"ce-datacontenttype": c.DataContentType,
	}
	if c.Subject != "" {
		headers["ce-subject"] = c.Subject
	}
	if c.CorrelationID != "" {
		headers["ce-correlationid"] = c.CorrelationID
	}
	if c.CausationID != "" {
		headers["ce-causationid"] = c.CausationID
	}
	if c.Branch != "" {
		headers["ce-branch"] = c.Branch
	}
	if c.Commit != "" {
		headers["ce-commit"] = c.Commit
	}
	if c.Author != "" {
		headers["ce-author"] = c.Author
	}
	if c.Tenant != "" {
		headers["ce-tenant"] = c.Tenant
	}
	if c.TraceParent != "" {
		headers["ce-traceparent"] = c.TraceParent
	}
	if c.SpanID != "" {
		headers["ce-spanid"] = c.SpanID
	}
	// Nats-Msg-Id doubles as the dedup header for any at-least-once bus
	// consumer, keyed on the envelope id (outbox event_id).
	headers["Nats-Msg-Id"] = c.ID
	return headers, []byte(c.Data)
}

// DeriveSubject computes the bus subject from a CloudEvent type and a
// resource id, e.g. "com.foundry.oms.objecttype.created" + "Employee"
// + branch "main" -> "oms.objecttype.created.main.Employee".
func DeriveSubject(eventType, branch, resourceID string) string {
	segments := strings.Split(eventType, ".")
	// Drop the leading reverse-DNS prefix ("com.foundry.oms"); keep
	// resource + action.
	tail := segments
	if len(segments) > 3 {
		tail = segments[len(segments)-2:]
	}
	return strings.Join(append([]string{"oms"}, append(tail, branch, resourceID)...), ".")
}
