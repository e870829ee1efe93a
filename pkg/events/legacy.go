package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

const fallbackType = "com.foundry.oms.unknown.changed"

// NormalizeLegacy recognizes several legacy payload shapes and
// converts them to a CloudEvent, falling back to fallbackType for
// anything unrecognized. source is the CloudEvent source URI to stamp
// on the result.
//
// Shapes recognized, checked in order:
//  1. bare envelope: {"type": ..., "data": ...}
//  2. outbox row: {"type": ..., "branch": ..., "commitHash": ..., "payloadJson": ...}
//  3. custom event_type+data: {"event_type": ..., "data": ...}
//  4. bus-subject form: {"subject": "oms.<resource>.<action>.<branch>.<id>", "payload": ...}
func NormalizeLegacy(raw []byte, source string) (*CloudEvent, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("events: legacy payload is not a JSON object: %w", err)
	}

	if typ, data, ok := bareEnvelope(generic); ok {
		return New("", typ, source, "", "", data), nil
	}
	if typ, branch, commit, data, ok := outboxRowShape(generic); ok {
		ce := New("", typ, source, branch, commit, data)
		return ce, nil
	}
	if typ, data, ok := eventTypeDataShape(generic); ok {
		return New("", typ, source, "", "", data), nil
	}
	if typ, payload, ok := busSubjectShape(generic); ok {
		return New("", typ, source, "", "", payload), nil
	}

	return New("", fallbackType, source, "", "", raw), nil
}

func bareEnvelope(m map[string]json.RawMessage) (typ string, data json.RawMessage, ok bool) {
	typRaw, hasType := m["type"]
	dataRaw, hasData := m["data"]
	if !hasType || !hasData {
		return "", nil, false
	}
	if _, hasBranch := m["branch"]; hasBranch {
		return "", nil, false // outboxRowShape also has "type"; let it win
	}
	var t string
	if err := json.Unmarshal(typRaw, &t); err != nil {
		return "", nil, false
	}
	return t, dataRaw, true
}

func outboxRowShape(m map[string]json.RawMessage) (typ, branch, commit string, data json.RawMessage, ok bool) {
	typRaw, hasType := m["type"]
	payloadRaw, hasPayload := m["payloadJson"]
	if !hasType || !hasPayload {
		return "", "", "", nil, false
	}
	var t string
	json.Unmarshal(typRaw, &t)
	if branchRaw, found := m["branch"]; found {
		json.Unmarshal(branchRaw, &branch)
	}
	if commitRaw, found := m["commitHash"]; found {
		json.Unmarshal(commitRaw, &commit)
	}
	return t, branch, commit, payloadRaw, true
}

func eventTypeDataShape(m map[string]json.RawMessage) (typ string, data json.RawMessage, ok bool) {
	typRaw, hasType := m["event_type"]
	dataRaw, hasData := m["data"]
	if !hasType || !hasData {
		return "", nil, false
	}
	var t string
	if err := json.Unmarshal(typRaw, &t); err != nil {
		return "", nil, false
	}
	return t, dataRaw, true
}

func busSubjectShape(m map[string]json.RawMessage) (typ string, payload json.RawMessage, ok bool) {
	subjectRaw, hasSubject := m["subject"]
	payloadRaw, hasPayload := m["payload"]
	if !hasSubject || !hasPayload {
		return "", nil, false
	}
	var subject string
	if err := json.Unmarshal(subjectRaw, &subject); err != nil {
		return "", nil, false
	}
	// "oms.objecttype.created.main.Employee" -> reconstruct a
	// reverse-DNS type; branch/id segments are dropped since the
	// canonical type doesn't carry them.
	return subjectToType(subject), payloadRaw, true
}

func subjectToType(subject string) string {
	segments := strings.Split(subject, ".")
	if len(segments) > 0 && segments[0] == "oms" {
		segments = segments[1:]
	}
	if len(segments) > 2 {
		segments = segments[:2]
	}
	return "com.foundry.oms." + strings.Join(segments, ".")
}
