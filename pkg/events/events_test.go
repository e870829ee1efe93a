package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	name    string
	mu      sync.Mutex
	calls   []string
	failErr error
}

func (r *recordingTarget) Name() string { return r.name }

func (r *recordingTarget) Publish(ctx context.Context, ce *CloudEvent, resourceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.calls = append(r.calls, ce.ID)
	return nil
}

func TestCloudEventBinaryHeaders(t *testing.T) {
	ce := New("evt-1", "com.foundry.oms.objecttype.created", "oms://schema", "feature/x", "deadbeef", json.RawMessage(`{"name":"Employee"}`))
	headers, data := ce.ToBinaryHeaders()
	assert.Equal(t, "evt-1", headers["ce-id"])
	assert.Equal(t, "evt-1", headers["Nats-Msg-Id"])
	assert.Equal(t, "com.foundry.oms.objecttype.created", headers["ce-type"])
	assert.JSONEq(t, `{"name":"Employee"}`, string(data))
}

func TestDeriveSubject(t *testing.T) {
	subject := DeriveSubject("com.foundry.oms.objecttype.created", "main", "Employee")
	assert.Equal(t, "oms.objecttype.created.main.Employee", subject)
}

func TestRouterPrimaryOnlyFailureIsOverallFailure(t *testing.T) {
	primary := &recordingTarget{name: TargetMsgBus, failErr: assertErr}
	router := NewRouter([]Rule{
		{Name: "action", Pattern: "*.action.*", Priority: 10, Targets: []string{TargetMsgBus}, Strategy: StrategyPrimaryOnly},
	}, map[string]Target{TargetMsgBus: primary})

	ce := New("evt-2", "com.foundry.oms.job.action.invoked", "oms://actions", "main", "c1", json.RawMessage(`{}`))
	err := router.Route(context.Background(), ce, "job-1")
	assert.Error(t, err)
}

func TestRouterAllSucceedsWithOneHealthyTarget(t *testing.T) {
	good := &recordingTarget{name: TargetMsgBus}
	bad := &recordingTarget{name: TargetCloudBus, failErr: assertErr}
	router := NewRouter(DefaultRules(), map[string]Target{TargetMsgBus: good, TargetCloudBus: bad})

	ce := New("evt-3", "com.foundry.oms.objecttype.created", "oms://schema", "main", "c1", json.RawMessage(`{}`))
	err := router.Route(context.Background(), ce, "Employee")
	require.NoError(t, err)
	assert.Len(t, good.calls, 1)
}

func TestRouterCatchAllForUnrecognizedCategory(t *testing.T) {
	bus := &recordingTarget{name: TargetMsgBus}
	router := NewRouter(DefaultRules(), map[string]Target{TargetMsgBus: bus})

	ce := New("evt-4", "com.foundry.oms.widget.poked", "oms://misc", "main", "c1", json.RawMessage(`{}`))
	err := router.Route(context.Background(), ce, "w1")
	require.NoError(t, err)
	assert.Len(t, bus.calls, 1)
}

func TestCategoryClassification(t *testing.T) {
	assert.Equal(t, "schema", category("com.foundry.oms.objecttype.created"))
	assert.Equal(t, "branch", category("com.foundry.oms.branch.merged"))
	assert.Equal(t, "action", category("com.foundry.oms.action.invoked"))
	assert.Equal(t, "system", category("com.foundry.oms.system.backpressure"))
	assert.Equal(t, "other", category("com.foundry.oms.widget.poked"))
}

func TestNormalizeLegacyEventTypeDataShape(t *testing.T) {
	raw := []byte(`{"event_type": "legacy.object.created", "data": {"id": "Employee"}}`)
	ce, err := NormalizeLegacy(raw, "oms://legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy.object.created", ce.Type)
}

func TestNormalizeLegacyUnknownFallsBackToCatchAll(t *testing.T) {
	raw := []byte(`{"foo": "bar"}`)
	ce, err := NormalizeLegacy(raw, "oms://legacy")
	require.NoError(t, err)
	assert.Equal(t, fallbackType, ce.Type)
}

var assertErr = &routeErr{"simulated publish failure"}

type routeErr struct{ msg string }

func (e *routeErr) Error() string { return e.msg }
