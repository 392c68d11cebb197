package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	kafkax "github.com/ariefcatur/woo-erp-sync/internal/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingCredentials(t *testing.T) {
	f := newFixture(t)
	f.profile.ConsumerSecret = ""
	require.NoError(t, f.store.SaveProfile(context.Background(), f.profile))

	for _, flow := range []Flow{FlowImport, FlowExport} {
		res, err := f.svc.Run(context.Background(), f.profile.ID, flow)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfig))
		require.NotNil(t, res)
		assert.Equal(t, OutcomeFailure, res.Outcome)
		assert.Equal(t, "Missing WooCommerce API credentials!", res.Message)
	}

	assert.Equal(t, 0, f.woo.listCalls())
	assert.Empty(t, f.woo.posted)
	assert.Equal(t, "Missing WooCommerce API credentials!", f.reloadProfile(t).LastSyncStatus)
	assert.Empty(t, f.runs.messages())
}

func TestRun_BadInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Run(context.Background(), f.profile.ID, Flow("refund"))
	assert.True(t, errors.Is(err, ErrUnknownFlow))

	_, err = f.svc.Run(context.Background(), uuid.New(), FlowImport)
	assert.True(t, errors.Is(err, erp.ErrNotFound))
}

func TestRun_CachesAndPublishesResult(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{order501}

	res, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)

	last, err := f.svc.LastResult(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)
	assert.Equal(t, res.Outcome, last.Outcome)
	assert.Equal(t, res.Created, last.Created)
	assert.Equal(t, res.Message, last.Message)

	_, err = f.svc.LastResult(context.Background(), f.profile.ID, FlowExport)
	assert.True(t, errors.Is(err, erp.ErrNotFound))

	msgs := f.runs.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, erp.PartitionKey(f.profile.ID.String()), msgs[0].Key)
	assert.Equal(t, "x-event-type", msgs[0].Headers[0].Key)
	assert.Equal(t, erp.EventRunCompleted, string(msgs[0].Headers[0].Value))

	env := decodeEnvelope(t, msgs[0])
	payload, err := kafkax.UnwrapPayload[erp.RunCompletedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "import", payload.Flow)
	assert.Equal(t, "success", payload.Outcome)
	assert.Equal(t, 1, payload.Created)
}

func TestHandleRunRequested(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{order501}

	requests := &capturePublisher{}
	eventID := RequestRun(requests, "woo-sync-api", f.profile.ID, FlowImport, "trace-1")
	require.NotEmpty(t, eventID)
	msgs := requests.messages()
	require.Len(t, msgs, 1)
	env := decodeEnvelope(t, msgs[0])
	assert.Equal(t, erp.EventRunRequested, env.EventType)
	assert.Equal(t, "trace-1", env.TraceID)

	require.NoError(t, f.svc.HandleRunRequested(context.Background(), msgs[0]))
	assert.Len(t, f.store.Orders(), 1)
	calls := f.woo.listCalls()

	// redelivery of the same event is dropped
	require.NoError(t, f.svc.HandleRunRequested(context.Background(), msgs[0]))
	assert.Equal(t, calls, f.woo.listCalls())
}

func TestHandleRunRequested_NotRetryable(t *testing.T) {
	f := newFixture(t)
	requests := &capturePublisher{}

	RequestRun(requests, "api", uuid.New(), FlowImport, "")
	f.profile.URL = ""
	require.NoError(t, f.store.SaveProfile(context.Background(), f.profile))
	RequestRun(requests, "api", f.profile.ID, FlowImport, "")

	for _, m := range requests.messages() {
		assert.NoError(t, f.svc.HandleRunRequested(context.Background(), m))
	}
	assert.Equal(t, 0, f.woo.listCalls())
}

func TestHandleRunRequested_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	f.svc.OrderEvents = &capturePublisher{}
	f.woo.pages = []string{order501}
	_, err := f.svc.Run(context.Background(), f.profile.ID, FlowImport)
	require.NoError(t, err)
	calls := f.woo.listCalls()

	// a completed event on the wrong topic must not start a run
	for _, m := range f.runs.messages() {
		assert.NoError(t, f.svc.HandleRunRequested(context.Background(), m))
	}
	assert.Equal(t, calls, f.woo.listCalls())
}

func TestHandleRunRequested_RetryableErrorIsRedelivered(t *testing.T) {
	f := newFixture(t)
	f.woo.pages = []string{order501}
	f.svc.Store = &flakyStore{MemStore: f.store, profileErrs: 1}

	requests := &capturePublisher{}
	RequestRun(requests, "woo-sync-api", f.profile.ID, FlowImport, "")
	msg := requests.messages()[0]

	err := f.svc.HandleRunRequested(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Equal(t, 0, f.woo.listCalls())

	// kafka redelivers the uncommitted message
	require.NoError(t, f.svc.HandleRunRequested(context.Background(), msg))
	assert.Len(t, f.store.Orders(), 1)
	calls := f.woo.listCalls()
	assert.Equal(t, 2, calls)

	// once it succeeded, further copies are dropped
	require.NoError(t, f.svc.HandleRunRequested(context.Background(), msg))
	assert.Equal(t, calls, f.woo.listCalls())
}
