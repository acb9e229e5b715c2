package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

func notifiableTask() (*task.Task, *task.Execution) {
	tsk := task.New("owner-1", "price for the mechanical keyboard", "the price dropped below 100", "0 * * * *", task.NotifyAlways)
	tsk.WithChannelConfig(json.RawMessage(`{"email":"user@example.com"}`))

	e := task.NewExecution(tsk.ID)
	_ = e.Start()
	_ = e.Succeed(&task.CheckResult{
		Answer:       "price is now 89",
		ConditionMet: true,
		Sources:      []task.Source{{URI: "https://example.com/shop", Title: "Shop"}},
	})
	return tsk, e
}

func TestWebhookNotifierSend(t *testing.T) {
	var got Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	wn, err := NewWebhookNotifier(server.URL, time.Second)
	require.NoError(t, err)

	tsk, e := notifiableTask()
	d := NewDispatcher(wn, zerolog.Nop())
	require.NoError(t, d.Dispatch(context.Background(), tsk, e))

	assert.Equal(t, tsk.ID, got.TaskID)
	assert.Equal(t, e.ID, got.ExecutionID)
	assert.Equal(t, "price is now 89", got.Answer)
	assert.Len(t, got.Sources, 1)
	assert.JSONEq(t, `{"email":"user@example.com"}`, string(got.ChannelConfig))
}

func TestWebhookNotifierRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	wn, err := NewWebhookNotifier(server.URL, time.Second)
	require.NoError(t, err)

	tsk, e := notifiableTask()
	d := NewDispatcher(wn, zerolog.Nop())
	assert.Error(t, d.Dispatch(context.Background(), tsk, e))
}

func TestWebhookNotifierRequiresURL(t *testing.T) {
	_, err := NewWebhookNotifier("", time.Second)
	assert.Error(t, err)
}

func TestDispatcherWithoutNotifier(t *testing.T) {
	// No notifier configured: the decision is logged and dropped, never
	// an error
	tsk, e := notifiableTask()
	d := NewDispatcher(nil, zerolog.Nop())
	assert.NoError(t, d.Dispatch(context.Background(), tsk, e))
}
