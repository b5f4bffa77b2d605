package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsNilWithoutURL(t *testing.T) {
	n := New(Config{})
	assert.Nil(t, n)
}

func TestNilNotifierNotifyIsNoOp(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Notify(Payload{Endpoint: "visualize"}) })
}

func TestNotifyPOSTsPayload(t *testing.T) {
	var mu sync.Mutex
	var received Payload
	done := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&received)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	n := New(Config{URL: srv.URL, Timeout: time.Second})
	require.NotNil(t, n)

	n.Notify(Payload{Endpoint: "cncOverview", Outcome: "complete", Timestamp: 42})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "cncOverview", received.Endpoint)
	assert.Equal(t, "complete", received.Outcome)
	assert.EqualValues(t, 42, received.Timestamp)
}
