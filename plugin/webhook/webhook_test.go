package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/channelwatch/monitor"
)

func TestNewDispatcherDisabledWithoutURL(t *testing.T) {
	require.Nil(t, NewDispatcher(""))
}

// A disabled dispatcher held in the EventPoster interface is a non-nil
// interface around a nil pointer; the pipeline must survive it.
func TestDisabledDispatcherNeverPanics(t *testing.T) {
	var poster monitor.EventPoster = NewDispatcher("")
	require.NotPanics(t, func() {
		poster.PostAsync(&monitor.Event{ID: "evt-1", Text: "hello"})
	})
}

func TestPostDeliversPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received requestPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		mu.Lock()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	require.NotNil(t, d)
	require.NoError(t, d.Post(&monitor.Event{ID: "evt-1", Text: "hello", Source: "technews"}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, srv.URL, received.URL)
	require.NotNil(t, received.Event)
	require.Equal(t, "evt-1", received.Event.ID)
	require.Equal(t, "hello", received.Event.Text)
}

func TestPostSurfacesNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	err := d.Post(&monitor.Event{ID: "evt-1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "status code: 500")
}

func TestPostAsyncSwallowsFailure(t *testing.T) {
	delivered := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered <- struct{}{}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	require.NotPanics(t, func() {
		d.PostAsync(&monitor.Event{ID: "evt-1"})
	})
	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}
