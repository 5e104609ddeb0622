package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorDefaultsOffline(t *testing.T) {
	d := New()
	assert.False(t, d.IsOnline())
	assert.True(t, d.IsOffline())
}

func TestSetOnlineNotifiesOnTransitionOnly(t *testing.T) {
	d := New()
	var got []bool
	d.Subscribe(func(online bool) { got = append(got, online) })

	d.SetOnline(true)
	d.SetOnline(true)
	d.SetOnline(false)

	assert.Equal(t, []bool{true, false}, got)
}

func TestConcurrentSetOnlineDeliversChangesInOrder(t *testing.T) {
	d := New()
	var got []bool
	d.Subscribe(func(online bool) { got = append(got, online) })

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(online bool) {
			defer wg.Done()
			d.SetOnline(online)
		}(i%2 == 0)
	}
	wg.Wait()

	require.NotEmpty(t, got)
	assert.True(t, got[0], "the first change leaves the offline default")
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "event %d repeats the previous state", i)
	}
	assert.Equal(t, d.IsOnline(), got[len(got)-1])
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	d := New()
	d.Subscribe(func(bool) { panic("bad listener") })
	called := false
	d.Subscribe(func(online bool) { called = online })

	require.NotPanics(t, func() { d.SetOnline(true) })
	assert.True(t, called)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	d := New(WithInitialState(true))
	calls := 0
	unsubscribe := d.Subscribe(func(bool) { calls++ })
	unsubscribe()

	d.SetOnline(false)
	assert.Zero(t, calls)
}

func TestConnectivityProbe(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	assert.True(t, New(WithProbe(ok.URL, time.Second)).TestConnectivity(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()
	assert.False(t, New(WithProbe(broken.URL, time.Second)).TestConnectivity(context.Background()))

	assert.False(t, New().TestConnectivity(context.Background()))
}

func TestConnectivityProbeTimesOut(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	started := time.Now()
	assert.False(t, New(WithProbe(slow.URL, 50*time.Millisecond)).TestConnectivity(context.Background()))
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestWatchFeedsProbeResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(WithProbe(srv.URL, time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, d.IsOnline, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
