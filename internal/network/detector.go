// Package network tracks connectivity to the remote store.
package network

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"soapstock/backend/internal/logger"
)

// ConnectivityMonitor is what storage routing depends on. IsOnline must be
// cheap: it reads the last known state and never touches the network.
type ConnectivityMonitor interface {
	IsOnline() bool
	IsOffline() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

const DefaultProbeTimeout = 5 * time.Second

type Option func(*Detector)

func WithInitialState(online bool) Option {
	return func(d *Detector) { d.online = online }
}

func WithProbe(url string, timeout time.Duration) Option {
	return func(d *Detector) {
		d.probeURL = url
		if timeout > 0 {
			d.probeTimeout = timeout
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(d *Detector) { d.client = client }
}

func WithLogger(log *logger.Logger) Option {
	return func(d *Detector) { d.log = log }
}

type Detector struct {
	// notifyMu orders state changes with their notifications; listeners
	// must not call SetOnline.
	notifyMu  sync.Mutex
	mu        sync.RWMutex
	online    bool
	listeners map[int]func(bool)
	nextID    int

	probeURL     string
	probeTimeout time.Duration
	client       *http.Client
	log          *logger.Logger
}

var _ ConnectivityMonitor = (*Detector)(nil)

// New starts offline unless told otherwise, so nothing is routed to the
// remote before connectivity has been observed.
func New(opts ...Option) *Detector {
	d := &Detector{
		listeners:    make(map[int]func(bool)),
		probeTimeout: DefaultProbeTimeout,
		client:       &http.Client{},
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) IsOnline() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.online
}

func (d *Detector) IsOffline() bool {
	return !d.IsOnline()
}

func (d *Detector) Subscribe(fn func(online bool)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// SetOnline records the platform's connectivity signal. Listeners run
// synchronously, in subscription order, only when the state changes, and
// see the changes in the order they were made.
func (d *Detector) SetOnline(online bool) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	d.mu.Lock()
	if d.online == online {
		d.mu.Unlock()
		return
	}
	d.online = online
	ids := make([]int, 0, len(d.listeners))
	for id := range d.listeners {
		ids = append(ids, id)
	}
	listeners := make([]func(bool), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, d.listeners[id])
	}
	d.mu.Unlock()

	state := "offline"
	if online {
		state = "online"
	}
	d.log.Info(context.Background(), "connectivity changed: "+state)

	for _, fn := range listeners {
		d.notify(fn, online)
	}
}

func (d *Detector) notify(fn func(bool), online bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error(context.Background(), "connectivity listener panicked", fmt.Errorf("%v", r))
		}
	}()
	fn(online)
}

// TestConnectivity actively checks that the probe URL answers. Any error,
// timeout or server error counts as unreachable.
func (d *Detector) TestConnectivity(ctx context.Context) bool {
	if d.probeURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Watch probes on every tick and feeds the result into SetOnline. It stands
// in for the platform signal when running as a server process.
func (d *Detector) Watch(ctx context.Context, interval time.Duration) {
	if d.probeURL == "" || interval <= 0 {
		return
	}
	d.SetOnline(d.TestConnectivity(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.SetOnline(d.TestConnectivity(ctx))
		}
	}
}
