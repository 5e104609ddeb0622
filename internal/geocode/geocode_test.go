package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGeocodeParsesFirstPlace(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`[{"lat":"36.7762","lon":"3.0585","display_name":"Rue Didouche Mourad"}]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithUserAgent("soapstock-test"))
	res := c.Geocode(context.Background(), "12 Rue Didouche Mourad, Alger")

	if res.Fallback {
		t.Fatalf("expected a lookup result, got fallback")
	}
	if res.Latitude != 36.7762 || res.Longitude != 3.0585 {
		t.Fatalf("unexpected coordinates %+v", res)
	}
	if gotQuery != "12 Rue Didouche Mourad, Alger" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotUA != "soapstock-test" {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
}

func TestGeocodeFallsBackOnEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	res := NewClient(WithBaseURL(srv.URL)).Geocode(context.Background(), "nowhere")
	want := Result{Latitude: DefaultLatitude, Longitude: DefaultLongitude, Fallback: true}
	if res != want {
		t.Fatalf("expected %+v, got %+v", want, res)
	}
}

func TestGeocodeFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res := NewClient(WithBaseURL(srv.URL), WithDefault(1, 2)).Geocode(context.Background(), "x")
	if res != (Result{Latitude: 1, Longitude: 2, Fallback: true}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGeocodeFallsBackOnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	res := NewClient(WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond)).Geocode(context.Background(), "slow")
	if !res.Fallback {
		t.Fatalf("expected fallback on timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("lookup not bounded: %s", elapsed)
	}
}
