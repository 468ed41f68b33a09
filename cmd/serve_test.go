// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/fringe/pkg/fps"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

// ============================================================
// Test Server
// ============================================================

// newTestRouter returns a router over a client that is never started, so
// its state only changes through the test
func newTestRouter(t *testing.T) (*fps.Client, http.Handler) {
	t.Helper()
	clientConn, deviceConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		deviceConn.Close()
	})

	stats := fps.NewStatistics()
	state := fps.NewState(100)
	c := fps.NewClient(clientConn, fps.WithState(state), fps.WithStatistics(stats))

	reg := prometheus.NewRegistry()
	reg.MustRegister(fps.NewCollector("fps", stats, state))
	return c, newServeRouter(c, reg, zaptest.NewLogger(t))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func pushSamples(state *fps.State, n int) {
	base := time.Unix(1700000000, 0)
	for i := 0; i < n; i++ {
		state.Positions.Push(fps.NewSample(base.Add(time.Duration(i)*5*time.Millisecond),
			[fps.AxisCount]float64{float64(i), 0, 0}))
	}
}

// ============================================================
// Route Tests
// ============================================================

func TestServe_Healthz(t *testing.T) {
	_, h := newTestRouter(t)

	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}
}

func TestServe_HealthzAfterClose(t *testing.T) {
	c, h := newTestRouter(t)
	c.Start()
	c.Close()
	<-c.Done()

	rec := get(t, h, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServe_Positions(t *testing.T) {
	c, h := newTestRouter(t)
	pushSamples(c.State(), 10)

	tests := []struct {
		target string
		want   int
		first  float64
	}{
		{"/positions", 10, 0},
		{"/positions?limit=3", 3, 7},
		{"/positions?limit=0", 0, 0},
		{"/positions?limit=50", 10, 0},
	}

	for _, tt := range tests {
		rec := get(t, h, tt.target)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", tt.target, rec.Code)
			continue
		}
		if ct := rec.Header().Get("Content-Type"); ct != cborContentType {
			t.Errorf("%s: content type = %q", tt.target, ct)
		}

		capture, err := fps.ReadCapture(rec.Body)
		if err != nil {
			t.Errorf("%s: decode failed: %v", tt.target, err)
			continue
		}
		if len(capture.Samples) != tt.want {
			t.Errorf("%s: %d samples, want %d", tt.target, len(capture.Samples), tt.want)
			continue
		}
		if tt.want > 0 && capture.Samples[0].A0 != tt.first {
			t.Errorf("%s: first sample axis 0 = %v, want %v", tt.target, capture.Samples[0].A0, tt.first)
		}
	}
}

func TestServe_PositionsInvalidLimit(t *testing.T) {
	_, h := newTestRouter(t)

	for _, target := range []string{"/positions?limit=x", "/positions?limit=-1"} {
		if rec := get(t, h, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestServe_Values(t *testing.T) {
	c, h := newTestRouter(t)
	c.State().Values.Store(fps.Key{Address: fps.AddrSampleTime, Index: 0}, fps.OpAck, []int32{977})
	c.State().Values.Store(fps.Key{Address: 0x100, Index: 2}, fps.OpTell, []int32{1, 2})

	rec := get(t, h, "/values")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var values []fps.CaptureValue
	if err := cbor.Unmarshal(rec.Body.Bytes(), &values); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("got %d values, want 2", len(values))
	}
	if values[0].Address != 0x100 || values[0].Index != 2 {
		t.Errorf("values not sorted by address: %+v", values)
	}
	if values[1].Address != fps.AddrSampleTime || len(values[1].Data) != 1 || values[1].Data[0] != 977 {
		t.Errorf("unexpected sample time entry %+v", values[1])
	}
}

func TestServe_Metrics(t *testing.T) {
	c, h := newTestRouter(t)
	c.Statistics().RecordMalformed()
	pushSamples(c.State(), 1)

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`fps_errors_total{kind="malformed"} 1`, "fps_buffered_samples 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestServe_NotFound(t *testing.T) {
	_, h := newTestRouter(t)
	if rec := get(t, h, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
