package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func TestInstrument_CountsByOpAndCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() int { return 7 })

	h := m.Instrument("decide", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/decide", nil))
	}

	got := counterValue(t, reg, "quotagate_requests_total", map[string]string{"op": "decide", "code": "200"})
	if got != 3 {
		t.Errorf("requests_total = %v, want 3", got)
	}
	if g := counterValue(t, reg, "quotagate_buckets", nil); g != 7 {
		t.Errorf("buckets gauge = %v, want 7", g)
	}
}

func TestInstrument_DefaultsImplicitStatusTo200(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() int { return 0 })

	h := m.Instrument("status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // no explicit WriteHeader
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	if got := counterValue(t, reg, "quotagate_requests_total", map[string]string{"op": "status", "code": "200"}); got != 1 {
		t.Errorf("requests_total = %v, want 1", got)
	}
}

func TestObserveDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() int { return 0 })

	m.ObserveDecision(true)
	m.ObserveDecision(true)
	m.ObserveDecision(false)

	if got := counterValue(t, reg, "quotagate_decisions_total", map[string]string{"outcome": "allowed"}); got != 2 {
		t.Errorf("allowed = %v, want 2", got)
	}
	if got := counterValue(t, reg, "quotagate_decisions_total", map[string]string{"outcome": "denied"}); got != 1 {
		t.Errorf("denied = %v, want 1", got)
	}
}
