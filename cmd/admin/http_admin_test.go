package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dishrush.game/internal/sim/world"
)

func TestFetchMetrics_PrintsTotals(t *testing.T) {
	m := world.WorldMetrics{Tick: 42, Agents: 2, Carried: 3}
	m.Totals.Deliveries = 4
	m.Totals.DishesCleaned = 9
	m.Totals.Stumbles = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics.json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(m)
	}))
	defer srv.Close()

	body, err := fetchMetrics(srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var got world.WorldMetrics
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var out bytes.Buffer
	printMetrics(&out, got)
	for _, want := range []string{"tick=42", "agents=2", "carried=3", "deliveries=4 cleaned=9", "stumbles=1"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestFetchMetrics_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := fetchMetrics(srv.Client(), srv.URL); err == nil {
		t.Fatalf("expected error for 503")
	}
}
