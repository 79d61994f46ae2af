package gateways

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ochairo/distill/internal/domain/entities"
)

func TestNewOSVGateway(t *testing.T) {
	gateway := NewOSVGateway("")

	if gateway.apiURL != "https://api.osv.dev/v1/query" {
		t.Errorf("API URL = %s, want https://api.osv.dev/v1/query", gateway.apiURL)
	}
}

func TestOSVGateway_QueryAdvisories_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Method = %s, want POST", r.Method)
		}

		var req OSVQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Package.Ecosystem != CratesIOEcosystem || req.Package.Name != "smallvec" || req.Version != "1.6.0" {
			t.Errorf("request = %+v", req)
		}

		response := OSVQueryResponse{
			Vulns: []OSVVulnerability{
				{
					ID:               "GHSA-43w2-9j62-hq99",
					Aliases:          []string{"RUSTSEC-2021-0003"},
					Summary:          "Buffer overflow in SmallVec::insert_many",
					DatabaseSpecific: OSVDatabaseSpecific{Severity: "critical"},
				},
				{
					ID:      "RUSTSEC-2021-0003",
					Summary: "Buffer overflow",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	gateway := NewOSVGateway(server.URL)
	dep := entities.DependencyRecord{Name: "smallvec", Version: "1.6.0"}

	advisories, err := gateway.QueryAdvisories(context.Background(), dep)
	if err != nil {
		t.Fatalf("QueryAdvisories failed: %v", err)
	}

	if len(advisories) != 2 {
		t.Fatalf("Expected 2 advisories, got: %d", len(advisories))
	}
	if advisories[0].Severity != "CRITICAL" {
		t.Errorf("Severity = %s, want CRITICAL", advisories[0].Severity)
	}
	if advisories[0].Aliases[0] != "RUSTSEC-2021-0003" {
		t.Errorf("Aliases = %v", advisories[0].Aliases)
	}
	if advisories[1].Severity != "UNKNOWN" {
		t.Errorf("Severity = %s, want UNKNOWN", advisories[1].Severity)
	}
	if advisories[1].Dependency != "smallvec" || advisories[1].Version != "1.6.0" {
		t.Errorf("advisory dependency = %s@%s", advisories[1].Dependency, advisories[1].Version)
	}
}

func TestOSVGateway_QueryAdvisories_None(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	advisories, err := NewOSVGateway(server.URL).QueryAdvisories(context.Background(), entities.DependencyRecord{Name: "serde", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("QueryAdvisories failed: %v", err)
	}
	if len(advisories) != 0 {
		t.Errorf("Expected no advisories, got %v", advisories)
	}
}

func TestOSVGateway_QueryAdvisories_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewOSVGateway(server.URL).QueryAdvisories(context.Background(), entities.DependencyRecord{Name: "serde", Version: "1.0.0"})
	if err == nil {
		t.Fatal("QueryAdvisories should fail on a non-200 response")
	}
}

func TestOSVGateway_QueryAdvisories_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"vulns": [`))
	}))
	defer server.Close()

	_, err := NewOSVGateway(server.URL).QueryAdvisories(context.Background(), entities.DependencyRecord{Name: "serde", Version: "1.0.0"})
	if err == nil {
		t.Fatal("QueryAdvisories should fail on malformed JSON")
	}
}
