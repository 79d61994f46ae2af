package gateways

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ochairo/distill/internal/domain/entities"
)

// CratesIOEcosystem is the OSV ecosystem name of crates.io packages
const CratesIOEcosystem = "crates.io"

// osvGateway queries the OSV database over its HTTP API
type osvGateway struct {
	apiURL     string
	httpClient *http.Client
}

// NewOSVGateway creates a new OSV gateway. An empty apiURL selects the public
// OSV endpoint.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewOSVGateway(apiURL string) *osvGateway {
	if apiURL == "" {
		apiURL = "https://api.osv.dev/v1/query"
	}
	return &osvGateway{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// QueryAdvisories returns the advisories affecting one crate version
func (g *osvGateway) QueryAdvisories(ctx context.Context, dep entities.DependencyRecord) ([]entities.Advisory, error) {
	payload := OSVQueryRequest{
		Package: OSVPackage{
			Name:      dep.Name,
			Ecosystem: CratesIOEcosystem,
		},
		Version: dep.Version,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OSV API request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("OSV API returned status %d for %s: %s", resp.StatusCode, dep.Key(), strings.TrimSpace(string(msg)))
	}

	var osvResp OSVQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&osvResp); err != nil {
		return nil, fmt.Errorf("failed to parse OSV response: %w", err)
	}

	advisories := make([]entities.Advisory, 0, len(osvResp.Vulns))
	for _, vuln := range osvResp.Vulns {
		advisories = append(advisories, entities.Advisory{
			ID:         vuln.ID,
			Aliases:    vuln.Aliases,
			Summary:    vuln.Summary,
			Severity:   g.extractSeverity(vuln),
			Dependency: dep.Name,
			Version:    dep.Version,
		})
	}
	return advisories, nil
}

// extractSeverity prefers the database severity label; OSV entries for
// crates rarely carry one, in which case the severity is UNKNOWN.
func (g *osvGateway) extractSeverity(vuln OSVVulnerability) string {
	if s := strings.ToUpper(vuln.DatabaseSpecific.Severity); s != "" {
		return s
	}
	return "UNKNOWN"
}

// OSV API request/response types

// OSVQueryRequest represents a query to the OSV API for vulnerability information.
type OSVQueryRequest struct {
	Package OSVPackage `json:"package"`
	Version string     `json:"version"`
}

// OSVPackage identifies a software package in a specific ecosystem.
type OSVPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

// OSVQueryResponse contains the vulnerability results from the OSV API.
type OSVQueryResponse struct {
	Vulns []OSVVulnerability `json:"vulns"`
}

// OSVVulnerability represents a single vulnerability from the OSV database.
type OSVVulnerability struct {
	ID               string              `json:"id"`
	Aliases          []string            `json:"aliases,omitempty"`
	Summary          string              `json:"summary"`
	Details          string              `json:"details"`
	Severity         []OSVSeverity       `json:"severity,omitempty"`
	DatabaseSpecific OSVDatabaseSpecific `json:"database_specific,omitempty"`
}

// OSVSeverity contains severity scoring information for a vulnerability.
type OSVSeverity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

// OSVDatabaseSpecific holds the fields a source database adds to an entry.
type OSVDatabaseSpecific struct {
	Severity string `json:"severity,omitempty"`
}
