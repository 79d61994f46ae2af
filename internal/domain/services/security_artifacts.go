package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/in-toto/in-toto-golang/in_toto"
	"github.com/in-toto/in-toto-golang/in_toto/slsa_provenance/common"
	slsa1 "github.com/in-toto/in-toto-golang/in_toto/slsa_provenance/v1"

	"github.com/ochairo/distill/internal/domain/entities"
)

// Provenance identifiers
const (
	BuilderID        = "https://github.com/ochairo/distill"
	BuildTypeRelease = "https://github.com/ochairo/distill/release@v1"
)

// SecurityArtifactsService generates checksum sidecars and provenance
// statements for published artifacts.
type SecurityArtifactsService struct {
	now func() time.Time
}

// NewSecurityArtifactsService creates a new security artifacts service
func NewSecurityArtifactsService() *SecurityArtifactsService {
	return &SecurityArtifactsService{now: time.Now}
}

// GenerateSHA256 writes a "<digest>  <name>" sidecar next to filePath and
// returns the digest and the sidecar path.
func (s *SecurityArtifactsService) GenerateSHA256(filePath, name string) (digest, sidecar string, err error) {
	digest, err = s.ComputeSHA256(filePath)
	if err != nil {
		return "", "", err
	}

	sidecar = filePath + ".sha256"
	content := fmt.Sprintf("%s  %s\n", digest, name)
	if err := os.WriteFile(sidecar, []byte(content), 0600); err != nil {
		return "", "", fmt.Errorf("failed to write SHA256 file: %w", err)
	}
	return digest, sidecar, nil
}

// ComputeSHA256 computes the hex SHA256 of a file
func (s *SecurityArtifactsService) ComputeSHA256(filePath string) (string, error) {
	//nolint:gosec // G304: filePath is an artifact produced by this run
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", filepath.Base(filePath), err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", filepath.Base(filePath), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReleaseParams are the external parameters recorded in the provenance
type ReleaseParams struct {
	Instance   string   `json:"instance"`
	Repository string   `json:"repository"`
	Revision   string   `json:"revision"`
	Targets    []string `json:"targets,omitempty"`
}

// ReleaseBuildDef defines what was built and from which source
type ReleaseBuildDef struct {
	BuildType            string                     `json:"buildType"`
	ExternalParameters   ReleaseParams              `json:"externalParameters"`
	ResolvedDependencies []slsa1.ResourceDescriptor `json:"resolvedDependencies,omitempty"`
}

// ReleaseRunDetails records who ran the build and when
type ReleaseRunDetails struct {
	Builder       slsa1.Builder       `json:"builder"`
	BuildMetadata slsa1.BuildMetadata `json:"metadata"`
}

// ReleasePredicate is the SLSA v1 predicate of a release run
type ReleasePredicate struct {
	BuildDefinition ReleaseBuildDef   `json:"buildDefinition"`
	RunDetails      ReleaseRunDetails `json:"runDetails"`
}

// ReleaseProvenance is an in-toto statement over the artifacts of one run
type ReleaseProvenance struct {
	in_toto.StatementHeader `json:",inline"`
	Predicate               ReleasePredicate `json:"predicate"`
}

// GenerateProvenance builds the provenance statement for the artifacts of
// a run. Every artifact must already carry its SHA256.
func (s *SecurityArtifactsService) GenerateProvenance(run *entities.PipelineRun, env entities.Environment, artifacts []entities.Artifact) (*ReleaseProvenance, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts to attest")
	}

	subjects := make([]in_toto.Subject, 0, len(artifacts))
	var targets []string
	for _, a := range artifacts {
		if a.SHA256 == "" {
			return nil, fmt.Errorf("artifact %s has no digest", a.Name)
		}
		subjects = append(subjects, in_toto.Subject{
			Name:   a.Name,
			Digest: common.DigestSet{"sha256": a.SHA256},
		})
		if a.Target != nil {
			targets = append(targets, a.Target.Triple)
		}
	}

	started := run.StartedAt
	finished := s.now().UTC()
	return &ReleaseProvenance{
		StatementHeader: in_toto.StatementHeader{
			Type:          in_toto.StatementInTotoV1,
			Subject:       subjects,
			PredicateType: slsa1.PredicateSLSAProvenance,
		},
		Predicate: ReleasePredicate{
			BuildDefinition: ReleaseBuildDef{
				BuildType: BuildTypeRelease,
				ExternalParameters: ReleaseParams{
					Instance:   run.Instance,
					Repository: env.Repository,
					Revision:   run.Revision,
					Targets:    targets,
				},
				ResolvedDependencies: []slsa1.ResourceDescriptor{{
					Name:   "git+" + env.Repository,
					Digest: common.DigestSet{"gitCommit": run.Revision},
				}},
			},
			RunDetails: ReleaseRunDetails{
				Builder: slsa1.Builder{ID: BuilderID},
				BuildMetadata: slsa1.BuildMetadata{
					InvocationID: run.ID,
					StartedOn:    &started,
					FinishedOn:   &finished,
				},
			},
		},
	}, nil
}

// ProvenanceName is the store name of the provenance statement of a run
func ProvenanceName(env entities.Environment, instance string) string {
	return fmt.Sprintf("provenance-%s-%s.intoto.json", env.ShortRevision(), instance)
}

// Marshal encodes the statement as indented JSON
func (p *ReleaseProvenance) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance: %w", err)
	}
	return data, nil
}
