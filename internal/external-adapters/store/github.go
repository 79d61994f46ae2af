package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// GitHubStore stores artifacts as assets of one GitHub release. The release
// is created on the first upload.
type GitHubStore struct {
	gateway  gateways.GitHubGateway
	owner    string
	repo     string
	tag      string
	revision string

	mu      sync.Mutex
	release *gateways.GitHubRelease
}

var _ gateways.ArtifactStore = &GitHubStore{}

// ReleaseTag is the tag of the release that holds a revision's artifacts
func ReleaseTag(shortRevision string) string {
	return "distill-" + shortRevision
}

// NewGitHubStore creates a store over the release tagged tag in owner/repo.
// revision is the commit a newly created release points at.
func NewGitHubStore(gateway gateways.GitHubGateway, owner, repo, tag, revision string) *GitHubStore {
	return &GitHubStore{gateway: gateway, owner: owner, repo: repo, tag: tag, revision: revision}
}

// lookup returns the release, creating it when create is set
func (s *GitHubStore) lookup(ctx context.Context, create bool) (*gateways.GitHubRelease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		return s.release, nil
	}

	release, err := s.gateway.GetRelease(ctx, s.owner, s.repo, s.tag)
	if stderrors.Is(err, gateways.ErrReleaseNotFound) && create {
		release, err = s.gateway.CreateRelease(ctx, s.owner, s.repo, &gateways.GitHubRelease{
			TagName:         s.tag,
			TargetCommitish: s.revision,
			Name:            s.tag,
			Body:            fmt.Sprintf("Release artifacts for %s", s.revision),
			Prerelease:      true,
		})
	}
	if err != nil {
		return nil, err
	}
	s.release = release
	return release, nil
}

// Put uploads content as a release asset named name
func (s *GitHubStore) Put(ctx context.Context, name string, content io.Reader) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	release, err := s.lookup(ctx, true)
	if err != nil {
		return errors.Wrapf(err, "resolving release %s", s.tag)
	}
	if _, err := s.gateway.UploadAsset(ctx, release.UploadURL, name, content); err != nil {
		return errors.Wrapf(err, "uploading %s", name)
	}
	return nil
}

func (s *GitHubStore) assets(ctx context.Context) ([]*gateways.GitHubAsset, error) {
	release, err := s.lookup(ctx, false)
	if stderrors.Is(err, gateways.ErrReleaseNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "resolving release %s", s.tag)
	}
	assets, err := s.gateway.ListReleaseAssets(ctx, s.owner, s.repo, release.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing assets of %s", s.tag)
	}
	return assets, nil
}

// Get downloads the asset named name
func (s *GitHubStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	assets, err := s.assets(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Name == name {
			rc, err := s.gateway.DownloadAsset(ctx, s.owner, s.repo, a.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "downloading %s", name)
			}
			return rc, nil
		}
	}
	return nil, errors.Wrapf(gateways.ErrArtifactNotFound, "%s in release %s", name, s.tag)
}

// Delete removes every asset named name
func (s *GitHubStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	assets, err := s.assets(ctx)
	if err != nil {
		return err
	}
	for _, a := range assets {
		if a.Name != name {
			continue
		}
		if err := s.gateway.DeleteAsset(ctx, s.owner, s.repo, a.ID); err != nil {
			return errors.Wrapf(err, "deleting %s", name)
		}
	}
	return nil
}

// List returns the sorted asset names starting with prefix
func (s *GitHubStore) List(ctx context.Context, prefix string) ([]string, error) {
	assets, err := s.assets(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, a := range assets {
		if strings.HasPrefix(a.Name, prefix) {
			names = append(names, a.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
