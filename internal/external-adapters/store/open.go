package store

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"

	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// Options carries what the remote backends need beyond the location
type Options struct {
	GitHubToken   string
	GitHubAPIURL  string
	ShortRevision string
	Revision      string
	Logger        interfaces.Logger

	// NewGitHubGateway builds the GitHub client for github:// locations
	NewGitHubGateway func(token, apiURL string, logger interfaces.Logger) gateways.GitHubGateway
}

// Open returns the store for a location:
//
//	file://<dir>            local directory
//	gs://<bucket>/<prefix>  Google Cloud Storage
//	github://<owner>/<repo> assets of the release tagged distill-<revision>
//
// A bare path is treated as a local directory.
func Open(ctx context.Context, location string, opts Options) (gateways.ArtifactStore, error) {
	if !strings.Contains(location, "://") {
		return openLocal(location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing store location %s", location)
	}
	switch u.Scheme {
	case "file":
		return openLocal(filepath.Join(u.Host, u.Path))
	case "gs":
		return NewGCSStore(ctx, location)
	case "github":
		owner, repo := u.Host, strings.Trim(u.Path, "/")
		if owner == "" || repo == "" || strings.Contains(repo, "/") {
			return nil, errors.Errorf("invalid GitHub store location %s, want github://owner/repo", location)
		}
		if opts.ShortRevision == "" {
			return nil, errors.New("GitHub store requires a revision")
		}
		if opts.NewGitHubGateway == nil {
			return nil, errors.New("no GitHub client configured")
		}
		gateway := opts.NewGitHubGateway(opts.GitHubToken, opts.GitHubAPIURL, opts.Logger)
		return NewGitHubStore(gateway, owner, repo, ReleaseTag(opts.ShortRevision), opts.Revision), nil
	default:
		return nil, errors.Errorf("unsupported scheme: '%s'", u.Scheme)
	}
}

func openLocal(dir string) (gateways.ArtifactStore, error) {
	if dir == "" {
		return nil, errors.New("empty store directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating store directory %s", dir)
	}
	return NewFilesystemStore(osfs.New(dir)), nil
}
