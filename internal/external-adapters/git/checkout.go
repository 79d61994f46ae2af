// Package git produces isolated source checkouts with go-git.
package git

import (
	"context"
	stderrors "errors"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/pkg/errors"
)

// Checkout clones repositories into private directories
type Checkout struct{}

// NewCheckout creates a checkout gateway
func NewCheckout() *Checkout {
	return &Checkout{}
}

// Checkout clones repository into dir and checks out revision, which may be
// a commit hash, branch or tag. An empty revision keeps the default branch.
// Anything already in dir is removed first. The resolved commit hash is
// returned.
func (c *Checkout) Checkout(ctx context.Context, repository, revision, dir string) (string, error) {
	if repository == "" {
		return "", errors.New("no repository configured")
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", errors.Wrapf(err, "failed to clear %s", dir)
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  repository,
		Tags: git.AllTags,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to clone %s", repository)
	}

	rev := revision
	if rev == "" {
		rev = "HEAD"
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve revision %s", rev)
	}
	// Annotated tag objects are peeled to their commit
	if tag, err := repo.TagObject(*hash); err == nil {
		commit, err := tag.Commit()
		if err != nil {
			return "", errors.Wrapf(err, "failed to peel tag %s", tag.Name)
		}
		hash = &commit.Hash
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(err, "failed to get worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", errors.Wrapf(err, "failed to checkout %s", hash)
	}
	return hash.String(), nil
}

// Resolve returns the commit hash revision names in repository without
// cloning it. Full hashes are returned unchanged; branches and tags are
// looked up among the advertised references. Annotated tags are peeled to
// their commit, matching Checkout.
func (c *Checkout) Resolve(ctx context.Context, repository, revision string) (string, error) {
	if repository == "" {
		return "", errors.New("no repository configured")
	}
	if plumbing.IsHash(revision) {
		return revision, nil
	}

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{repository},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{PeelingOption: git.AppendPeeled})
	if err != nil {
		return "", errors.Wrapf(err, "failed to list references of %s", repository)
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	candidates := []plumbing.ReferenceName{plumbing.HEAD}
	if revision != "" {
		candidates = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(revision),
			plumbing.NewTagReferenceName(revision),
			plumbing.ReferenceName(revision),
		}
	}
	for _, name := range candidates {
		ref, ok := byName[name]
		// Symbolic HEAD points at the default branch
		for ok && ref.Type() == plumbing.SymbolicReference {
			ref, ok = byName[ref.Target()]
		}
		if !ok {
			continue
		}
		if !ref.Name().IsTag() {
			return ref.Hash().String(), nil
		}
		if peeled, ok := byName[ref.Name()+peeledSuffix]; ok {
			return peeled.Hash().String(), nil
		}
		return peelTag(ctx, repository, ref)
	}
	return "", errors.Errorf("revision %q not found in %s", revision, repository)
}

// peeledSuffix marks the advertised commit of an annotated tag
const peeledSuffix = "^{}"

// peelTag fetches a tag the remote advertised without its peeled commit
// and returns the commit it names. Lightweight tags name the commit
// directly.
func peelTag(ctx context.Context, repository string, ref *plumbing.Reference) (string, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:           repository,
		ReferenceName: ref.Name(),
		SingleBranch:  true,
		NoCheckout:    true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to fetch tag %s", ref.Name().Short())
	}
	tag, err := repo.TagObject(ref.Hash())
	if stderrors.Is(err, plumbing.ErrObjectNotFound) {
		return ref.Hash().String(), nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read tag %s", ref.Name().Short())
	}
	commit, err := tag.Commit()
	if err != nil {
		return "", errors.Wrapf(err, "failed to peel tag %s", ref.Name().Short())
	}
	return commit.Hash.String(), nil
}
