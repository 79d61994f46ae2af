// Package store implements artifact stores keyed by artifact name: a local
// directory, a Google Cloud Storage prefix and GitHub release assets.
package store

import (
	"bytes"
	"context"
	"encoding/hex"
	stderrors "errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// Hidden directories next to the artifacts. indexDir holds one BLAKE3
// digest file per stored artifact.
const (
	indexDir = ".index"
	tempDir  = ".tmp"
)

// ErrDigestMismatch is returned when stored content no longer matches the
// digest recorded at upload
var ErrDigestMismatch = stderrors.New("artifact digest mismatch")

// FilesystemStore stores artifacts as flat files in a billy.Filesystem and
// verifies them against a BLAKE3 index on read.
type FilesystemStore struct {
	fs billy.Filesystem
}

// NewFilesystemStore creates a store rooted at fs
func NewFilesystemStore(fs billy.Filesystem) *FilesystemStore {
	return &FilesystemStore{fs: fs}
}

var _ gateways.ArtifactStore = &FilesystemStore{}

// ValidateName rejects names that are not a single path element
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("empty artifact name")
	case strings.HasPrefix(name, "."):
		return errors.Errorf("artifact name %q must not start with a dot", name)
	case strings.ContainsAny(name, `/\`):
		return errors.Errorf("artifact name %q must not contain a path separator", name)
	}
	return nil
}

func indexPath(name string) string {
	return path.Join(indexDir, name+".b3")
}

// Put writes content under name. The file appears atomically once fully
// written.
func (s *FilesystemStore) Put(_ context.Context, name string, content io.Reader) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(tempDir, 0o755); err != nil {
		return errors.Wrap(err, "creating temp directory")
	}
	tmp, err := util.TempFile(s.fs, tempDir, name+"-")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", name)
	}
	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), content); err != nil {
		//nolint:errcheck // Best effort cleanup
		tmp.Close()
		//nolint:errcheck // Best effort cleanup
		s.fs.Remove(tmp.Name())
		return errors.Wrapf(err, "writing %s", name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", name)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if err := s.fs.MkdirAll(indexDir, 0o755); err != nil {
		return errors.Wrap(err, "creating index directory")
	}
	if err := util.WriteFile(s.fs, indexPath(name), []byte(digest+"\n"), 0o644); err != nil {
		return errors.Wrapf(err, "writing index entry for %s", name)
	}
	if err := s.fs.Rename(tmp.Name(), name); err != nil {
		return errors.Wrapf(err, "renaming %s into place", name)
	}
	return nil
}

// Get returns the content stored under name after checking it against the
// recorded digest.
func (s *FilesystemStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := util.ReadFile(s.fs, name)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			err = stderrors.Join(err, gateways.ErrArtifactNotFound)
		}
		return nil, errors.Wrapf(err, "reading %s", name)
	}

	recorded, err := util.ReadFile(s.fs, indexPath(name))
	if err != nil {
		return nil, errors.Wrapf(err, "reading index entry for %s", name)
	}
	sum := blake3.Sum256(data)
	if hex.EncodeToString(sum[:]) != strings.TrimSpace(string(recorded)) {
		return nil, errors.Wrapf(ErrDigestMismatch, "%s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes name and its index entry
func (s *FilesystemStore) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	for _, p := range []string{name, indexPath(name)} {
		if err := s.fs.Remove(p); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "removing %s", p)
		}
	}
	return nil
}

// List returns the sorted names starting with prefix
func (s *FilesystemStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := s.fs.ReadDir(".")
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "listing %s", s.fs.Root())
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
