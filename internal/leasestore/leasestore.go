// Package leasestore implements the Lease Store and Lease Destroyer: the
// on-disk directory tree of per-lease metadata and credential cache files,
// and the logic that tears a lease down.
package leasestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
)

// ErrConflict is returned by Create when the lease directory already
// exists. It is a single shared instance so callers can compare with ==.
var ErrConflict = cferrors.New(cferrors.KindIOError, "lease already exists")

// Store is the on-disk Lease Store rooted at KrbRoot.
type Store struct {
	krbRoot string
	clock   kerbtypes.Clock
	locks   sync.Map // leaseID -> *sync.Mutex
}

// New builds a Store rooted at krbRoot.
func New(krbRoot string, clock kerbtypes.Clock) *Store {
	if clock == nil {
		clock = kerbtypes.SystemClock{}
	}
	return &Store{krbRoot: krbRoot, clock: clock}
}

func (s *Store) lockFor(leaseID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(leaseID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// LeaseDir returns the on-disk directory for leaseID.
func (s *Store) LeaseDir(leaseID string) string {
	return filepath.Join(s.krbRoot, leaseID)
}

// Prepare creates the lease directory (it must not already exist) and
// returns its path, without writing any metadata. Engine callers use this
// to obtain a directory to materialize credential cache files into before
// the lease is durable; WriteMetadata (or Create) finishes the job. Returns
// ErrConflict if the lease directory already exists.
func (s *Store) Prepare(leaseID string) (string, error) {
	mu := s.lockFor(leaseID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.LeaseDir(leaseID)
	if _, err := os.Stat(dir); err == nil {
		return "", ErrConflict
	} else if !os.IsNotExist(err) {
		return "", cferrors.Wrap(cferrors.KindIOError, "stat lease directory", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", cferrors.Wrap(cferrors.KindIOError, "create lease directory", err)
	}
	return dir, nil
}

// WriteMetadata writes md's metadata file atomically into leaseID's
// directory, which must already exist (see Prepare).
func (s *Store) WriteMetadata(leaseID string, md kerbtypes.LeaseMetadata) error {
	mu := s.lockFor(leaseID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.LeaseDir(leaseID)
	md.LeaseID = leaseID
	if md.CreatedAt == "" {
		md.CreatedAt = s.clock.Now().Format("2006-01-02T15:04:05Z07:00")
	}
	return writeMetadataAtomic(dir, md)
}

// Create is Prepare followed by WriteMetadata, rolling back the directory
// if metadata can't be written. Returns ErrConflict if the lease directory
// already exists.
func (s *Store) Create(leaseID string, md kerbtypes.LeaseMetadata) error {
	dir, err := s.Prepare(leaseID)
	if err != nil {
		return err
	}
	if err := s.WriteMetadata(leaseID, md); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}
	return nil
}

// metadataPath derives a principal's metadata filename from its service
// account name, per the §6 filesystem layout (<principal>_metadata).
func metadataPath(dir, serviceAccountName string) string {
	return filepath.Join(dir, serviceAccountName+kerbtypes.MetadataSuffix)
}

func writeMetadataAtomic(dir string, md kerbtypes.LeaseMetadata) error {
	body, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return cferrors.Wrap(cferrors.KindIOError, "marshal lease metadata", err)
	}

	final := metadataPath(dir, md.ServiceAccountName)
	tmp, err := os.CreateTemp(dir, ".tmp-*"+kerbtypes.MetadataSuffix)
	if err != nil {
		return cferrors.Wrap(cferrors.KindIOError, "create temp metadata file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return cferrors.Wrap(cferrors.KindIOError, "write temp metadata file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return cferrors.Wrap(cferrors.KindIOError, "close temp metadata file", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return cferrors.Wrap(cferrors.KindIOError, "rename metadata file into place", err)
	}
	return nil
}

// List returns every LeaseMetadata found under the Lease Store root,
// tolerating partially-written directories by skipping anything that
// isn't a well-formed *_metadata file.
func (s *Store) List() ([]kerbtypes.LeaseMetadata, error) {
	entries, err := os.ReadDir(s.krbRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, cferrors.Wrap(cferrors.KindIOError, "read lease store root", err)
	}

	var all []kerbtypes.LeaseMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		md, err := s.ForLease(e.Name())
		if err != nil {
			continue
		}
		all = append(all, md...)
	}
	return all, nil
}

// ForLease returns every LeaseMetadata for a single lease.
func (s *Store) ForLease(leaseID string) ([]kerbtypes.LeaseMetadata, error) {
	dir := s.LeaseDir(leaseID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, cferrors.New(cferrors.KindIOError, "lease not found")
	}
	if err != nil {
		return nil, cferrors.Wrap(cferrors.KindIOError, "read lease directory", err)
	}

	var out []kerbtypes.LeaseMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), kerbtypes.MetadataSuffix) || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var md kerbtypes.LeaseMetadata
		if err := json.Unmarshal(body, &md); err != nil {
			continue
		}
		out = append(out, md)
	}
	return out, nil
}

// Destroy runs kdestroy against every credential cache referenced by
// leaseID's metadata, then removes the lease directory recursively
// regardless of individual kdestroy failures. It returns the cache paths
// successfully destroyed.
func (s *Store) Destroy(ctx context.Context, log logx.Logger, leaseID string) ([]string, error) {
	mu := s.lockFor(leaseID)
	mu.Lock()
	defer mu.Unlock()

	dir := s.LeaseDir(leaseID)
	metas, err := s.ForLease(leaseID)
	if err != nil {
		// Nothing to destroy is still success: the directory is already
		// gone, which is the postcondition Destroy promises.
		if _, statErr := os.Stat(dir); os.IsNotExist(statErr) {
			return nil, nil
		}
	}

	var destroyed []string
	for _, md := range metas {
		res, kerr := execx.RunEnv(ctx, map[string]string{"KRB5CCNAME": md.KrbFilePath}, "kdestroy")
		if kerr != nil || res.ExitCode != 0 {
			logx.Warn(log, "kdestroy failed for cache", "path", md.KrbFilePath)
			continue
		}
		destroyed = append(destroyed, md.KrbFilePath)
	}

	if rmErr := os.RemoveAll(dir); rmErr != nil {
		return destroyed, cferrors.Wrap(cferrors.KindIOError, "remove lease directory", rmErr)
	}
	return destroyed, nil
}
