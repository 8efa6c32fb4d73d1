package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/kerbauth"
	"github.com/credsfetcher/credsfetcherd/internal/leasestore"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
)

func newTestEngine(t *testing.T) (*Engine, *leasestore.Store) {
	t.Helper()
	store := leasestore.New(t.TempDir(), nil)
	e := New(store, logx.New("test"), Config{DecoderPath: "/bin/cat"})
	return e, store
}

func TestCreateLeaseRejectsInvalidLeaseID(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateLease(context.Background(), CreateLeaseRequest{
		LeaseID:            "lease;rm -rf",
		Domain:             "contoso.com",
		ServiceAccountName: "webapp01",
	})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Fatalf("error = %v, want KindInvalidInput", err)
	}
}

func TestCreateLeaseRejectsInvalidDomain(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateLease(context.Background(), CreateLeaseRequest{
		LeaseID:            "lease-001",
		Domain:             ".contoso.com",
		ServiceAccountName: "webapp01",
	})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Fatalf("error = %v, want KindInvalidInput", err)
	}
}

func TestCreateLeaseUserDirectRequiresUsername(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateLease(context.Background(), CreateLeaseRequest{
		LeaseID:            "lease-001",
		Domain:             "contoso.com",
		ServiceAccountName: "webapp01",
		Mode:               kerbauth.ModeUserDirect,
	})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Fatalf("error = %v, want KindInvalidInput", err)
	}
}

func TestCreateLeaseConflictSurfacesErrConflict(t *testing.T) {
	e, store := newTestEngine(t)
	if _, err := store.Prepare("lease-001"); err != nil {
		t.Fatal(err)
	}

	_, err := e.CreateLease(context.Background(), CreateLeaseRequest{
		LeaseID:            "lease-001",
		Domain:             "contoso.com",
		ServiceAccountName: "webapp01",
	})
	if err != leasestore.ErrConflict {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

// TestCreateLeaseCleansUpDirOnFailure exercises the probe/tool-missing
// failure path (no real kinit/klist/ldapsearch environment is assumed) and
// asserts the lease directory created by Prepare is rolled back rather than
// left as a half-formed lease.
func TestCreateLeaseCleansUpDirOnFailure(t *testing.T) {
	root := t.TempDir()
	store := leasestore.New(root, nil)
	e := New(store, logx.New("test"), Config{DecoderPath: "/nonexistent/decoder"})

	_, err := e.CreateLease(context.Background(), CreateLeaseRequest{
		LeaseID:            "lease-001",
		Domain:             "contoso.com",
		ServiceAccountName: "webapp01",
	})
	if !cferrors.Is(err, cferrors.KindToolMissing) {
		t.Fatalf("error = %v, want KindToolMissing", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "lease-001")); !os.IsNotExist(statErr) {
		t.Error("lease directory was not cleaned up after failure")
	}
}

func TestDeleteLeaseNonexistentIsNotAnError(t *testing.T) {
	e, _ := newTestEngine(t)
	destroyed, err := e.DeleteLease(context.Background(), "never-existed")
	if err != nil {
		t.Fatalf("DeleteLease: %v", err)
	}
	if len(destroyed) != 0 {
		t.Errorf("destroyed = %v, want empty", destroyed)
	}
}

func TestDeleteLeaseRejectsInvalidLeaseID(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.DeleteLease(context.Background(), "lease;rm")
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Fatalf("error = %v, want KindInvalidInput", err)
	}
}

func TestListLeasesEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	all, err := e.ListLeases()
	if err != nil {
		t.Fatalf("ListLeases: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("ListLeases = %v, want empty", all)
	}
}
