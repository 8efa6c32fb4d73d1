package leasestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestCreateThenForLease(t *testing.T) {
	root := t.TempDir()
	s := New(root, fixedClock{t: time.Date(2024, 4, 12, 18, 0, 0, 0, time.UTC)})

	md := kerbtypes.LeaseMetadata{
		ServiceAccountName: "webapp01",
		DomainName:         "contoso.com",
		KrbFilePath:        filepath.Join(root, "lease-001", "krb5_cc"),
	}
	if err := s.Create("lease-001", md); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.ForLease("lease-001")
	if err != nil {
		t.Fatalf("ForLease: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ForLease returned %d entries, want 1", len(got))
	}
	if got[0].ServiceAccountName != "webapp01" {
		t.Errorf("ServiceAccountName = %q", got[0].ServiceAccountName)
	}
	if got[0].LeaseID != "lease-001" {
		t.Errorf("LeaseID = %q, want lease-001", got[0].LeaseID)
	}
	if got[0].CreatedAt == "" {
		t.Error("CreatedAt was not populated")
	}
}

func TestCreateConflict(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	md := kerbtypes.LeaseMetadata{ServiceAccountName: "webapp01", DomainName: "contoso.com"}

	if err := s.Create("lease-001", md); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create("lease-001", md); err != ErrConflict {
		t.Errorf("second Create error = %v, want ErrConflict", err)
	}
}

func TestForLeaseTolerantOfGarbageFiles(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	md := kerbtypes.LeaseMetadata{ServiceAccountName: "webapp01", DomainName: "contoso.com"}
	if err := s.Create("lease-001", md); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := os.WriteFile(filepath.Join(s.LeaseDir("lease-001"), "not_metadata.txt"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.LeaseDir("lease-001"), "broken_metadata"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := s.ForLease("lease-001")
	if err != nil {
		t.Fatalf("ForLease: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ForLease returned %d entries, want 1 (garbage/malformed skipped)", len(got))
	}
}

func TestListAcrossLeases(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	if err := s.Create("lease-001", kerbtypes.LeaseMetadata{ServiceAccountName: "webapp01", DomainName: "contoso.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Create("lease-002", kerbtypes.LeaseMetadata{ServiceAccountName: "webapp02", DomainName: "contoso.com"}); err != nil {
		t.Fatal(err)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(all))
	}
}

func TestDestroyRemovesDirectoryEvenOnPartialKdestroyFailure(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	leaseDir := s.LeaseDir("lease-X")

	if err := s.Create("lease-X", kerbtypes.LeaseMetadata{ServiceAccountName: "svc1", KrbFilePath: filepath.Join(leaseDir, "krb5_cc1")}); err != nil {
		t.Fatal(err)
	}

	log := logx.New("test")
	_, err := s.Destroy(context.Background(), log, "lease-X")
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, statErr := os.Stat(leaseDir); !os.IsNotExist(statErr) {
		t.Error("lease directory still exists after Destroy")
	}
}

func TestDestroyNonexistentLeaseIsNotAnError(t *testing.T) {
	root := t.TempDir()
	s := New(root, nil)
	log := logx.New("test")

	destroyed, err := s.Destroy(context.Background(), log, "never-existed")
	if err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if len(destroyed) != 0 {
		t.Errorf("destroyed = %v, want empty", destroyed)
	}
}
