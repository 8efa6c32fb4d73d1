package materializer

import (
	"context"
	"testing"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
)

func TestValidateCachePathRejectsRelative(t *testing.T) {
	err := validateCachePath("relative/path", "/var/credentials_fetcher/krb_dir/lease-001")
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
}

func TestValidateCachePathRejectsEscape(t *testing.T) {
	err := validateCachePath("/var/credentials_fetcher/krb_dir/lease-002/krb5_cc", "/var/credentials_fetcher/krb_dir/lease-001")
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
}

func TestValidateCachePathAccepts(t *testing.T) {
	err := validateCachePath("/var/credentials_fetcher/krb_dir/lease-001/krb5_cc", "/var/credentials_fetcher/krb_dir/lease-001")
	if err != nil {
		t.Errorf("validateCachePath: %v", err)
	}
}

func TestMaterializeZeroesBlobOnValidationFailure(t *testing.T) {
	blob := kerbtypes.NewManagedPasswordBlob(make([]byte, kerbtypes.GMSAPasswordSize), 0, kerbtypes.GMSAPasswordSize)
	err := Materialize(context.Background(), "/nonexistent/decoder", blob, "webapp01$@CONTOSO.COM", "relative", "/var/credentials_fetcher/krb_dir/lease-001")
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
	if blob.CurrentPassword() != nil {
		t.Error("blob was not zeroed after validation failure")
	}
}
