package kerbauth

import (
	"context"
	"testing"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
)

func TestEnsureTGTUnknownMode(t *testing.T) {
	err := EnsureTGT(context.Background(), Mode(99), Params{})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
}

func TestEnsureTGTUserFromBrokerRequiresBroker(t *testing.T) {
	err := EnsureTGT(context.Background(), ModeUserFromBroker, Params{Realm: "CONTOSO.COM"})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
}

func TestEnsureTGTUserDirectRequiresPassword(t *testing.T) {
	err := EnsureTGT(context.Background(), ModeUserDirect, Params{Realm: "CONTOSO.COM", Username: "svc"})
	if !cferrors.Is(err, cferrors.KindInvalidInput) {
		t.Errorf("error kind = %v, want KindInvalidInput", err)
	}
}

func TestValidateMachineKeytabMissingFile(t *testing.T) {
	err := validateMachineKeytab("/nonexistent/krb5.keytab", "CONTOSO.COM")
	if !cferrors.Is(err, cferrors.KindToolMissing) {
		t.Errorf("error kind = %v, want KindToolMissing", err)
	}
}
