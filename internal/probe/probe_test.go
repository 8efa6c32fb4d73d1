package probe

import (
	"context"
	"testing"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
)

func TestVerifyMissingToolReturnsToolMissing(t *testing.T) {
	// PATH is not touched, so real-world test hosts almost never carry
	// kinit/klist/kdestroy/ldapsearch/realm; any failure here must classify
	// as KindToolMissing regardless of which tool is absent.
	err := Verify(context.Background(), Options{DecoderPath: "/nonexistent/decoder"})
	if err == nil {
		t.Skip("all tools present on this host; nothing to assert")
	}
	if !cferrors.Is(err, cferrors.KindToolMissing) {
		t.Errorf("Verify error kind = %v, want KindToolMissing", err)
	}
}

func TestVerifyRequiresDecoderPath(t *testing.T) {
	err := Verify(context.Background(), Options{})
	if err == nil {
		t.Fatal("Verify: want error when DecoderPath is empty")
	}
	if !cferrors.Is(err, cferrors.KindToolMissing) {
		t.Errorf("Verify error kind = %v, want KindToolMissing", err)
	}
}
