package kerbtypes

import "testing"

func TestMachinePrincipalTruncatesLongHostname(t *testing.T) {
	ref, truncated := MachinePrincipal("very-long-hostname-that-exceeds-the-limit", "contoso.com")
	if !truncated {
		t.Fatal("truncated = false, want true")
	}
	if ref.ShortHost != "very-long-hostn" {
		t.Errorf("ShortHost = %q, want %q", ref.ShortHost, "very-long-hostn")
	}
	if len(ref.ShortHost) != HostNameLengthLimit {
		t.Errorf("len(ShortHost) = %d, want %d", len(ref.ShortHost), HostNameLengthLimit)
	}
}

func TestMachinePrincipalDoesNotTruncateShortHostname(t *testing.T) {
	ref, truncated := MachinePrincipal("webapp01", "contoso.com")
	if truncated {
		t.Fatal("truncated = true, want false")
	}
	if ref.ShortHost != "webapp01" {
		t.Errorf("ShortHost = %q, want %q", ref.ShortHost, "webapp01")
	}
}
