package renewal

import (
	"context"
	"testing"
	"time"

	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/leasestore"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
)

func TestGroupByCache(t *testing.T) {
	mds := []kerbtypes.LeaseMetadata{
		{LeaseID: "lease-001", ServiceAccountName: "webapp01", KrbFilePath: "/krb/lease-001/krb5_cc"},
		{LeaseID: "lease-002", ServiceAccountName: "webapp02", KrbFilePath: "/krb/lease-002/krb5_cc"},
	}
	groups := groupByCache(mds)
	if len(groups) != 2 {
		t.Fatalf("groupByCache returned %d groups, want 2", len(groups))
	}
}

func TestGroupByCacheStableOrder(t *testing.T) {
	mds := []kerbtypes.LeaseMetadata{
		{KrbFilePath: "/krb/a/krb5_cc"},
		{KrbFilePath: "/krb/b/krb5_cc"},
		{KrbFilePath: "/krb/a/krb5_cc"},
	}
	groups := groupByCache(mds)
	if len(groups) != 2 {
		t.Fatalf("groupByCache returned %d groups, want 2", len(groups))
	}
	if groups[0].CachePath != "/krb/a/krb5_cc" || len(groups[0].Metas) != 2 {
		t.Errorf("groups[0] = %+v, want /krb/a/krb5_cc with 2 entries", groups[0])
	}
}

func TestStateForIsIdempotent(t *testing.T) {
	s := New(leasestore.New(t.TempDir(), nil), nil, logx.New("test"), Config{TickInterval: time.Minute, RenewWindow: time.Hour})
	first := s.stateFor("/krb/lease-001/krb5_cc")
	second := s.stateFor("/krb/lease-001/krb5_cc")
	if first != second {
		t.Error("stateFor returned different pointers for the same cache path")
	}
}

func TestRunCycleIdempotentWhenNoLeases(t *testing.T) {
	store := leasestore.New(t.TempDir(), nil)
	s := New(store, nil, logx.New("test"), Config{TickInterval: time.Minute, RenewWindow: time.Hour, MaxConcurrent: 4})

	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	// A second invocation with no clock change and no leases still does
	// nothing — the idempotent-renewal property holds trivially here.
	if err := s.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
}

func TestProcessGroupSkipsCycleWhenKlistUnavailable(t *testing.T) {
	store := leasestore.New(t.TempDir(), nil)
	s := New(store, nil, logx.New("test"), Config{TickInterval: time.Minute, RenewWindow: time.Hour, MaxConcurrent: 4})

	grp := group{CachePath: "/krb/lease-001/krb5_cc", Metas: []kerbtypes.LeaseMetadata{
		{LeaseID: "lease-001", ServiceAccountName: "webapp01", DomainName: "contoso.com", KrbFilePath: "/krb/lease-001/krb5_cc"},
	}}
	s.processGroup(context.Background(), grp)

	state := s.stateFor(grp.CachePath)
	if state.Phase == kerbtypes.PhaseTerminal {
		t.Error("phase should not reach TERMINAL from a klist failure alone")
	}
}
