// Package renewal implements the Renewal Scheduler: the central
// per-ticket state machine that periodically scans the Lease Store,
// parses klist output, and re-invokes the gMSA Password Fetcher and
// Ticket Materializer for any ticket inside its renewal window.
package renewal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/dclocate"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/gmsafetch"
	"github.com/credsfetcher/credsfetcherd/internal/kerbauth"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/leasestore"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
	"github.com/credsfetcher/credsfetcherd/internal/materializer"
	"github.com/credsfetcher/credsfetcherd/internal/metrics"
	"github.com/credsfetcher/credsfetcherd/internal/probe"
	"github.com/credsfetcher/credsfetcherd/internal/secretbroker"
)

// Config bundles a Scheduler's tunables. Every field here maps to a
// spec-named "implementation-tunable" default.
type Config struct {
	TickInterval     time.Duration
	RenewWindow      time.Duration
	MaxConcurrent    int
	DecoderPath      string
	GMSAOU           string
	GMSABaseDN       string
	DCOverride       string
	Nameserver       string
	SecretID         string
	Broker           secretbroker.Broker
	Resolver         dclocate.Resolver
}

// Scheduler runs the renewal tick loop and tracks per-cache RenewalState
// in memory between ticks.
type Scheduler struct {
	store  *leasestore.Store
	clock  kerbtypes.Clock
	log    logx.Logger
	cfg    Config

	states sync.Map // cachePath -> *kerbtypes.RenewalState

	cycleSem chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// New builds a Scheduler over store.
func New(store *leasestore.Store, clock kerbtypes.Clock, log logx.Logger, cfg Config) *Scheduler {
	if clock == nil {
		clock = kerbtypes.SystemClock{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Scheduler{
		store:    store,
		clock:    clock,
		log:      log,
		cfg:      cfg,
		cycleSem: make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the tick loop until Stop is called. Ticks that arrive while
// the previous cycle is still running are skipped and logged, never
// overlapped.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			select {
			case s.cycleSem <- struct{}{}:
				go func() {
					defer func() { <-s.cycleSem }()
					s.RunCycle(ctx)
				}()
			default:
				logx.Warn(s.log, "renewal cycle skipped: previous cycle still running")
			}
		}
	}
}

// Stop signals the tick loop to exit and waits for it to do so.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunCycle lists every lease's metadata, groups by credential cache file,
// and processes each group, fanning out across groups up to MaxConcurrent
// at a time. A RunCycle-level context cancellation is checked between
// groups, not mid-group.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	all, err := s.store.List()
	if err != nil {
		logx.Err(s.log, "renewal cycle: failed to list leases", "error", err.Error())
		return err
	}

	groups := groupByCache(all)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			s.processGroup(gctx, group)
			return nil
		})
	}
	return g.Wait()
}

// group is one credential cache and the metadata entries that reference
// it (ordinarily exactly one principal per cache).
type group struct {
	CachePath string
	Metas     []kerbtypes.LeaseMetadata
}

func groupByCache(all []kerbtypes.LeaseMetadata) []group {
	index := map[string]*group{}
	var order []string
	for _, md := range all {
		g, ok := index[md.KrbFilePath]
		if !ok {
			g = &group{CachePath: md.KrbFilePath}
			index[md.KrbFilePath] = g
			order = append(order, md.KrbFilePath)
		}
		g.Metas = append(g.Metas, md)
	}
	out := make([]group, 0, len(order))
	for _, path := range order {
		out = append(out, *index[path])
	}
	return out
}

// stateFor returns (creating if absent) the in-memory RenewalState for a
// cache path.
func (s *Scheduler) stateFor(cachePath string) *kerbtypes.RenewalState {
	v, _ := s.states.LoadOrStore(cachePath, &kerbtypes.RenewalState{CachePath: cachePath, Phase: kerbtypes.PhaseFresh})
	return v.(*kerbtypes.RenewalState)
}

// processGroup implements one ticket's slice of the FSM in §4.8.
func (s *Scheduler) processGroup(ctx context.Context, grp group) {
	if len(grp.Metas) == 0 {
		return
	}
	md := grp.Metas[0]
	state := s.stateFor(grp.CachePath)

	if state.Phase == kerbtypes.PhaseTerminal {
		return
	}

	klistCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	res, err := execx.RunEnv(klistCtx, map[string]string{"KRB5CCNAME": grp.CachePath}, "klist")
	cancel()
	if err != nil || res.ExitCode != 0 {
		logx.Warn(s.log, "klist failed; skipping this cycle", "cache", grp.CachePath)
		return
	}

	renewUntil, ok := ParseRenewUntil(res.Stdout)
	if !ok {
		logx.Warn(s.log, "klist output unparseable; skipping this cycle", "cache", grp.CachePath)
		return
	}
	state.RenewUntil = renewUntil

	now := s.clock.Now()
	if renewUntil.Sub(now) > s.cfg.RenewWindow {
		state.Phase = kerbtypes.PhaseFresh
		return
	}

	state.Phase = kerbtypes.PhaseRenewing
	state.LastAttempt = now
	metrics.RenewalsTotal.WithLabelValues("renewing").Inc()

	if err := s.renewOnce(ctx, md); err != nil {
		s.handleRenewalFailure(ctx, md, state, err)
		return
	}

	state.Phase = kerbtypes.PhaseFresh
	state.ConsecutiveFailures = 0
	metrics.RenewalsTotal.WithLabelValues("fresh").Inc()
	logx.Info(s.log, "renewal succeeded", "cache", grp.CachePath)
}

func (s *Scheduler) handleRenewalFailure(ctx context.Context, md kerbtypes.LeaseMetadata, state *kerbtypes.RenewalState, err error) {
	metrics.RenewalFailuresTotal.WithLabelValues(string(kindOf(err))).Inc()

	if cferrors.Is(err, cferrors.KindAuthFailure) {
		if md.DomainlessUser == "" {
			state.Phase = kerbtypes.PhaseReauthMachine
		} else {
			state.Phase = kerbtypes.PhaseReauthUser
		}
		if reauthErr := s.reauth(ctx, md); reauthErr == nil {
			state.Phase = kerbtypes.PhaseRenewing
			if retryErr := s.renewOnce(ctx, md); retryErr == nil {
				state.Phase = kerbtypes.PhaseFresh
				state.ConsecutiveFailures = 0
				metrics.RenewalsTotal.WithLabelValues("fresh").Inc()
				logx.Info(s.log, "renewal succeeded after reauth", "cache", state.CachePath)
				return
			}
		}
	}

	state.ConsecutiveFailures++
	if state.ConsecutiveFailures >= 2 {
		state.Phase = kerbtypes.PhaseDegraded
		metrics.RenewalsTotal.WithLabelValues("degraded").Inc()
		logx.Err(s.log, "renewal entering degraded state", "cache", state.CachePath, "error", err.Error())
		return
	}
	logx.Warn(s.log, "renewal failed, will retry next cycle", "cache", state.CachePath, "error", err.Error())
}

func kindOf(err error) cferrors.Kind {
	if se, ok := cferrors.As(err); ok {
		return se.Kind()
	}
	return cferrors.KindIOError
}

// renewOnce re-invokes DC Locator + gMSA Password Fetcher + Ticket
// Materializer for a single principal, exactly the chain used at creation.
func (s *Scheduler) renewOnce(ctx context.Context, md kerbtypes.LeaseMetadata) error {
	locator := dclocate.New(s.cfg.Resolver, s.cfg.Nameserver, s.cfg.DCOverride)
	dcs, err := locator.Locate(ctx, md.DomainName)
	if err != nil {
		return err
	}

	blob, err := gmsafetch.Fetch(ctx, s.log, md.DomainName, md.ServiceAccountName, s.cfg.GMSAOU, dcs, s.cfg.GMSABaseDN, md.KrbFilePath)
	if err != nil {
		return err
	}

	domain := kerbtypes.NewDomainSpec(md.DomainName)
	principal := kerbtypes.GMSAPrincipal(md.ServiceAccountName, domain.Realm).String()
	leaseDir := s.store.LeaseDir(md.LeaseID)

	return materializer.Materialize(ctx, s.cfg.DecoderPath, blob, principal, md.KrbFilePath, leaseDir)
}

// reauth re-establishes the underlying machine or domainless-user TGT
// before a retried renewal attempt.
func (s *Scheduler) reauth(ctx context.Context, md kerbtypes.LeaseMetadata) error {
	if err := probe.Verify(ctx, probe.Options{DecoderPath: s.cfg.DecoderPath, Domain: md.DomainName}); err != nil {
		return err
	}

	domain := kerbtypes.NewDomainSpec(md.DomainName)
	cachePath := md.KrbFilePath

	if md.DomainlessUser == "" {
		return kerbauth.EnsureTGT(ctx, kerbauth.ModeMachine, kerbauth.Params{
			Log:       s.log,
			Realm:     domain.Realm,
			CachePath: cachePath,
		})
	}
	return kerbauth.EnsureTGT(ctx, kerbauth.ModeUserFromBroker, kerbauth.Params{
		Log:       s.log,
		Realm:     domain.Realm,
		SecretID:  s.cfg.SecretID,
		Broker:    s.cfg.Broker,
		CachePath: cachePath,
	})
}
