// Package engine wires the Environment Probe, DC Locator, Secret Broker,
// Authenticator, gMSA Password Fetcher, Ticket Materializer, and Lease
// Store into the two operations a caller actually issues: CreateLease and
// DeleteLease.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/dclocate"
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

// Config bundles the engine's wiring: everything that doesn't vary
// per-request.
type Config struct {
	DecoderPath         string
	KeytabPath          string
	GMSAOU              string
	GMSABaseDN          string
	DCOverride          string
	Nameserver          string
	SecretID            string
	Broker              secretbroker.Broker
	Resolver            dclocate.Resolver
	RequireAWSBrokerage bool
	AWSCLIPath          string
}

// Engine is the orchestration layer over a single Lease Store.
type Engine struct {
	store *leasestore.Store
	log   logx.Logger
	cfg   Config
}

// New builds an Engine over store.
func New(store *leasestore.Store, log logx.Logger, cfg Config) *Engine {
	return &Engine{store: store, log: log, cfg: cfg}
}

// CreateLeaseRequest names one principal to materialize a ticket for.
type CreateLeaseRequest struct {
	LeaseID            string
	Domain             string
	ServiceAccountName string

	Mode     kerbauth.Mode
	Username string
	Password *kerbtypes.CredentialSecret

	// DomainlessUser, when non-empty, records that this lease's underlying
	// identity is a broker-fetched user rather than the host's machine
	// account; the Renewal Scheduler reads it back to pick REAUTH_MACHINE
	// vs REAUTH_USER.
	DomainlessUser string
}

// CreateLease runs Lease Store Prepare -> Probe -> Authenticator -> DC
// Locator -> gMSA Password Fetcher -> Ticket Materializer -> Lease Store
// metadata write, in that order, cleaning up the partially-created lease
// directory on any failure after Prepare.
func (e *Engine) CreateLease(ctx context.Context, req CreateLeaseRequest) (kerbtypes.LeaseMetadata, error) {
	if err := validateCreateLeaseRequest(req); err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	dir, err := e.store.Prepare(req.LeaseID)
	if err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	if err := probe.Verify(ctx, probe.Options{
		DecoderPath:         e.cfg.DecoderPath,
		RequireAWSBrokerage: e.cfg.RequireAWSBrokerage,
		AWSCLIPath:          e.cfg.AWSCLIPath,
		Domain:              req.Domain,
	}); err != nil {
		_ = os.RemoveAll(dir)
		return kerbtypes.LeaseMetadata{}, err
	}

	md, err := e.populateLease(ctx, dir, req)
	if err != nil {
		_ = os.RemoveAll(dir)
		return kerbtypes.LeaseMetadata{}, err
	}

	if err := e.store.WriteMetadata(req.LeaseID, md); err != nil {
		_ = os.RemoveAll(dir)
		return kerbtypes.LeaseMetadata{}, err
	}

	metrics.LeasesActive.Inc()
	logx.Info(e.log, "lease created", "leaseId", req.LeaseID, "serviceAccountName", req.ServiceAccountName)
	return md, nil
}

// populateLease runs the authenticate-through-materialize chain into dir,
// returning the metadata record to persist. It does not touch the Lease
// Store directly so CreateLease can decide how to roll back on failure.
func (e *Engine) populateLease(ctx context.Context, dir string, req CreateLeaseRequest) (kerbtypes.LeaseMetadata, error) {
	domain := kerbtypes.NewDomainSpec(req.Domain)
	cachePath := filepath.Join(dir, req.ServiceAccountName+"_krb5cc")

	if err := kerbauth.EnsureTGT(ctx, req.Mode, kerbauth.Params{
		Log:        e.log,
		Realm:      domain.Realm,
		KeytabPath: e.cfg.KeytabPath,
		SecretID:   e.cfg.SecretID,
		Broker:     e.cfg.Broker,
		Username:   req.Username,
		Password:   req.Password,
		CachePath:  cachePath,
	}); err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	locator := dclocate.New(e.cfg.Resolver, e.cfg.Nameserver, e.cfg.DCOverride)
	dcs, err := locator.Locate(ctx, domain.DNSName)
	if err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	blob, err := gmsafetch.Fetch(ctx, e.log, domain.DNSName, req.ServiceAccountName, e.cfg.GMSAOU, dcs, e.cfg.GMSABaseDN, cachePath)
	if err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	principal := kerbtypes.GMSAPrincipal(req.ServiceAccountName, domain.Realm).String()
	if err := materializer.Materialize(ctx, e.cfg.DecoderPath, blob, principal, cachePath, dir); err != nil {
		return kerbtypes.LeaseMetadata{}, err
	}

	return kerbtypes.LeaseMetadata{
		ServiceAccountName: req.ServiceAccountName,
		DomainName:         domain.DNSName,
		KrbFilePath:        cachePath,
		DomainlessUser:     req.DomainlessUser,
	}, nil
}

func validateCreateLeaseRequest(req CreateLeaseRequest) error {
	if err := cferrors.ValidateIdentifier("leaseId", req.LeaseID); err != nil {
		return err
	}
	if err := cferrors.ValidateDomain(req.Domain); err != nil {
		return err
	}
	if err := cferrors.ValidateIdentifier("serviceAccountName", req.ServiceAccountName); err != nil {
		return err
	}
	if req.Mode == kerbauth.ModeUserDirect {
		if err := cferrors.ValidateIdentifier("username", req.Username); err != nil {
			return err
		}
	}
	return nil
}

// DeleteLease destroys every credential cache under leaseID and removes
// its directory. A lease that no longer exists is success, not an error.
func (e *Engine) DeleteLease(ctx context.Context, leaseID string) ([]string, error) {
	if err := cferrors.ValidateIdentifier("leaseId", leaseID); err != nil {
		return nil, err
	}

	destroyed, err := e.store.Destroy(ctx, e.log, leaseID)
	if err != nil {
		return destroyed, err
	}
	if len(destroyed) > 0 {
		metrics.LeasesActive.Dec()
	}
	logx.Info(e.log, "lease destroyed", "leaseId", leaseID, "cachesDestroyed", len(destroyed))
	return destroyed, nil
}

// ListLeases returns every principal's metadata across every lease.
func (e *Engine) ListLeases() ([]kerbtypes.LeaseMetadata, error) {
	return e.store.List()
}

// GetLease returns every principal's metadata for a single lease.
func (e *Engine) GetLease(leaseID string) ([]kerbtypes.LeaseMetadata, error) {
	if err := cferrors.ValidateIdentifier("leaseId", leaseID); err != nil {
		return nil, err
	}
	return e.store.ForLease(leaseID)
}
