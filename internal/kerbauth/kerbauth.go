// Package kerbauth implements the Authenticator: ensuring a TGT exists in
// a caller-named credential cache under one of three modes (machine keytab,
// user-from-broker, user-direct), sharing the same kinit pipeline.
package kerbauth

import (
	"context"
	"strings"

	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
	"github.com/credsfetcher/credsfetcherd/internal/probe"
	"github.com/credsfetcher/credsfetcherd/internal/secretbroker"
)

// Mode selects which of the three authentication flows EnsureTGT runs.
type Mode int

const (
	// ModeMachine derives the principal from the host's short name and the
	// machine keytab at KeytabPath (implicit credential source for kinit).
	ModeMachine Mode = iota
	// ModeUserFromBroker calls the Secret Broker for username/password.
	ModeUserFromBroker
	// ModeUserDirect accepts username/password supplied directly.
	ModeUserDirect
)

// DefaultKeytabPath is the conventional machine keytab location.
const DefaultKeytabPath = "/etc/krb5.keytab"

// Params configures a single EnsureTGT call. Only the fields relevant to
// Mode need be set.
type Params struct {
	Log        logx.Logger
	Realm      string
	KeytabPath string

	SecretID string
	Broker   secretbroker.Broker

	Username string
	Password *kerbtypes.CredentialSecret

	CachePath string
}

// EnsureTGT obtains a TGT into the credential cache at params.CachePath
// under the given mode. The password (if any) is zeroed before return on
// every path.
func EnsureTGT(ctx context.Context, mode Mode, params Params) error {
	switch mode {
	case ModeMachine:
		return ensureMachine(ctx, params)
	case ModeUserFromBroker:
		return ensureUserFromBroker(ctx, params)
	case ModeUserDirect:
		return ensureUserDirect(ctx, params)
	default:
		return cferrors.New(cferrors.KindInvalidInput, "unknown authenticator mode")
	}
}

func ensureMachine(ctx context.Context, params Params) error {
	shortHost, err := probe.Hostname(ctx)
	if err != nil {
		return cferrors.Wrap(cferrors.KindAuthFailure, "hostname unavailable", err)
	}

	ref, truncated := kerbtypes.MachinePrincipal(shortHost, params.Realm)
	if truncated && params.Log != nil {
		logx.Warn(params.Log, "host name exceeds NetBIOS limit, truncated", "hostname", shortHost, "limit", kerbtypes.HostNameLengthLimit)
	}

	ktPath := params.KeytabPath
	if ktPath == "" {
		ktPath = DefaultKeytabPath
	}
	if err := validateMachineKeytab(ktPath, params.Realm); err != nil {
		return err
	}

	return kinit(ctx, ref.String(), nil, params.CachePath)
}

// validateMachineKeytab pre-validates the machine keytab so a missing or
// realm-mismatched keytab surfaces as tool_missing rather than an opaque
// kinit exit code.
func validateMachineKeytab(path, realm string) error {
	kt, err := keytab.Load(path)
	if err != nil {
		return cferrors.Wrap(cferrors.KindToolMissing, "machine keytab missing or unreadable", err)
	}
	if len(kt.Entries) == 0 {
		return cferrors.New(cferrors.KindToolMissing, "machine keytab contains no entries")
	}
	for _, e := range kt.Entries {
		if strings.EqualFold(e.Principal.Realm, realm) {
			return nil
		}
	}
	return cferrors.New(cferrors.KindAuthFailure, "machine keytab has no principal in the configured realm")
}

func ensureUserFromBroker(ctx context.Context, params Params) error {
	if params.Broker == nil {
		return cferrors.New(cferrors.KindInvalidInput, "broker not configured for user-from-broker mode")
	}
	creds, err := params.Broker.Fetch(ctx, params.SecretID)
	if err != nil {
		return err
	}
	defer creds.Password.Zero()

	principal := creds.Username + "@" + strings.ToUpper(params.Realm)
	return kinit(ctx, principal, creds.Password.Bytes(), params.CachePath)
}

func ensureUserDirect(ctx context.Context, params Params) error {
	if params.Password == nil {
		return cferrors.New(cferrors.KindInvalidInput, "password not supplied for user-direct mode")
	}
	defer params.Password.Zero()

	principal := params.Username + "@" + strings.ToUpper(params.Realm)
	return kinit(ctx, principal, params.Password.Bytes(), params.CachePath)
}

// kinit runs `kinit -c <cachePath> -V <principal>`, feeding password (if
// any) on stdin. A nil/empty password relies on the implicit machine
// keytab credential source.
func kinit(ctx context.Context, principal string, password []byte, cachePath string) error {
	res, err := execx.RunStdin(ctx, password, "kinit", "-c", cachePath, "-V", principal)
	if err != nil {
		return cferrors.Wrap(cferrors.KindAuthFailure, "kinit failed to run", err)
	}
	if res.ExitCode != 0 {
		return cferrors.New(cferrors.KindAuthFailure, "kinit exited non-zero")
	}
	return nil
}
