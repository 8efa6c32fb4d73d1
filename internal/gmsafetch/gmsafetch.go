// Package gmsafetch implements the gMSA Password Fetcher: an LDAP-over-GSSAPI
// search for msDS-ManagedPassword against each candidate DC with retry,
// base64-decoded into secure memory.
package gmsafetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"strings"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
	"github.com/credsfetcher/credsfetcherd/internal/logx"
)

// managedPasswordAttr is the LDAP attribute name as passed on the
// ldapsearch command line.
const managedPasswordAttr = "msds-ManagedPassword"

// managedPasswordMarker is the LDIF-style line prefix that introduces the
// base64 value in ldapsearch's -LLL output.
const managedPasswordMarker = "msDS-ManagedPassword::"

// baseDNOverrideToken must be present in a caller-supplied base DN
// override; if absent it is appended.
const baseDNOverrideToken = "msds-ManagedPassword"

// attemptsPerDC is the total number of ldapsearch invocations tried
// against a single DC before moving on (1 initial + 1 retry).
const attemptsPerDC = 2

// Fetch performs the search against each dc in order, stopping at the
// first DC that yields a decoded password blob. gmsaOU is the OU segment
// of the computed search base (CF_GMSA_OU, default "CN=Managed Service
// Accounts"); it is ignored when baseDNOverride is set. authCachePath, if
// non-empty, is exported as KRB5CCNAME so ldapsearch's GSSAPI bind finds the
// TGT the Authenticator already placed there.
func Fetch(ctx context.Context, log logx.Logger, domain, gmsaName, gmsaOU string, dcs []string, baseDNOverride, authCachePath string) (*kerbtypes.ManagedPasswordBlob, error) {
	baseDN := computeBaseDN(domain, baseDNOverride)

	var lastErr error
	for _, dc := range dcs {
		blob, err := fetchFromDC(ctx, dc, baseDN, gmsaName, gmsaOU, baseDNOverride != "", authCachePath)
		if err == nil {
			return blob, nil
		}
		logx.Warn(log, "gmsa fetch attempt failed", "dc", dc, "error", err.Error())
		lastErr = err
	}

	if lastErr == nil {
		return nil, cferrors.New(cferrors.KindDNSFailure, "no domain controllers supplied")
	}
	return nil, lastErr
}

func computeBaseDN(domain, override string) string {
	if override != "" {
		if !strings.Contains(override, baseDNOverrideToken) {
			return override + "," + baseDNOverrideToken
		}
		return override
	}
	return kerbtypes.NewDomainSpec(domain).BaseDN
}

// fetchFromDC tries dc up to attemptsPerDC times, returning the first
// success.
func fetchFromDC(ctx context.Context, dc, baseDN, gmsaName, gmsaOU string, overridden bool, authCachePath string) (*kerbtypes.ManagedPasswordBlob, error) {
	args := ldapArgs(dc, baseDN, gmsaName, gmsaOU, overridden)
	env := map[string]string{}
	if authCachePath != "" {
		env["KRB5CCNAME"] = authCachePath
	}

	var lastErr error
	for attempt := 0; attempt < attemptsPerDC; attempt++ {
		res, err := execx.RunEnv(ctx, env, "ldapsearch", args...)
		if err != nil {
			lastErr = cferrors.Wrap(cferrors.KindAuthFailure, "ldapsearch failed to run", err)
			continue
		}
		if res.ExitCode != 0 {
			lastErr = cferrors.New(cferrors.KindAuthFailure, "ldapsearch exited non-zero (ldap unreachable or bind failed)")
			continue
		}

		b64, found := scanForManagedPassword(res.Stdout)
		if !found {
			lastErr = cferrors.New(cferrors.KindPasswordRetrievalFailure, "msDS-ManagedPassword attribute not present in ldapsearch output")
			continue
		}

		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			lastErr = cferrors.Wrap(cferrors.KindPasswordRetrievalFailure, "msDS-ManagedPassword value is not valid base64", err)
			continue
		}
		return kerbtypes.NewManagedPasswordBlob(raw, 0, kerbtypes.GMSAPasswordSize), nil
	}
	return nil, lastErr
}

// ldapArgs builds one of the two argv forms: when the base DN is an
// override, it's used as-is (the operator owns its shape) and the search
// runs with ldapsearch's default scope and no filter; when computed from the domain, the gMSA's CN and
// OU are scoped into the search base and the search is a subtree lookup
// filtered to gMSA objects.
func ldapArgs(dc, baseDN, gmsaName, gmsaOU string, overridden bool) []string {
	if overridden {
		return []string{"-LLL", "-Y", "GSSAPI", "-H", "ldap://" + dc, "-b", baseDN, managedPasswordAttr}
	}
	searchBase := "CN=" + gmsaName + "," + gmsaOU + "," + baseDN
	return []string{"-LLL", "-Y", "GSSAPI", "-H", "ldap://" + dc, "-b", searchBase,
		"-s", "sub", "(objectClass=msDS-GroupManagedServiceAccount)", managedPasswordAttr}
}

// scanForManagedPassword splits the LDIF-like output on '#' (matching the
// source's capture convention) and returns the base64 payload following
// the msDS-ManagedPassword:: marker.
func scanForManagedPassword(output []byte) (string, bool) {
	entries := bytes.Split(output, []byte("#"))
	for _, entry := range entries {
		for _, line := range strings.Split(string(entry), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, managedPasswordMarker) {
				val := strings.TrimSpace(strings.TrimPrefix(line, managedPasswordMarker))
				if val != "" {
					return val, true
				}
			}
		}
	}
	return "", false
}
