// Package probe implements the Environment Probe: verifying that every
// external tool the engine shells out to is present and executable before
// any authentication attempt begins.
package probe

import (
	"context"
	"strings"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
)

// Tool names the probe checks, in the order they're checked.
const (
	ToolHostname   = "hostname"
	ToolRealm      = "realm"
	ToolKinit      = "kinit"
	ToolKlist      = "klist"
	ToolKdestroy   = "kdestroy"
	ToolLdapsearch = "ldapsearch"
)

// Options controls which tools are required. Decoder is the UTF-16
// password decoder binary name; it has no conventional PATH entry, so its
// path is always supplied explicitly rather than looked up.
type Options struct {
	DecoderPath         string
	RequireAWSBrokerage bool
	AWSCLIPath          string

	// Domain, when non-empty, is checked against the realm the host is
	// actually joined to (per realm list) — daemon start has no domain to
	// check yet, but every authentication attempt does.
	Domain string
}

// Verify checks hostname, realm, kinit, klist, kdestroy, ldapsearch, the
// decoder path, and — only when cfg requires AWS-Secrets-Manager-brokered
// mode — that an aws CLI is present as a fallback credential source. When
// opts.Domain is set, it also verifies the joined realm matches it,
// returning KindAuthFailure (realm_mismatch) otherwise. It returns the
// first missing tool wrapped in cferrors.KindToolMissing.
func Verify(ctx context.Context, opts Options) error {
	required := []string{ToolHostname, ToolRealm, ToolKinit, ToolKlist, ToolKdestroy, ToolLdapsearch}
	for _, tool := range required {
		if _, err := execx.LookPath(tool); err != nil {
			return cferrors.Wrap(cferrors.KindToolMissing, tool+" not found on PATH", err)
		}
	}

	if opts.DecoderPath == "" {
		return cferrors.New(cferrors.KindToolMissing, "utf16 decoder path not configured")
	}
	if _, err := execx.LookPath(opts.DecoderPath); err != nil {
		return cferrors.Wrap(cferrors.KindToolMissing, "utf16 decoder not executable", err)
	}

	if opts.RequireAWSBrokerage {
		awsCLI := opts.AWSCLIPath
		if awsCLI == "" {
			awsCLI = "aws"
		}
		if _, err := execx.LookPath(awsCLI); err != nil {
			return cferrors.Wrap(cferrors.KindToolMissing, "aws CLI not found on PATH", err)
		}
	}

	if opts.Domain != "" {
		matches, err := RealmMatches(ctx, opts.Domain)
		if err != nil {
			return err
		}
		if !matches {
			return cferrors.New(cferrors.KindAuthFailure, "realm_mismatch: joined realm does not match configured domain "+opts.Domain)
		}
	}

	return nil
}

// RealmMatches runs `realm list` and reports whether the joined realm
// (uppercased, per AD convention) matches configuredDomain.
func RealmMatches(ctx context.Context, configuredDomain string) (bool, error) {
	res, err := execx.Run(ctx, ToolRealm, "list")
	if err != nil {
		return false, cferrors.Wrap(cferrors.KindToolMissing, "realm list failed to run", err)
	}
	if res.ExitCode != 0 {
		return false, cferrors.New(cferrors.KindToolMissing, "realm list exited non-zero")
	}

	joined := strings.ToUpper(strings.TrimSpace(string(res.Stdout)))
	return strings.Contains(joined, strings.ToUpper(configuredDomain)), nil
}

// Hostname runs `hostname` and returns the trimmed short host name.
func Hostname(ctx context.Context) (string, error) {
	res, err := execx.Run(ctx, ToolHostname)
	if err != nil {
		return "", cferrors.Wrap(cferrors.KindToolMissing, "hostname failed to run", err)
	}
	if res.ExitCode != 0 {
		return "", cferrors.New(cferrors.KindToolMissing, "hostname exited non-zero")
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
