// Package materializer implements the Ticket Materializer: piping a decoded
// gMSA password blob through the UTF-16 decoder into kinit, writing a
// per-lease Kerberos credential cache file.
package materializer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
)

// Materialize pipes blob.CurrentPassword() through `<decoderPath> | kinit
// -c <cachePath> -V <principal>`, writing exactly GMSAPasswordSize bytes
// to the pipeline's stdin. blob is zeroed on every exit path. cachePath
// must be absolute and lie inside leaseDir.
func Materialize(ctx context.Context, decoderPath string, blob *kerbtypes.ManagedPasswordBlob, principal, cachePath, leaseDir string) error {
	defer blob.Zero()

	if err := validateCachePath(cachePath, leaseDir); err != nil {
		return err
	}

	password := blob.CurrentPassword()
	if password == nil || len(password) != kerbtypes.GMSAPasswordSize {
		return cferrors.New(cferrors.KindMaterializeFailure, "decoded password blob has unexpected length")
	}

	res, err := execx.Pipeline(ctx, password,
		[]string{decoderPath},
		[]string{"kinit", "-c", cachePath, "-V", principal},
	)
	if err != nil {
		return cferrors.Wrap(cferrors.KindMaterializeFailure, "decoder|kinit pipeline failed to run", err)
	}
	if res.ExitCode != 0 {
		return cferrors.New(cferrors.KindMaterializeFailure, "kinit exited non-zero")
	}
	return nil
}

// validateCachePath rejects a cachePath that is not absolute or that
// escapes leaseDir, closing off path-traversal before any subprocess is
// spawned.
func validateCachePath(cachePath, leaseDir string) error {
	if !filepath.IsAbs(cachePath) {
		return cferrors.New(cferrors.KindInvalidInput, "cache path must be absolute")
	}
	cleanLease := filepath.Clean(leaseDir)
	cleanCache := filepath.Clean(cachePath)
	if cleanCache != cleanLease && !strings.HasPrefix(cleanCache, cleanLease+string(filepath.Separator)) {
		return cferrors.New(cferrors.KindInvalidInput, "cache path must be inside the lease directory")
	}
	return nil
}
