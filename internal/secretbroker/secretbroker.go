// Package secretbroker retrieves broker-held gMSA/user credentials from a
// cloud secrets store: {username, password, distinguishedName?}, normalized
// and with the password never touching a log line.
package secretbroker

import (
	"context"

	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
)

// Credentials is the normalized result of a broker fetch.
type Credentials struct {
	Username          string
	Password          *kerbtypes.CredentialSecret
	DistinguishedName string
}

// Broker retrieves credentials for a named secret.
type Broker interface {
	Fetch(ctx context.Context, secretID string) (Credentials, error)
}
