package secretbroker

import (
	"context"
	"encoding/json"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/execx"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
)

// CLIBroker fetches secrets by shelling out to the aws CLI, matching
// get_secret_from_secrets_manager in the original implementation. It is
// the fallback for hosts where the SDK's default credential chain cannot
// assume a role.
type CLIBroker struct {
	AWSCLIPath string
	Region     string
}

// NewCLIBroker builds a CLIBroker; awsCLIPath defaults to "aws" when empty.
func NewCLIBroker(awsCLIPath, region string) *CLIBroker {
	if awsCLIPath == "" {
		awsCLIPath = "aws"
	}
	return &CLIBroker{AWSCLIPath: awsCLIPath, Region: region}
}

// Fetch implements Broker.
func (b *CLIBroker) Fetch(ctx context.Context, secretID string) (Credentials, error) {
	args := []string{"secretsmanager", "get-secret-value", "--secret-id", secretID, "--query", "SecretString", "--output", "text"}
	if b.Region != "" {
		args = append(args, "--region", b.Region)
	}

	res, err := execx.Run(ctx, b.AWSCLIPath, args...)
	if err != nil {
		return Credentials{}, cferrors.Wrap(cferrors.KindIOError, "aws secretsmanager invocation failed", err)
	}
	if res.ExitCode != 0 {
		return Credentials{}, cferrors.New(cferrors.KindIOError, "secret not found")
	}

	var sv secretValue
	if jsonErr := json.Unmarshal(res.Stdout, &sv); jsonErr != nil {
		return Credentials{}, cferrors.Wrap(cferrors.KindPasswordRetrievalFailure, "secret value is not well-formed JSON", jsonErr)
	}
	if sv.Username == "" || sv.Password == "" {
		return Credentials{}, cferrors.New(cferrors.KindPasswordRetrievalFailure, "secret missing username or password field")
	}

	return Credentials{
		Username:          sv.Username,
		Password:          kerbtypes.NewCredentialSecret([]byte(sv.Password)),
		DistinguishedName: sv.DistinguishedName,
	}, nil
}
