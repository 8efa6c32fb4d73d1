package secretbroker

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/credsfetcher/credsfetcherd/internal/cferrors"
	"github.com/credsfetcher/credsfetcherd/internal/kerbtypes"
)

// secretValue is the expected JSON shape of the secret string: username,
// password, and an optional distinguishedName.
type secretValue struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	DistinguishedName string `json:"distinguishedName"`
}

// SecretsManagerAPI is the subset of the generated client this package
// calls, so tests can substitute a fixture without a live AWS endpoint.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SDKBroker fetches secrets directly through the AWS SDK's default
// credential chain.
type SDKBroker struct {
	client SecretsManagerAPI
}

// NewSDKBroker wraps an already-configured secretsmanager client.
func NewSDKBroker(client SecretsManagerAPI) *SDKBroker {
	return &SDKBroker{client: client}
}

// Fetch implements Broker.
func (b *SDKBroker) Fetch(ctx context.Context, secretID string) (Credentials, error) {
	out, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return Credentials{}, cferrors.Wrap(cferrors.KindIOError, "secret not found", err)
	}
	if out.SecretString == nil {
		return Credentials{}, cferrors.New(cferrors.KindIOError, "secret has no string value")
	}

	var sv secretValue
	if jsonErr := json.Unmarshal([]byte(*out.SecretString), &sv); jsonErr != nil {
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
