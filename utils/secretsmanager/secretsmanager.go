// Package secretsmanager fetches startup secrets from the cloud secret
// stores we support. Secrets holding api credentials are formatted as a
// single `username:password` string.
package secretsmanager

import (
	"context"
	"fmt"
	"strings"

	gcpsecretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/keyvault/azsecrets"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

func FetchAWSSecret(secretId string, region string) (string, string, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return "", "", fmt.Errorf("failed to load default aws config: %w", err)
	}

	secrets := secretsmanager.NewFromConfig(cfg)
	res, err := secrets.GetSecretValue(
		context.Background(),
		&secretsmanager.GetSecretValueInput{SecretId: &secretId},
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to get aws secret: %w", err)
	}
	if res.SecretString == nil {
		return "", "", fmt.Errorf("aws secret %s not a string", secretId)
	}

	return credsFromSecret(*res.SecretString)
}

func FetchAzureSecret(secretId string, keyVaultName string) (string, string, error) {
	vaultURI := fmt.Sprintf("https://%s.vault.azure.net/", keyVaultName)

	// Create a credential using the NewDefaultAzureCredential type.
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to obtain azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURI, cred, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create azure client: %w", err)
	}

	//  An empty string version gets the latest version of the secret.
	version := ""
	resp, err := client.GetSecret(context.Background(), secretId, version, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to get azure secret: %w", err)
	}

	return credsFromSecret(*resp.Value)
}

func FetchGcpSecret(secretId string, projectId string) (string, string, error) {
	payload, err := fetchGcpSecretPayload(secretId, projectId)
	if err != nil {
		return "", "", err
	}

	return credsFromSecret(string(payload))
}

// FetchGcpServiceAccountKey pulls a raw service account key payload, used to
// authenticate the warehouse client without a key file on disk.
func FetchGcpServiceAccountKey(secretId string, projectId string) ([]byte, error) {
	return fetchGcpSecretPayload(secretId, projectId)
}

func fetchGcpSecretPayload(secretId string, projectId string) ([]byte, error) {
	ctx := context.Background()
	client, err := gcpsecretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcp secretmanager client: %w", err)
	}
	defer client.Close()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectId, secretId),
	}

	result, err := client.AccessSecretVersion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get gcp secret: %w", err)
	}

	return result.Payload.Data, nil
}

func credsFromSecret(secret string) (string, string, error) {
	creds := strings.Split(secret, ":")
	if len(creds) != 2 {
		return "", "", fmt.Errorf("api credentials secret must be formatted `username:password`")
	}

	username := creds[0]
	password := creds[1]
	return username, password, nil
}
