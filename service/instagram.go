package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/truemediaorg/postrelay/config"
	"github.com/truemediaorg/postrelay/instagram"
	"github.com/truemediaorg/postrelay/relay"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	log "github.com/sirupsen/logrus"
)

// SecretsClient is the part of the Secrets Manager client used here.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var errNoSecretsClient = errors.New("secret path configured but AWS Secrets Manager is unavailable")

// NewInstagramClient builds the media provider. A session id configured directly wins over
// one stored in Secrets Manager.
func NewInstagramClient(ctx context.Context, cfg config.Config, secrets SecretsClient, httpClient *http.Client, identities relay.IdentityPool) (*instagram.Client, error) {
	sessionID := cfg.Instagram.SessionID
	if sessionID == "" && cfg.Instagram.SecretPath != "" {
		var instagramSecrets config.InstagramSecretData
		if err := getSecret(ctx, secrets, cfg.Instagram.SecretPath, &instagramSecrets); err != nil {
			return nil, fmt.Errorf("instagram secrets read error: %w", err)
		}
		sessionID = instagramSecrets.SessionID
	}

	client := instagram.NewClient(cfg.Instagram.ApiURL, instagram.ClientOptions{
		DocID:      cfg.Instagram.DocID,
		AppID:      cfg.Instagram.AppID,
		SessionID:  sessionID,
		Identities: identities,
		HTTPClient: httpClient,
	})
	log.WithField("authenticated", sessionID != "").Infof("Instagram client initialized. Host: %s", cfg.Instagram.ApiURL.String())
	return client, nil
}

// PostgresURL returns the configured connection string, falling back to Secrets Manager.
func PostgresURL(ctx context.Context, cfg config.Config, secrets SecretsClient) (string, error) {
	if cfg.PostgresURL != "" {
		return cfg.PostgresURL, nil
	}
	var pgSecrets config.PostgresSecretData
	if err := getSecret(ctx, secrets, cfg.PostgresSecretPath, &pgSecrets); err != nil {
		return "", fmt.Errorf("postgres secrets read error: %w", err)
	}
	return pgSecrets.ConnectionString, nil
}

func getSecret(ctx context.Context, secrets SecretsClient, secretPath string, target interface{}) error {
	if secrets == nil {
		return errNoSecretsClient
	}
	result, err := secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretPath),
	})
	if err != nil {
		return err
	}
	if result.SecretString == nil {
		return fmt.Errorf("secret %s has no string value", secretPath)
	}
	return json.Unmarshal([]byte(*result.SecretString), target)
}
