package cmd

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	log "github.com/sirupsen/logrus"
	"github.com/truemediaorg/postrelay/config"
	"github.com/truemediaorg/postrelay/database"
	"github.com/truemediaorg/postrelay/relay"
	"github.com/truemediaorg/postrelay/resolver"
	"github.com/truemediaorg/postrelay/service"
)

// components is everything a command needs, built from one config.
type components struct {
	secrets  service.SecretsClient
	resolver *resolver.Resolver
	relay    *relay.Relay
}

// loadConfig reads the env file and applies the logging settings.
func loadConfig() config.Config {
	cfg := config.FromEnvfile()
	cfg.ConfigureLogging()
	return cfg
}

// newSecretsClient only talks to AWS when a secret path is configured.
func newSecretsClient(ctx context.Context, cfg config.Config) service.SecretsClient {
	if cfg.Instagram.SecretPath == "" && cfg.PostgresSecretPath == "" {
		return nil
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal(err)
	}
	return secretsmanager.NewFromConfig(awsConfig)
}

func buildComponents(ctx context.Context, cfg config.Config) components {
	secrets := newSecretsClient(ctx, cfg)

	httpClient := relay.NewHTTPClient(cfg.Relay.ProxyURL, cfg.Relay.Timeout)
	identities := relay.NewIdentityPool(cfg.Relay.UserAgents)
	if cfg.Relay.ProxyURL != nil {
		log.Infof("routing upstream traffic through proxy %s", cfg.Relay.ProxyURL.Redacted())
	}

	instagramClient, err := service.NewInstagramClient(ctx, cfg, secrets, httpClient, identities)
	if err != nil {
		log.Fatal(err)
	}

	return components{
		secrets:  secrets,
		resolver: resolver.NewResolver(instagramClient, cfg.Instagram.PacingInterval),
		relay:    relay.NewRelay(httpClient, identities, cfg.Relay.ChunkSize),
	}
}

// connectDatabase returns nil when no activity log is configured.
func connectDatabase(ctx context.Context, cfg config.Config, secrets service.SecretsClient) *database.Database {
	if !cfg.ActivityLogEnabled() {
		return nil
	}
	databaseURL, err := service.PostgresURL(ctx, cfg, secrets)
	if err != nil {
		log.Fatal(err)
	}
	database := database.NewDatabase(databaseURL)
	if err := database.Connect(ctx); err != nil {
		log.Fatalf("error connecting to database: %v", err)
	}
	return database
}
