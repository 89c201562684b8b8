package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

var (
	ErrProviderUnavailable = errors.New("secret provider unavailable")
	ErrNotFound            = errors.New("secret not found")
)

type Provider interface {
	Name() string
	GetSecret(ctx context.Context, key string) (string, error)
}

// Resolver looks secrets up in Vault or AWS Secrets Manager and falls back to
// the process environment when neither is configured. With failClosed set a
// failing primary is an error rather than a reason to try the environment.
type Resolver struct {
	primary    Provider
	fallback   Provider
	failClosed bool
}

func NewResolver(ctx context.Context) (*Resolver, error) {
	var primary Provider
	if os.Getenv("VAULT_ADDR") != "" {
		vp, err := newVaultProvider(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "vault provider")
		}
		primary = vp
	} else if os.Getenv("SECRETS_BACKEND") == "aws" || os.Getenv("AWS_REGION") != "" {
		ap, err := newAWSProvider(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "aws provider")
		}
		primary = ap
	}
	return &Resolver{
		primary:    primary,
		fallback:   envProvider{},
		failClosed: strings.ToLower(os.Getenv("SECRETS_FAIL_CLOSED")) != "false",
	}, nil
}

// NewResolverWith is used by tests and callers that build providers themselves.
func NewResolverWith(primary, fallback Provider, failClosed bool) *Resolver {
	return &Resolver{primary: primary, fallback: fallback, failClosed: failClosed}
}

func (r *Resolver) GetSecret(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if r.primary != nil {
		val, err := r.primary.GetSecret(ctx, key)
		if err == nil && val != "" {
			return val, nil
		}
		if err == nil {
			err = ErrNotFound
		}
		if r.failClosed {
			return "", errors.Wrapf(err, "%s: get secret %s (fail-closed)", r.primary.Name(), key)
		}
	}
	if r.fallback != nil {
		return r.fallback.GetSecret(ctx, key)
	}
	return "", ErrProviderUnavailable
}

type vaultProvider struct {
	client     *vault.Client
	secretPath string
}

func newVaultProvider(ctx context.Context) (*vaultProvider, error) {
	vcfg := vault.DefaultConfig()
	vcfg.Address = os.Getenv("VAULT_ADDR")
	vcfg.Timeout = 5 * time.Second
	client, err := vault.NewClient(vcfg)
	if err != nil {
		return nil, err
	}
	if tokenFile := os.Getenv("VAULT_TOKEN_FILE"); tokenFile != "" {
		tokenBytes, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read VAULT_TOKEN_FILE: %w", err)
		}
		client.SetToken(strings.TrimSpace(string(tokenBytes)))
	} else if token := os.Getenv("VAULT_TOKEN"); token != "" {
		client.SetToken(token)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, fmt.Errorf("vault health check failed: %w", err)
	}
	return &vaultProvider{
		client:     client,
		secretPath: getEnvOrDefault("VAULT_SECRET_PATH", "secret/data/clipstash"),
	}, nil
}
func (v *vaultProvider) Name() string { return "vault" }
func (v *vaultProvider) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.secretPath+"/"+key)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Wrap(ErrNotFound, key)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("vault: invalid secret format")
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.New("vault: value not found")
	}
	return value, nil
}

type awsProvider struct {
	client *secretsmanager.Client
}

func newAWSProvider(ctx context.Context) (*awsProvider, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, err
	}
	return &awsProvider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}
func (a *awsProvider) Name() string { return "aws-secretsmanager" }
func (a *awsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	if result.SecretString == nil {
		return "", errors.New("secret is binary, not string")
	}
	return *result.SecretString, nil
}

type envProvider struct{}

func (envProvider) Name() string { return "env" }
func (envProvider) GetSecret(_ context.Context, key string) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", errors.Wrap(ErrNotFound, key)
	}
	return val, nil
}
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
