// Package secrets resolves the API's credentials from the environment or AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// ErrNotFound is returned when a secret has no value in the backend
var ErrNotFound = errors.New("secret not found")

// Backends
const (
	BackendEnv = "env"
	BackendAWS = "aws-secrets-manager"
)

// Manager resolves secrets by key
type Manager interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Config holds secrets manager configuration
type Config struct {
	Backend   string
	AWSRegion string
	// Bundle names one AWS secret holding a JSON object of all keys.
	// When empty each key is its own secret, named Prefix+key.
	Bundle        string
	Prefix        string
	CacheDuration time.Duration
}

// ConfigFromEnv reads SECRETS_BACKEND, SECRETS_BUNDLE and SECRETS_PREFIX
func ConfigFromEnv() Config {
	cfg := Config{
		Backend:       os.Getenv("SECRETS_BACKEND"),
		AWSRegion:     os.Getenv("AWS_REGION"),
		Bundle:        os.Getenv("SECRETS_BUNDLE"),
		Prefix:        os.Getenv("SECRETS_PREFIX"),
		CacheDuration: 5 * time.Minute,
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendEnv
	}
	if cfg.AWSRegion == "" {
		cfg.AWSRegion = "us-east-1"
	}
	return cfg
}

// NewManager creates the manager for cfg.Backend
func NewManager(cfg Config) (Manager, error) {
	switch cfg.Backend {
	case BackendAWS, "aws":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		return NewAWSManager(secretsmanager.New(sess), cfg), nil
	case BackendEnv, "environment", "":
		return EnvManager{}, nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// EnvManager reads secrets from environment variables
type EnvManager struct{}

// GetSecret returns the variable named key
func (EnvManager) GetSecret(_ context.Context, key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// SecretsAPI is the part of the Secrets Manager client used here
type SecretsAPI interface {
	GetSecretValueWithContext(ctx aws.Context, in *secretsmanager.GetSecretValueInput, opts ...request.Option) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSManager reads secrets from AWS Secrets Manager and caches them
type AWSManager struct {
	client SecretsAPI
	cfg    Config
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewAWSManager creates a manager over client
func NewAWSManager(client SecretsAPI, cfg Config) *AWSManager {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = 5 * time.Minute
	}
	return &AWSManager{client: client, cfg: cfg, now: time.Now, cache: make(map[string]cachedSecret)}
}

// GetSecret returns key from its own secret or from the bundle
func (m *AWSManager) GetSecret(ctx context.Context, key string) (string, error) {
	if m.cfg.Bundle == "" {
		return m.fetch(ctx, m.cfg.Prefix+key)
	}

	raw, err := m.fetch(ctx, m.cfg.Bundle)
	if err != nil {
		return "", err
	}
	var bundle map[string]string
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return "", fmt.Errorf("secret bundle %s is not a JSON object: %w", m.cfg.Bundle, err)
	}
	if v := bundle[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (m *AWSManager) fetch(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	if c, ok := m.cache[id]; ok && m.now().Before(c.expiresAt) {
		m.mu.Unlock()
		return c.value, nil
	}
	m.mu.Unlock()

	out, err := m.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	m.mu.Lock()
	m.cache[id] = cachedSecret{value: *out.SecretString, expiresAt: m.now().Add(m.cfg.CacheDuration)}
	m.mu.Unlock()
	return *out.SecretString, nil
}
