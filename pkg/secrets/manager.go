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
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"github.com/mediastudio/studio-billing/pkg/logger"
)

// ErrNotFound is returned when a source has no value for a key.
var ErrNotFound = errors.New("secret not found")

// Source resolves named secrets such as STRIPE_SECRET_KEY.
type Source interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Config holds secrets source configuration
type Config struct {
	Backend       string        // "env" or "aws"
	AWSRegion     string        // AWS region for Secrets Manager
	SecretID      string        // optional JSON bundle holding every key
	CacheDuration time.Duration // how long fetched values are reused
}

// NewSource creates the source named by cfg.Backend.
func NewSource(cfg Config, log logger.Logger) (Source, error) {
	switch cfg.Backend {
	case "", "env", "environment":
		return EnvSource{}, nil
	case "aws", "aws-secrets-manager":
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWSRegion),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		log.Info("using AWS Secrets Manager", "region", cfg.AWSRegion, "bundle", cfg.SecretID != "")
		return NewAWSSource(secretsmanager.New(sess), cfg), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// EnvSource reads secrets from the process environment.
type EnvSource struct{}

func (EnvSource) GetSecret(_ context.Context, key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// AWSSource loads secrets from AWS Secrets Manager. With a SecretID every
// key is read from one JSON object secret; otherwise each key is its own
// secret.
type AWSSource struct {
	client   secretsmanageriface.SecretsManagerAPI
	secretID string
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewAWSSource wraps a Secrets Manager client.
func NewAWSSource(client secretsmanageriface.SecretsManagerAPI, cfg Config) *AWSSource {
	ttl := cfg.CacheDuration
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AWSSource{
		client:   client,
		secretID: cfg.SecretID,
		ttl:      ttl,
		cache:    make(map[string]cachedSecret),
	}
}

func (s *AWSSource) GetSecret(ctx context.Context, key string) (string, error) {
	if s.secretID == "" {
		return s.fetch(ctx, key)
	}

	raw, err := s.fetch(ctx, s.secretID)
	if err != nil {
		return "", err
	}

	var bundle map[string]string
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", s.secretID, err)
	}
	v, ok := bundle[key]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (s *AWSSource) fetch(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	cached, ok := s.cache[id]
	s.mu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
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

	s.mu.Lock()
	s.cache[id] = cachedSecret{value: *out.SecretString, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return *out.SecretString, nil
}

// Fill resolves every target that is still empty from src. Keys the source
// does not hold are left empty for config validation to report.
func Fill(ctx context.Context, src Source, targets map[string]*string) error {
	for key, dst := range targets {
		if *dst != "" {
			continue
		}
		v, err := src.GetSecret(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		*dst = v
	}
	return nil
}
