package credentials

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/nexus/internal/config"
	"github.com/imamik/nexus/internal/platform/s3"
	"github.com/imamik/nexus/internal/portal"
	"github.com/imamik/nexus/internal/provisioning"
)

// EnvPrefix prefixes every secret environment variable.
const EnvPrefix = "NEXUS_SECRET_"

// New returns the provider selected by cfg.Credentials.Source.
func New(ctx context.Context, cfg *config.Config) (portal.CredentialProvider, error) {
	switch cfg.Credentials.Source {
	case "", config.CredentialSourceEnv:
		return NewEnv(), nil
	case config.CredentialSourceFile:
		if cfg.Credentials.File == "" {
			return nil, fmt.Errorf("credentials.file is required for source %q", config.CredentialSourceFile)
		}
		return NewFile(cfg.Credentials.File), nil
	case config.CredentialSourceS3:
		if !cfg.S3.Enabled() {
			return nil, fmt.Errorf("s3.bucket is required for source %q", config.CredentialSourceS3)
		}
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3(client, cfg.S3.Bucket, cfg.Credentials.Key), nil
	default:
		return nil, fmt.Errorf("unknown credential source %q", cfg.Credentials.Source)
	}
}

// EnvName returns the environment variable holding a vendor secret.
func EnvName(vendorID, secretType string) string {
	name := strings.ToUpper(portal.SecretName(vendorID, secretType))
	return EnvPrefix + strings.NewReplacer("-", "_", ".", "_").Replace(name)
}

// Env reads secrets from the process environment.
type Env struct {
	lookup func(string) (string, bool)
}

// NewEnv creates an Env provider backed by os.LookupEnv.
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// Credentials implements portal.CredentialProvider.
func (e *Env) Credentials(ctx context.Context, vendorID string) (portal.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return portal.Credentials{}, err
	}
	return build(vendorID, func(secretType string) (string, bool) {
		v, ok := e.lookup(EnvName(vendorID, secretType))
		return v, ok && v != ""
	})
}

// Document is the YAML secrets layout shared by the file and s3 sources:
//
//	acme:
//	  login-email: admin@example.com
//	  login-password: s3cret
type Document map[string]map[string]string

// Parse decodes a secrets document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse secrets document: %w", err)
	}
	return doc, nil
}

// Credentials returns the credential set of vendorID.
func (d Document) Credentials(vendorID string) (portal.Credentials, error) {
	secrets, ok := d[vendorID]
	if !ok {
		return portal.Credentials{}, fmt.Errorf("%w: no secrets for vendor %s", provisioning.ErrCredentialNotFound, vendorID)
	}
	return build(vendorID, func(secretType string) (string, bool) {
		v, ok := secrets[secretType]
		return v, ok && v != ""
	})
}

// File reads secrets from a YAML document on disk.
type File struct {
	path string
}

// NewFile creates a File provider for path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Credentials implements portal.CredentialProvider.
func (f *File) Credentials(ctx context.Context, vendorID string) (portal.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return portal.Credentials{}, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("failed to read secrets file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return portal.Credentials{}, err
	}
	return doc.Credentials(vendorID)
}

// ObjectGetter fetches an object from a bucket.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3 reads secrets from a YAML document stored in object storage.
type S3 struct {
	store  ObjectGetter
	bucket string
	key    string
}

// DefaultS3Key is used when credentials.key is empty.
const DefaultS3Key = "nexus/secrets.yaml"

// NewS3 creates an S3 provider reading bucket/key.
func NewS3(store ObjectGetter, bucket, key string) *S3 {
	if key == "" {
		key = DefaultS3Key
	}
	return &S3{store: store, bucket: bucket, key: key}
}

// Credentials implements portal.CredentialProvider.
func (s *S3) Credentials(ctx context.Context, vendorID string) (portal.Credentials, error) {
	data, err := s.store.GetObject(ctx, s.bucket, s.key)
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("failed to fetch secrets document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return portal.Credentials{}, err
	}
	return doc.Credentials(vendorID)
}

func build(vendorID string, lookup func(string) (string, bool)) (portal.Credentials, error) {
	creds, err := portal.FromSecrets(vendorID, lookup)
	if err != nil {
		return portal.Credentials{}, fmt.Errorf("%w: %w", provisioning.ErrCredentialNotFound, err)
	}
	return creds, nil
}
