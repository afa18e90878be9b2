// Package vault resolves vault://path#field references against a KV mount.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"workloadgen/internal/config"
	"workloadgen/internal/secrets"
)

// defaultField is read when a reference carries no #field.
const defaultField = "value"

type Client struct {
	cfg config.VaultConfig
	api *vaultapi.Client

	mu    sync.Mutex
	cache map[string]entry
}

type entry struct {
	data    map[string]any
	expires time.Time
}

// NewClient returns nil when Vault is disabled. Callers may use a nil *Client;
// it resolves nothing and always reports healthy.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conf := vaultapi.DefaultConfig()
	if cfg.Address != "" {
		conf.Address = cfg.Address
	}
	if cfg.RequestTimeout > 0 {
		conf.Timeout = cfg.RequestTimeout
	}
	if err := conf.ConfigureTLS(&vaultapi.TLSConfig{
		CACert:     cfg.TLS.CAFile,
		ClientCert: cfg.TLS.CertFile,
		ClientKey:  cfg.TLS.KeyFile,
		Insecure:   cfg.TLSSkipVerify,
	}); err != nil {
		return nil, fmt.Errorf("configure vault tls: %w", err)
	}
	api, err := vaultapi.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}
	token, err := loadToken(cfg)
	if err != nil {
		return nil, err
	}
	api.SetToken(token)
	return &Client{cfg: cfg, api: api, cache: make(map[string]entry)}, nil
}

func loadToken(cfg config.VaultConfig) (string, error) {
	if t := strings.TrimSpace(cfg.Token); t != "" {
		return t, nil
	}
	if cfg.TokenFile != "" {
		b, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read vault token file: %w", err)
		}
		if t := strings.TrimSpace(string(b)); t != "" {
			return t, nil
		}
	}
	return "", errors.New("vault token required when vault enabled")
}

var _ secrets.Resolver = (*Client)(nil)

// Resolve reads the referenced field. Secrets are cached for cache_ttl.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	if c == nil {
		return ref, nil
	}
	p, field, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	data, err := c.read(ctx, c.fullPath(p))
	if err != nil {
		return "", err
	}
	v, ok := data[field]
	if !ok {
		return "", fmt.Errorf("vault field %s missing at %s", field, p)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return fmt.Sprint(s), nil
	}
}

// HealthCheck calls sys/health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.api.Sys().HealthWithContext(ctx)
	return err
}

func (c *Client) read(ctx context.Context, full string) (map[string]any, error) {
	now := time.Now()
	c.mu.Lock()
	if e, ok := c.cache[full]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return e.data, nil
	}
	c.mu.Unlock()

	secret, err := c.api.Logical().ReadWithContext(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("vault read %s: %w", full, err)
	}
	if secret == nil {
		return nil, fmt.Errorf("vault secret %s not found", full)
	}
	data := secret.Data
	if c.cfg.KVVersion == 2 {
		if inner, ok := data["data"].(map[string]any); ok {
			data = inner
		}
	}
	c.mu.Lock()
	c.cache[full] = entry{data: data, expires: now.Add(c.cfg.CacheTTL)}
	c.mu.Unlock()
	return data, nil
}

// fullPath places p under the configured mount, adding the data/ segment
// KV v2 expects.
func (c *Client) fullPath(p string) string {
	return mountPath(c.cfg.MountPath, c.cfg.KVVersion, p)
}

func mountPath(mount string, kvVersion int, p string) string {
	p = strings.TrimLeft(p, "/")
	mount = strings.Trim(mount, "/")
	switch {
	case mount == "":
		return p
	case p == "":
		return mount
	case strings.HasPrefix(p, mount+"/"):
		return p
	case kvVersion == 2:
		return path.Join(mount, "data", p)
	default:
		return path.Join(mount, p)
	}
}

// ParseRef splits vault://path#field into path and field.
func ParseRef(ref string) (string, string, error) {
	raw := strings.TrimSpace(ref)
	if !strings.HasPrefix(raw, secrets.Scheme) {
		return "", "", fmt.Errorf("invalid vault reference %q", ref)
	}
	p, field, _ := strings.Cut(strings.TrimPrefix(raw, secrets.Scheme), "#")
	if field == "" {
		field = defaultField
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", "", fmt.Errorf("vault reference %q missing path", ref)
	}
	return p, field, nil
}
