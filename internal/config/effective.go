package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

const redactedPlaceholder = "<redacted>"

// MarshalEffective returns the effective configuration rendered in the requested format
// after redacting sensitive fields.
func (c *Config) MarshalEffective(format string) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil config")
	}
	sanitized := c.redactedClone()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		return yaml.Marshal(&sanitized)
	case "json":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(&sanitized); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func (c *Config) redactedClone() Config {
	if c == nil {
		return Config{}
	}
	clone := *c
	clone.Backend.Mongo.URI = redactURL(c.Backend.Mongo.URI)
	clone.Backend.Postgres.DSN = redactURL(c.Backend.Postgres.DSN)
	if clone.Backend.Redis.Password != "" {
		clone.Backend.Redis.Password = redactedPlaceholder
	}
	if clone.Secrets.Vault.Token != "" {
		clone.Secrets.Vault.Token = redactedPlaceholder
	}
	if len(c.Telemetry.OTLP.Headers) > 0 {
		clone.Telemetry.OTLP.Headers = make(map[string]string, len(c.Telemetry.OTLP.Headers))
		for k := range c.Telemetry.OTLP.Headers {
			clone.Telemetry.OTLP.Headers[k] = redactedPlaceholder
		}
	}
	return clone
}

// redactURL hides the password of a connection URL. Values that do not parse
// as URLs with credentials are returned unchanged, except vault references
// which are never secret themselves.
func redactURL(raw string) string {
	if raw == "" || strings.HasPrefix(raw, "vault://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		if strings.Contains(raw, "password=") {
			return redactedPlaceholder
		}
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
