// Package profile creates and deletes browser profiles on the daemon.
package profile

import (
	"context"
	"errors"

	"github.com/entrhq/adspower/pkg/config"
	"github.com/entrhq/adspower/pkg/daemon"
	"github.com/entrhq/adspower/pkg/logging"
)

// BrowserChrome is the only kernel type the client provisions.
const BrowserChrome = "chrome"

// ID identifies a profile on the daemon. It is opaque to the client.
type ID string

func (id ID) String() string {
	return string(id)
}

// Config holds the provisioning parameters for a new profile.
type Config struct {
	GroupID        string `yaml:"group_id" json:"group_id"`
	ProxyID        string `yaml:"proxy_id" json:"proxy_id"`
	BrowserType    string `yaml:"browser_type" json:"browser_type"`
	BrowserVersion string `yaml:"browser_version" json:"browser_version"`
}

// DefaultConfig returns a chrome profile in group "0" using proxy "1".
func DefaultConfig(browserVersion string) Config {
	if browserVersion == "" {
		browserVersion = config.DefaultBrowserVersion
	}
	return Config{
		GroupID:        config.DefaultGroupID,
		ProxyID:        config.DefaultProxyID,
		BrowserType:    BrowserChrome,
		BrowserVersion: browserVersion,
	}
}

// ConfigFrom builds a profile config from the client settings.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig(cfg.BrowserVersion)
	if cfg.GroupID != "" {
		c.GroupID = cfg.GroupID
	}
	if cfg.ProxyID != "" {
		c.ProxyID = cfg.ProxyID
	}
	return c
}

type createRequest struct {
	GroupID           string            `json:"group_id"`
	ProxyID           string            `json:"proxyid"`
	FingerprintConfig fingerprintConfig `json:"fingerprint_config"`
}

type fingerprintConfig struct {
	BrowserKernelConfig kernelConfig `json:"browser_kernel_config"`
}

type kernelConfig struct {
	Version string `json:"version"`
	Type    string `json:"type"`
}

type deleteRequest struct {
	APIKey  string   `json:"api_key"`
	UserIDs []string `json:"user_ids"`
}

// Registry provisions and deletes profiles.
type Registry struct {
	client *daemon.Client
	logger *logging.Logger
}

// NewRegistry creates a registry on top of client. A nil logger discards output.
func NewRegistry(client *daemon.Client, logger *logging.Logger) *Registry {
	return &Registry{client: client, logger: logger}
}

// Create provisions a new profile and returns its id. A call only succeeds
// when the daemon reports success and hands back a non-empty id.
//
// Create does not retry. Throttling is absorbed by the client's pacer.
func (r *Registry) Create(ctx context.Context, cfg Config) (ID, error) {
	if cfg.BrowserType == "" {
		cfg.BrowserType = BrowserChrome
	}

	req := createRequest{
		GroupID: cfg.GroupID,
		ProxyID: cfg.ProxyID,
		FingerprintConfig: fingerprintConfig{
			BrowserKernelConfig: kernelConfig{
				Version: cfg.BrowserVersion,
				Type:    cfg.BrowserType,
			},
		},
	}

	env, err := r.client.Post(ctx, daemon.PathUserCreate, req)
	if err != nil {
		return "", &RegistrationError{Op: "create", Err: err}
	}
	if !env.OK() {
		r.logger.Warnf("profile create refused: %s", env.Msg)
		return "", &RegistrationError{Op: "create", Envelope: env}
	}

	id := ID(env.Get("data.id").String())
	if id == "" {
		return "", &RegistrationError{Op: "create", Envelope: env, Err: errors.New("response carries no profile id")}
	}

	r.logger.Infof("created profile %s (group %s, %s %s)", id, cfg.GroupID, cfg.BrowserType, cfg.BrowserVersion)
	return id, nil
}

// Delete removes a profile. It is not idempotent: the daemon rejects a
// second delete of the same id.
func (r *Registry) Delete(ctx context.Context, id ID) error {
	if id == "" {
		return &RegistrationError{Op: "delete", Err: errors.New("profile id is empty")}
	}

	env, err := r.client.Post(ctx, daemon.PathUserDelete, deleteRequest{
		APIKey:  r.client.APIKey(),
		UserIDs: []string{string(id)},
	})
	if err != nil {
		return &RegistrationError{Op: "delete", ID: id, Err: err}
	}
	if !env.OK() {
		r.logger.Warnf("profile %s delete refused: %s", id, env.Msg)
		return &RegistrationError{Op: "delete", ID: id, Envelope: env}
	}

	r.logger.Infof("deleted profile %s", id)
	return nil
}
