package consul

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Client wraps the Consul API client
type Client struct {
	apiClient *api.Client
	enabled   bool
	logger    *zap.Logger
}

// NewClient creates a new Consul client.
// An unreachable agent yields a disabled client rather than an error.
func NewClient(address string, enabled bool, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	apiClient, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if _, _, err = apiClient.Health().State(api.HealthAny, nil); err != nil {
		logger.Warn("Consul connection test failed, continuing without Consul", zap.Error(err))
		return &Client{enabled: false, logger: logger}, nil
	}

	logger.Info("Consul client initialized", zap.String("address", cfg.Address))
	return &Client{
		apiClient: apiClient,
		enabled:   true,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether Consul is enabled
func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled && c.apiClient != nil
}

// GetKV retrieves a value from Consul KV store
func (c *Client) GetKV(key string) (string, bool, error) {
	if !c.IsEnabled() {
		return "", false, fmt.Errorf("Consul is not enabled")
	}

	pair, _, err := c.apiClient.KV().Get(key, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if pair == nil {
		return "", false, nil
	}
	return string(pair.Value), true, nil
}

// RegisterService registers a service with Consul
func (c *Client) RegisterService(registration *api.AgentServiceRegistration) error {
	if !c.IsEnabled() {
		return fmt.Errorf("Consul is not enabled")
	}
	if err := c.apiClient.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	return nil
}

// DeregisterService deregisters a service from Consul
func (c *Client) DeregisterService(serviceID string) error {
	if !c.IsEnabled() {
		return nil
	}
	if err := c.apiClient.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	c.logger.Info("Service deregistered from Consul", zap.String("service_id", serviceID))
	return nil
}
