package consul

import (
	"fmt"
	"os"

	"github.com/aihub/medical-rag/internal/config"
	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ServiceRegistry handles service registration with Consul
type ServiceRegistry struct {
	client      *Client
	serviceID   string
	serviceName string
	logger      *zap.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(client *Client, serviceID, serviceName string, logger *zap.Logger) *ServiceRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if serviceID == "" {
		host, _ := os.Hostname()
		serviceID = fmt.Sprintf("%s-%s", serviceName, host)
	}
	return &ServiceRegistry{
		client:      client,
		serviceID:   serviceID,
		serviceName: serviceName,
		logger:      logger,
	}
}

// ServiceID returns the registered instance id
func (sr *ServiceRegistry) ServiceID() string {
	return sr.serviceID
}

// Registration builds the agent registration with an HTTP check on /health
func (sr *ServiceRegistry) Registration(cfg *config.Config) *api.AgentServiceRegistration {
	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}

	return &api.AgentServiceRegistration{
		ID:      sr.serviceID,
		Name:    sr.serviceName,
		Tags:    []string{"rag", "medical", "beego", cfg.Server.Env},
		Address: hostname,
		Port:    cfg.Server.Port,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, cfg.Server.Port),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"env":             cfg.Server.Env,
			"embedding_model": cfg.Embedding.Model,
			"llm_model":       cfg.Generation.Model,
		},
	}
}

// Register registers the service with Consul
func (sr *ServiceRegistry) Register(cfg *config.Config) error {
	if !sr.client.IsEnabled() {
		sr.logger.Info("Consul is not enabled, skipping service registration")
		return nil
	}

	registration := sr.Registration(cfg)
	if err := sr.client.RegisterService(registration); err != nil {
		return err
	}

	sr.logger.Info("Service registered with Consul",
		zap.String("service_id", sr.serviceID),
		zap.String("service_name", sr.serviceName),
		zap.String("address", registration.Address),
		zap.Int("port", registration.Port),
	)
	return nil
}

// Deregister deregisters the service from Consul
func (sr *ServiceRegistry) Deregister() error {
	return sr.client.DeregisterService(sr.serviceID)
}
