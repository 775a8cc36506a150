package circuitbreaker

import (
	"fmt"
	"sort"
	"time"

	"github.com/cedrospay/agentpay/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ServiceType identifies an external service for bulkhead isolation. Unlike
// a closed enum, new service types can be introduced simply by registering
// a BreakerConfig under that name (a fresh EVM network added to pkg/network
// needs no change here) — format per-network services as "evm_rpc:<network>".
type ServiceType string

const (
	ServiceSolanaRPC           ServiceType = "solana_rpc"
	ServiceEVMRPC              ServiceType = "evm_rpc"
	ServiceCCTPAttestation     ServiceType = "cctp_attestation"
	ServiceIdentityRegistry    ServiceType = "identity_registry"
	ServiceReputationRegistry  ServiceType = "reputation_registry"
	ServiceRegistryFetch       ServiceType = "registry_fetch"
	ServiceStripe              ServiceType = "stripe_api"
	ServiceWebhook             ServiceType = "webhook"
)

// EVMNetworkService builds the bulkhead key for a specific EVM chain's RPC
// endpoint, so a stalled Base RPC doesn't trip the breaker guarding Arbitrum.
func EVMNetworkService(network string) ServiceType {
	return ServiceType(fmt.Sprintf("%s:%s", ServiceEVMRPC, network))
}

// Manager manages circuit breakers for different external services.
// Provides bulkhead isolation - each service has its own circuit breaker
// to prevent cascading failures across service boundaries.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
}

// Config holds circuit breaker configuration for all services.
type Config struct {
	Enabled  bool
	Services map[ServiceType]BreakerConfig
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open. Default: 1
	MaxRequests uint32

	// Interval is the cyclic period in closed state to clear the internal counts.
	// If 0, never clears. Default: 60s
	Interval time.Duration

	// Timeout is the period of the open state after which the state becomes half-open.
	// Default: 30s
	Timeout time.Duration

	// ReadyToTrip is called whenever a request fails in the closed state.
	// If it returns true, the circuit breaker trips to open state.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig) *Manager {
	services := make(map[ServiceType]BreakerConfig, len(cfg.Services))
	for name, svc := range cfg.Services {
		services[ServiceType(name)] = BreakerConfig{
			MaxRequests:         svc.MaxRequests,
			Interval:            svc.Interval.Duration,
			Timeout:             svc.Timeout.Duration,
			ConsecutiveFailures: svc.ConsecutiveFailures,
			FailureRatio:        svc.FailureRatio,
			MinRequests:         svc.MinRequests,
		}
	}
	return NewManager(Config{Enabled: cfg.Enabled, Services: services})
}

// NewManager creates a circuit breaker manager with the given configuration.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
	}

	if !cfg.Enabled {
		// Return manager with no breakers (pass-through)
		return m
	}

	for service, bc := range cfg.Services {
		m.breakers[service] = gobreaker.NewCircuitBreaker(toGobreakerSettings(string(service), bc))
	}

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If circuit breaker is disabled or not configured for the service, executes directly.
// Unregistered services (e.g. a newly onboarded EVM network with no config
// entry yet) pass through rather than failing closed.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	if !m.config.Enabled {
		return fn()
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return fn()
	}

	return breaker.Execute(fn)
}

// State returns the current state of a circuit breaker.
// Returns "disabled" if circuit breakers are not enabled or service not found.
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}

	return breaker.State().String()
}

// Counts returns the current counts for a circuit breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	if !m.config.Enabled {
		return Counts{}
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return Counts{}
	}

	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// State is a point-in-time snapshot of one breaker's status, surfaced by
// the admin/webhook HTTP surface so an operator can see which external
// services are currently tripped without reading logs.
type State struct {
	Service string `json:"service"`
	State   string `json:"state"`
	Counts  Counts `json:"counts"`
}

// Snapshot reports State for every configured service, sorted by name for
// stable output.
func (m *Manager) Snapshot() []State {
	names := make([]string, 0, len(m.config.Services))
	for svc := range m.config.Services {
		names = append(names, string(svc))
	}
	sort.Strings(names)

	out := make([]State, 0, len(names))
	for _, name := range names {
		svc := ServiceType(name)
		out = append(out, State{Service: name, State: m.State(svc), Counts: m.Counts(svc)})
	}
	return out
}

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// toGobreakerSettings converts our config to gobreaker.Settings.
func toGobreakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}

			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
				if counts.Requests >= cfg.MinRequests {
					failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
					if failureRate >= cfg.FailureRatio {
						return true
					}
				}
			}

			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuitbreaker.state_change")
		},
	}
}

// DefaultConfig returns sensible defaults for circuit breaker configuration.
func DefaultConfig() Config {
	std := BreakerConfig{
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}
	return Config{
		Enabled: true,
		Services: map[ServiceType]BreakerConfig{
			ServiceSolanaRPC:          std,
			ServiceEVMRPC:             std,
			ServiceIdentityRegistry:   std,
			ServiceReputationRegistry: std,
			ServiceRegistryFetch:      std,
			ServiceStripe:             std,
			ServiceCCTPAttestation: {
				MaxRequests:         5,
				Interval:            60 * time.Second,
				Timeout:             45 * time.Second,
				ConsecutiveFailures: 6,
				FailureRatio:        0.6,
				MinRequests:         10,
			},
			ServiceWebhook: {
				MaxRequests:         5,
				Interval:            60 * time.Second,
				Timeout:             60 * time.Second, // Longer timeout for webhooks
				ConsecutiveFailures: 10,                // More tolerant for webhooks
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}
