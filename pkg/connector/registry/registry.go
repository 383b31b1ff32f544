package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/logger"
	"go.uber.org/zap"
)

// Registry manages destination registration and instantiation
type Registry struct {
	destinations map[string]DestinationFactory
	catalog      map[string]*ConnectorInfo
	mu           sync.RWMutex
	logger       *zap.Logger
}

// DestinationFactory creates a destination from its configuration
type DestinationFactory func(cfg *config.DestinationConfig) (core.Destination, error)

// ConnectorInfo describes a registered destination
type ConnectorInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Required    []string `json:"required"`
}

var globalRegistry = NewRegistry()

// NewRegistry creates a new destination registry
func NewRegistry() *Registry {
	return &Registry{
		destinations: make(map[string]DestinationFactory),
		catalog:      make(map[string]*ConnectorInfo),
		logger:       logger.Get().With(zap.String("component", "destination_registry")),
	}
}

// RegisterDestination registers a destination factory. info may be nil.
func (r *Registry) RegisterDestination(name string, factory DestinationFactory, info *ConnectorInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("destination %s already registered", name))
	}

	r.destinations[name] = factory
	if info == nil {
		info = &ConnectorInfo{Name: name}
	}
	r.catalog[name] = info
	r.logger.Debug("destination registered", zap.String("name", name))
	return nil
}

// CreateDestination creates a destination instance
func (r *Registry) CreateDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "destination config is nil")
	}

	r.mu.RLock()
	factory, exists := r.destinations[cfg.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "destination %s not found (registered: %v)", cfg.Type, r.ListDestinations())
	}

	destination, err := factory(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create destination %s", cfg.Type))
	}

	return destination, nil
}

// ListDestinations returns registered destination names, sorted
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	destinations := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		destinations = append(destinations, name)
	}
	sort.Strings(destinations)
	return destinations
}

// HasDestination checks if a destination is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

// Info returns catalog information for a destination
func (r *Registry) Info(name string) (*ConnectorInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, exists := r.catalog[name]
	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("destination %s not found in catalog", name))
	}
	return info, nil
}

// Clear removes all registered destinations (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.destinations = make(map[string]DestinationFactory)
	r.catalog = make(map[string]*ConnectorInfo)
}

// RegisterDestination registers a destination in the global registry
func RegisterDestination(name string, factory DestinationFactory, info *ConnectorInfo) error {
	return globalRegistry.RegisterDestination(name, factory, info)
}

// CreateDestination creates a destination from the global registry
func CreateDestination(cfg *config.DestinationConfig) (core.Destination, error) {
	return globalRegistry.CreateDestination(cfg)
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// HasDestination checks if a destination is registered in the global registry
func HasDestination(name string) bool {
	return globalRegistry.HasDestination(name)
}

// Info returns catalog information from the global registry
func Info(name string) (*ConnectorInfo, error) {
	return globalRegistry.Info(name)
}
