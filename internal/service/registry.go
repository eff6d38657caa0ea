package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/thecatthatflies/melius/internal/shared/types"
)

var (
	// ErrInvalidOperation is returned for ids without a "<service>." prefix
	ErrInvalidOperation = errors.New("invalid operation id")

	// ErrServiceNotFound is returned when no provider owns the prefix
	ErrServiceNotFound = errors.New("service not found")
)

// Registry manages service discovery and execution
type Registry struct {
	services sync.Map
}

// Provider interface for service implementations
type Provider interface {
	Definition() types.Service
	Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error)
}

// NewRegistry creates a new service registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a service provider
func (r *Registry) Register(provider Provider) error {
	def := provider.Definition()
	if def.ID == "" {
		return fmt.Errorf("service ID cannot be empty")
	}

	r.services.Store(def.ID, provider)
	return nil
}

// Unregister removes a service provider
func (r *Registry) Unregister(serviceID string) {
	r.services.Delete(serviceID)
}

// Get retrieves a service by ID
func (r *Registry) Get(serviceID string) (Provider, bool) {
	val, ok := r.services.Load(serviceID)
	if !ok {
		return nil, false
	}
	return val.(Provider), true
}

// List returns registered services sorted by id, optionally filtered by category
func (r *Registry) List(category *types.Category) []types.Service {
	services := []types.Service{}
	r.services.Range(func(_, value interface{}) bool {
		def := value.(Provider).Definition()
		if category == nil || def.Category == *category {
			services = append(services, def)
		}
		return true
	})

	sort.Slice(services, func(i, j int) bool {
		return services[i].ID < services[j].ID
	})
	return services
}

// Tool looks up the definition of one operation
func (r *Registry) Tool(toolID string) (types.Tool, bool) {
	serviceID, _, ok := strings.Cut(toolID, ".")
	if !ok {
		return types.Tool{}, false
	}
	provider, ok := r.Get(serviceID)
	if !ok {
		return types.Tool{}, false
	}
	for _, tool := range provider.Definition().Tools {
		if tool.ID == toolID {
			return tool, true
		}
	}
	return types.Tool{}, false
}

// Discover finds relevant services for a free-text query
func (r *Registry) Discover(query string, limit int) []types.Service {
	type scoredService struct {
		service types.Service
		score   float64
	}

	queryLower := strings.ToLower(query)
	var results []scoredService

	r.services.Range(func(_, value interface{}) bool {
		def := value.(Provider).Definition()
		if score := r.calculateRelevance(queryLower, def); score > 0 {
			results = append(results, scoredService{service: def, score: score})
		}
		return true
	})

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].service.ID < results[j].service.ID
	})

	output := make([]types.Service, 0, limit)
	for i := 0; i < len(results) && i < limit; i++ {
		output = append(output, results[i].service)
	}
	return output
}

// Execute routes "<service>.<operation>" to its provider
func (r *Registry) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	serviceID, _, ok := strings.Cut(toolID, ".")
	if !ok || serviceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperation, toolID)
	}

	provider, ok := r.Get(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
	}

	return provider.Execute(ctx, toolID, params, appCtx)
}

// Stats returns registry statistics
func (r *Registry) Stats() map[string]interface{} {
	var total, totalTools int
	categories := make(map[string]int)

	r.services.Range(func(_, value interface{}) bool {
		def := value.(Provider).Definition()
		total++
		totalTools += len(def.Tools)
		categories[string(def.Category)]++
		return true
	})

	return map[string]interface{}{
		"total_services": total,
		"total_tools":    totalTools,
		"categories":     categories,
	}
}

func (r *Registry) calculateRelevance(query string, service types.Service) float64 {
	score := 0.0

	if strings.Contains(query, service.ID) || strings.Contains(query, strings.ToLower(service.Name)) {
		score += 10.0
	}

	for _, word := range strings.Fields(strings.ToLower(service.Description)) {
		if len(word) > 2 && strings.Contains(query, word) {
			score += 5.0
		}
	}

	for _, capability := range service.Capabilities {
		if strings.Contains(query, strings.ReplaceAll(strings.ToLower(capability), "_", " ")) {
			score += 3.0
		}
	}

	for _, tool := range service.Tools {
		if strings.Contains(query, strings.ToLower(tool.ID)) {
			score += 4.0
		}
	}

	if strings.Contains(query, string(service.Category)) {
		score += 2.0
	}

	return score
}
