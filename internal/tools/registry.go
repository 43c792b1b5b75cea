package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/logging"
)

// Registry holds all available tools and provides lookup functionality. It
// is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	// byCapability provides fast lookup by capability class, which the Tool
	// Broker uses to enforce per-class concurrency caps (spec §4.5 step 4).
	byCapability map[CapabilityClass][]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:        make(map[string]*Tool),
		byCapability: make(map[CapabilityClass][]*Tool),
	}
}

// Register adds a tool to the registry. Returns an error if a tool with
// the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool
	r.byCapability[tool.Capability] = append(r.byCapability[tool.Capability], tool)

	logging.For(logging.CategoryBroker).Sugar().Debugf(
		"registered tool %s (capability=%s, execsSubprocess=%v, initiatesNetwork=%v)",
		tool.Name, tool.Capability, tool.ExecutesSubprocess, tool.InitiatesNetwork)
	return nil
}

// MustRegister registers a tool and panics on error. Use for static
// catalogue registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// GetByCapability returns all tools in a capability class, name-sorted.
func (r *Registry) GetByCapability(class CapabilityClass) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, len(r.byCapability[class]))
	copy(tools, r.byCapability[class])
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// All returns all registered tools.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name with the given arguments. This is the raw
// catalogue-level call with no schema canonicalization, policy check, or
// trace recording — the Tool Broker wraps this with the rest of the
// execute(step) contract (spec §4.5); call it directly only from tests.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.ExecuteTool(ctx, tool, args)
}

// ExecuteTool runs a specific tool with the given arguments.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]any) (*Result, error) {
	start := time.Now()

	if err := r.validateArgs(tool, args); err != nil {
		return &Result{ToolName: tool.Name, Err: err, DurationMs: time.Since(start).Milliseconds()}, err
	}

	log := logging.For(logging.CategoryBroker).Sugar()
	log.Debugf("executing tool %s", tool.Name)
	output, err := tool.Execute(ctx, args)
	duration := time.Since(start)
	log.Debugf("tool %s completed in %v (success=%v)", tool.Name, duration, err == nil)

	return &Result{
		ToolName:   tool.Name,
		Output:     output,
		Err:        err,
		DurationMs: duration.Milliseconds(),
	}, err
}

func (r *Registry) validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// Global registry instance for convenience. RegisterBuiltins takes an
// explicit *Registry and does not fill this one.
var globalRegistry = NewRegistry()

// Global returns the global tool registry.
func Global() *Registry { return globalRegistry }

// Register adds a tool to the global registry.
func Register(tool *Tool) error { return globalRegistry.Register(tool) }

// MustRegisterGlobal registers a tool in the global registry, panicking on error.
func MustRegisterGlobal(tool *Tool) { globalRegistry.MustRegister(tool) }

// Get retrieves a tool from the global registry.
func Get(name string) *Tool { return globalRegistry.Get(name) }

// Execute runs a tool from the global registry.
func Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	return globalRegistry.Execute(ctx, name, args)
}
