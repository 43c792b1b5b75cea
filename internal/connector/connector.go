// Package connector implements the Connector Mediator (spec §4.10):
// typed operations against external collaborators, exposed as ordinary
// Tool Broker tools and resolving credentials from the Secrets interface
// on demand rather than ever persisting them in the relational store.
package connector

import (
	"context"
	"fmt"

	"github.com/Djtony707/TITAN/internal/secrets"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

// Operation is one typed action a connector type exposes (spec §4.10:
// "fetch issue, create commit, list events").
type Operation struct {
	Name        string
	Description string
	IsWrite     bool
	Schema      tools.Schema
	// Execute receives the connector instance's non-secret fields, the
	// resolved secret value (empty if the connector declares no
	// SecretKey), and the invocation args.
	Execute func(ctx context.Context, fields map[string]string, secret string, args map[string]any) (string, error)
}

// TypeDef is a connector type's fixed operation set (e.g. "github",
// "slack"). Each installed store.Connector row names one TypeDef by its
// Type field.
type TypeDef struct {
	Type       string
	Operations []Operation
}

// TypeRegistry holds the known connector types, keyed by Type.
type TypeRegistry struct {
	defs map[string]TypeDef
}

// NewTypeRegistry returns an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{defs: make(map[string]TypeDef)}
}

// Register adds a connector type definition.
func (r *TypeRegistry) Register(def TypeDef) {
	r.defs[def.Type] = def
}

// Get looks up a connector type definition.
func (r *TypeRegistry) Get(typeName string) (TypeDef, bool) {
	def, ok := r.defs[typeName]
	return def, ok
}

// Mediator wires installed connector instances (spec §3's Connector rows)
// to their type definitions and registers one Tool Broker tool per
// (connector instance, operation) pair — grounded on the teacher's
// internal/mcp.MCPClientManager.CallTool(ctx, toolID, args) dispatch,
// which resolves a dynamically discovered tool id to a typed external
// call the same way this Mediator resolves "connector.<id>.<op>".
type Mediator struct {
	st      *store.Store
	types   *TypeRegistry
	secrets secrets.Secrets
}

// NewMediator constructs a Mediator.
func NewMediator(st *store.Store, types *TypeRegistry, sec secrets.Secrets) *Mediator {
	return &Mediator{st: st, types: types, secrets: sec}
}

// ToolName is the Tool Broker name a connector operation is registered
// under.
func ToolName(connectorID, operation string) string {
	return fmt.Sprintf("connector.%s.%s", connectorID, operation)
}

// RegisterTools loads every installed connector from the store and
// registers its operations into reg, so the Planner can reference a
// connector call exactly like any built-in tool.
func (m *Mediator) RegisterTools(ctx context.Context, reg *tools.Registry) error {
	connectors, err := m.st.ListConnectors(ctx)
	if err != nil {
		return fmt.Errorf("list connectors: %w", err)
	}
	for _, c := range connectors {
		if err := m.registerConnector(reg, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mediator) registerConnector(reg *tools.Registry, c store.Connector) error {
	def, ok := m.types.Get(c.Type)
	if !ok {
		return fmt.Errorf("connector %s: unknown type %q", c.ID, c.Type)
	}
	for _, op := range def.Operations {
		op := op
		c := c
		capability := tools.CapabilityNet
		if op.IsWrite {
			capability = tools.CapabilityWrite
		}
		reg.MustRegister(&tools.Tool{
			Name:             ToolName(c.ID, op.Name),
			Description:      fmt.Sprintf("%s: %s", c.DisplayName, op.Description),
			Capability:       capability,
			InitiatesNetwork: true,
			ConnectorWrite:   op.IsWrite,
			Idempotency:      idempotencyFor(op.IsWrite),
			Schema:           op.Schema,
			Execute: func(ctx context.Context, args map[string]any) (string, error) {
				secret, err := m.resolveSecret(ctx, c)
				if err != nil {
					return "", fmt.Errorf("connector %s: %w", c.ID, err)
				}
				return op.Execute(ctx, c.Fields, secret, args)
			},
		})
	}
	return nil
}

func (m *Mediator) resolveSecret(ctx context.Context, c store.Connector) (string, error) {
	if c.SecretKey == "" {
		return "", nil
	}
	if m.secrets == nil {
		return "", fmt.Errorf("connector %s declares secret key %q but no Secrets source is configured", c.ID, c.SecretKey)
	}
	return m.secrets.Get(ctx, c.SecretKey)
}

func idempotencyFor(isWrite bool) tools.IdempotencyClass {
	if isWrite {
		return tools.NonIdempotent
	}
	return tools.Idempotent
}
