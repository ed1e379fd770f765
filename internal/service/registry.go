package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
)

// RegistryService is the queryable catalog of invocable capabilities.
// Specs are immutable once registered; each tool's input schema is
// compiled at registration and every invocation is validated against it
// before the handler runs.
type RegistryService struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

type registeredTool struct {
	def    tool.Definition
	schema *jsonschema.Schema
}

// NewRegistryService creates an empty tool registry.
func NewRegistryService() *RegistryService {
	return &RegistryService{tools: make(map[string]*registeredTool)}
}

// Register adds a tool definition. Fails with ErrDuplicate if the name is
// taken and ErrValidation if the spec or its schema is malformed.
func (s *RegistryService) Register(def tool.Definition) error {
	if err := def.Spec.Validate(); err != nil {
		return err
	}
	if def.Handler == nil {
		return fmt.Errorf("%w: tool %q: handler is required", domain.ErrValidation, def.Spec.Name)
	}

	schema, err := compileSchema(def.Spec.Name, def.Spec.InputSchema)
	if err != nil {
		return fmt.Errorf("%w: tool %q: %v", domain.ErrValidation, def.Spec.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[def.Spec.Name]; exists {
		return fmt.Errorf("%w: tool %q", domain.ErrDuplicate, def.Spec.Name)
	}
	s.tools[def.Spec.Name] = &registeredTool{def: def, schema: schema}
	return nil
}

// RegisterAll registers definitions in order, stopping at the first error.
func (s *RegistryService) RegisterAll(defs ...tool.Definition) error {
	for _, def := range defs {
		if err := s.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a registered definition by name.
func (s *RegistryService) Get(name string) (tool.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.tools[name]
	if !ok {
		return tool.Definition{}, false
	}
	return rt.def, true
}

// List returns all registered specs sorted by name.
func (s *RegistryService) List() []tool.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := make([]tool.Spec, 0, len(s.tools))
	for _, rt := range s.tools {
		specs = append(specs, rt.def.Spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

// Len returns the number of registered tools.
func (s *RegistryService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tools)
}

// Invoke validates args against the tool's input schema and runs the
// handler. Fails with ErrNotFound for unknown tools and ErrValidation
// when a required argument is missing or mistyped; the handler never
// runs on a validation failure.
func (s *RegistryService) Invoke(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	s.mu.RLock()
	rt, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tool %q", domain.ErrNotFound, name)
	}

	if err := s.validateArgs(rt, args); err != nil {
		return nil, err
	}

	return rt.def.Handler(ctx, args)
}

// ValidateArgs checks args against a registered tool's schema without
// invoking it.
func (s *RegistryService) ValidateArgs(name string, args map[string]any) error {
	s.mu.RLock()
	rt, ok := s.tools[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: tool %q", domain.ErrNotFound, name)
	}
	return s.validateArgs(rt, args)
}

func (s *RegistryService) validateArgs(rt *registeredTool, args map[string]any) error {
	instance := any(args)
	if args == nil {
		instance = map[string]any{}
	}
	if err := rt.schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: tool %q: %v", domain.ErrValidation, rt.def.Spec.Name, err)
	}
	return nil
}

// compileSchema compiles a raw JSON schema for validation at call time.
func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}
