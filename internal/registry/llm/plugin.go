// Package llm is the provider registry for cleanup-LLM backends (C4),
// mirroring internal/registry/transcription's shape and its centralised
// parameter validation.
package llm

import (
	"context"
	"fmt"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
)

// ParamKind is the primitive type a provider parameter accepts.
type ParamKind string

const (
	KindFloat  ParamKind = "float"
	KindInt    ParamKind = "int"
	KindBool   ParamKind = "bool"
	KindString ParamKind = "string"
)

// ParameterSchema describes one recognized provider parameter.
type ParameterSchema struct {
	Kind          ParamKind
	Min           *float64
	Max           *float64
	Default       any
	AllowedValues []any
	Description   string
}

// ModelDescriptor names one model a provider can run.
type ModelDescriptor struct {
	ID   string
	Name string
}

// ProviderDescriptor is returned by list_available (spec.md §4.4).
type ProviderDescriptor struct {
	ID         string
	Name       string
	Models     []ModelDescriptor
	Parameters map[string]ParameterSchema
}

// Request carries one cleanup call's rendered prompt and parameters.
type Request struct {
	ModelID    string
	Prompt     string
	Parameters map[string]any
}

// Response is what a provider returns from one cleanup call.
type Response struct {
	Text     string
	Metadata map[string]any
}

// Provider is one LLM backend.
type Provider interface {
	ID() string
	Descriptor() ProviderDescriptor
	Complete(ctx context.Context, req Request) (Response, error)
}

// Loader creates a Provider from config.
type Loader func(ctx context.Context, cfg *config.Config) (Provider, error)

// Plugin represents a registered LLM provider.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an LLM provider plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named provider.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown llm provider %q; valid: %v", name, Names())
}

// ValidateParameters projects input through schema the same way
// transcription.ValidateParameters does: unknown keys rejected, missing
// keys defaulted, numeric values clamped, enum values checked.
func ValidateParameters(schema map[string]ParameterSchema, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema))
	for name, def := range schema {
		out[name] = def.Default
	}
	for name, raw := range input {
		def, ok := schema[name]
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: not recognized by this provider", name)
		}
		validated, err := validateOne(name, def, raw)
		if err != nil {
			return nil, err
		}
		out[name] = validated
	}
	return out, nil
}

func validateOne(name string, def ParameterSchema, raw any) (any, error) {
	switch def.Kind {
	case KindFloat:
		v, ok := toFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected float, got %T", name, raw)
		}
		if def.Min != nil && v < *def.Min {
			v = *def.Min
		}
		if def.Max != nil && v > *def.Max {
			v = *def.Max
		}
		return v, nil
	case KindInt:
		v, ok := toFloat64(raw)
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected int, got %T", name, raw)
		}
		iv := int(v)
		if def.Min != nil && float64(iv) < *def.Min {
			iv = int(*def.Min)
		}
		if def.Max != nil && float64(iv) > *def.Max {
			iv = int(*def.Max)
		}
		return iv, nil
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected bool, got %T", name, raw)
		}
		return b, nil
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected string, got %T", name, raw)
		}
		if len(def.AllowedValues) > 0 && !containsAny(def.AllowedValues, s) {
			return nil, fmt.Errorf("invalid parameter %q: %q is not one of %v", name, s, def.AllowedValues)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid parameter %q: unknown kind %q", name, def.Kind)
	}
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func containsAny(allowed []any, value string) bool {
	for _, a := range allowed {
		if s, ok := a.(string); ok && s == value {
			return true
		}
	}
	return false
}
