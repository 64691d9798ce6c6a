// Package kek is the plugin registry for KEK backends, mirroring the
// Register/Names/Select shape used throughout this codebase for every other
// pluggable concern (transcription providers, LLM providers, storage).
package kek

import (
	"context"
	"fmt"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/kek"
)

// Plugin bundles a backend name with its loader function.
type Plugin struct {
	Name   string
	Loader func(ctx context.Context, cfg *config.Config) (kek.Backend, error)
}

var plugins []Plugin

// Register adds a KEK backend plugin. Called from init() in provider packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered backend names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the Plugin for the given name.
func Select(name string) (Plugin, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p, nil
		}
	}
	return Plugin{}, fmt.Errorf("unknown kek backend %q; registered: %v", name, Names())
}
