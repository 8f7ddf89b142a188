// Package config loads the engine's configuration from defaults, an
// optional YAML file, and environment-variable overrides, in that order of
// precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("taskmesh.yaml").
//	    WithEnvPrefix("TASKMESH").
//	    Load()
package config
