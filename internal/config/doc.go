// Package config loads YAML configuration for the realtime client tools,
// applies defaults, and validates required fields. ${VAR} references in the
// file are expanded from the environment.
package config
