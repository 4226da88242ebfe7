// Package config loads and validates the gatherer's YAML configuration.
package config
