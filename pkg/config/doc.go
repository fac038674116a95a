// Package config loads the fleetroll YAML configuration. Missing fields keep
// the defaults of the blue/green agent fleet module; Validate checks the result
// before any component is built from it.
package config
