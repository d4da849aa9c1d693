// Package config loads, validates, and normalizes rollscout configuration.
package config
