// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to application settings, including the language model credential
// pool and the throttling knobs of the request scheduler, while keeping
// configuration details separate from business logic.
package config
