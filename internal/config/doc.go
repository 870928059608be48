/*
Package config provides hierarchical configuration for the kernel: YAML
file, environment variables, then runtime overrides, in that precedence
order.

# Configuration Structure

	global:          logging, service ports
	mounts:          virtual path prefix -> backend bindings
	cas:             content-addressed storage backend (passthrough|s3)
	metadata_store:  replicated metadata store + write buffer
	cluster:         replicated-log / gossip topology
	rebac:           namespace schema path, check cache, depth limits
	events:          distributed vs same-box event/lock track
	cache:           ReBAC check/bitmap cache sizing
	network:         timeouts, retry, circuit breaker, rate limiting
	security:        TLS, open-access fallback, auth header style
	monitoring:      Prometheus metrics, health checks, logging, Sentry
	features:        feature flags

# Usage

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("/etc/nexuskernel/config.yaml"); err != nil {
		log.Fatal(err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

Environment variables use the NEXUSKERNEL_ prefix and take precedence over
file-loaded values (NEXUSKERNEL_LOG_LEVEL, NEXUSKERNEL_CAS_BACKEND,
NEXUSKERNEL_CLUSTER_ENABLED, NEXUSKERNEL_REBAC_SCHEMA, and so on).
*/
package config
