// Package config handles loading and validating feedwatch configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FEEDWATCH_* environment variables
//   - Validation of every section, reporting all problems at once
//   - Default values matching a local development server
//
// Every optional component (status API, journal, MQTT, Redis, Kafka,
// InfluxDB) has an enabled flag and is off by default, so an empty
// configuration follows bookmark:feed on ws://localhost:4000/socket/websocket
// and prints events.
//
// Secrets (MQTT, Redis and Kafka passwords, InfluxDB token) should be set via
// environment variables rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/feedwatch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Endpoint.URL)
package config
