// Package infra contains technical adapters such as the PostgreSQL belief
// store, the MQTT belief ingestor and metrics exporters. These packages
// depend only on the interfaces defined in the core packages.
package infra
