// Package core contains the canonical tmsync domain contracts, entities, and
// shared infrastructure (errors, config, telemetry, in-memory stores). Adapter
// packages depend on core; core must not depend on the transport, mapping, or
// storage packages.
package core
