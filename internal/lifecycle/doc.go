// Package lifecycle provisions and tears down local GraphDB container
// instances through the Docker Engine HTTP API. Startup health polling and
// volume removal are the only retried operations, both bounded to ten
// one-second attempts.
package lifecycle
