// Package graphdb implements the wire-level client for one GraphDB-compatible
// server instance. It covers repository listing, creation from a rendered
// turtle configuration, deletion, streamed export and import of binary RDF
// statement dumps, and named-graph operations, all over the server's HTTP
// REST surface with HTTP Basic authentication.
package graphdb
