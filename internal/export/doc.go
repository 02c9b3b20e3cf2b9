// Package export produces local dump artifacts from a source repository
// server. It layers validation and structured logging over the wire client
// and stamps every artifact with the repository it came from.
package export
