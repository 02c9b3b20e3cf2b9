// Package load pushes dump artifacts into a target repository server. Target
// repositories are created from the exported configuration only when they do
// not exist yet.
package load
