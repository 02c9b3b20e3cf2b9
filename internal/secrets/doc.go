// Package secrets resolves server credentials from an Infisical-compatible
// secrets service using machine identity universal-auth login.
package secrets
