package graphdb

import (
	"fmt"
	"net/http"
)

const (
	networkErrorTemplateConstant  = "%s against %s failed: %s"
	authErrorTemplateConstant     = "%s rejected with status %d: check credentials for %s"
	notFoundErrorTemplateConstant = "%s: resource %q not found"
	conflictErrorTemplateConstant = "repository %q already exists"
	statusErrorTemplateConstant   = "%s returned unexpected status %d"
	decodingErrorTemplateConstant = "%s response decoding failed: %s"
	invalidInputTemplateConstant  = "%s: %s"
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationName identifies a named client operation for error reporting.
type OperationName string

// Operation names surfaced in client errors.
const (
	OperationListRepositories    OperationName = "ListRepositories"
	OperationCreateRepository    OperationName = "CreateRepository"
	OperationDeleteRepository    OperationName = "DeleteRepository"
	OperationExportRepository    OperationName = "ExportRepository"
	OperationImportRepository    OperationName = "ImportRepository"
	OperationListGraphs          OperationName = "ListGraphs"
	OperationExportGraph         OperationName = "ExportGraph"
	OperationInsertGraph         OperationName = "InsertGraph"
	OperationCountStatements     OperationName = "CountStatements"
	OperationCountTriplesByGraph OperationName = "CountTriplesByGraph"
)

// NetworkError reports transport-level failures (connection, DNS, timeout).
type NetworkError struct {
	Operation OperationName
	ServerURL string
	Cause     error
}

// Error describes the transport failure.
func (networkError NetworkError) Error() string {
	return fmt.Sprintf(networkErrorTemplateConstant, networkError.Operation, networkError.ServerURL, networkError.Cause)
}

// Unwrap exposes the underlying transport error.
func (networkError NetworkError) Unwrap() error {
	return networkError.Cause
}

// AuthError reports credential rejection (401/403).
type AuthError struct {
	Operation  OperationName
	ServerURL  string
	StatusCode int
}

// Error describes the authentication failure.
func (authError AuthError) Error() string {
	return fmt.Sprintf(authErrorTemplateConstant, authError.Operation, authError.StatusCode, authError.ServerURL)
}

// NotFoundError reports an absent repository or graph.
type NotFoundError struct {
	Operation OperationName
	Resource  string
}

// Error describes the missing resource.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.Operation, notFoundError.Resource)
}

// ConflictError reports a create call against an existing repository identifier.
type ConflictError struct {
	RepositoryID string
}

// Error describes the conflict.
func (conflictError ConflictError) Error() string {
	return fmt.Sprintf(conflictErrorTemplateConstant, conflictError.RepositoryID)
}

// StatusError reports any other unexpected HTTP status.
type StatusError struct {
	Operation  OperationName
	StatusCode int
}

// Error describes the unexpected status.
func (statusError StatusError) Error() string {
	return fmt.Sprintf(statusErrorTemplateConstant, statusError.Operation, statusError.StatusCode)
}

// ResponseDecodingError reports malformed server responses.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(decodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying decoding error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

func classifyStatus(operation OperationName, serverURL string, resource string, statusCode int) error {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return AuthError{Operation: operation, ServerURL: serverURL, StatusCode: statusCode}
	case statusCode == http.StatusNotFound:
		return NotFoundError{Operation: operation, Resource: resource}
	case statusCode == http.StatusConflict:
		return ConflictError{RepositoryID: resource}
	default:
		return StatusError{Operation: operation, StatusCode: statusCode}
	}
}
