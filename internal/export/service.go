package export

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ontofleet/graphport/internal/graphdb"
)

const (
	sourceClientMissingMessageConstant   = "source repository client not configured"
	logMessageExportStartedConstant      = "Exporting repository"
	logMessageGraphExportStartedConstant = "Exporting graph"
	logFieldRepositoryConstant           = "repository"
	logFieldGraphConstant                = "graph"
	logFieldServerConstant               = "server"
)

var errSourceClientMissing = errors.New(sourceClientMissingMessageConstant)

// RepositoryReader describes the wire operations the export service performs
// against the source server.
type RepositoryReader interface {
	ServerURL() string
	ExportRepository(executionContext context.Context, repositoryID string) (graphdb.ExportArtifact, error)
	ExportGraph(executionContext context.Context, repositoryID string, graphURI string) (graphdb.GraphArtifact, error)
	ListGraphs(executionContext context.Context, repositoryID string) ([]string, error)
}

// ServiceDependencies describes required collaborators for exports.
type ServiceDependencies struct {
	Logger *zap.Logger
	Source RepositoryReader
}

// Service exports repository configurations, statement dumps, and named
// graphs from one source server.
type Service struct {
	logger *zap.Logger
	source RepositoryReader
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Source == nil {
		return nil, errSourceClientMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger, source: dependencies.Source}, nil
}

// Export downloads the repository configuration and full statement dump into
// freshly named artifact files.
func (service *Service) Export(executionContext context.Context, repositoryID string) (graphdb.ExportArtifact, error) {
	service.logger.Info(
		logMessageExportStartedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldServerConstant, service.source.ServerURL()),
	)

	return service.source.ExportRepository(executionContext, repositoryID)
}

// ExportGraph downloads one named graph into its deterministic dump file.
func (service *Service) ExportGraph(executionContext context.Context, repositoryID string, graphURI string) (graphdb.GraphArtifact, error) {
	service.logger.Info(
		logMessageGraphExportStartedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldGraphConstant, graphURI),
		zap.String(logFieldServerConstant, service.source.ServerURL()),
	)

	return service.source.ExportGraph(executionContext, repositoryID, graphURI)
}

// ListGraphs returns the named graphs currently present in the repository.
func (service *Service) ListGraphs(executionContext context.Context, repositoryID string) ([]string, error) {
	return service.source.ListGraphs(executionContext, repositoryID)
}
