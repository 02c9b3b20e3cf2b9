package load

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ontofleet/graphport/internal/graphdb"
)

const (
	targetClientMissingMessageConstant = "target repository client not configured"
	logMessageLoadStartedConstant      = "Loading repository dump"
	logMessageRepositoryAbsentConstant = "Target repository absent, creating from exported configuration"
	logFieldRepositoryConstant         = "repository"
	logFieldServerConstant             = "server"
	logFieldGraphConstant              = "graph"
)

var errTargetClientMissing = errors.New(targetClientMissingMessageConstant)

// RepositoryWriter describes the wire operations the load service performs
// against the target server.
type RepositoryWriter interface {
	ServerURL() string
	ListRepositories(executionContext context.Context) ([]graphdb.RepositoryDescriptor, error)
	ImportRepository(executionContext context.Context, repositoryID string, dataFilePath string, configFilePath string) (int, error)
	InsertGraph(executionContext context.Context, repositoryID string, graphURI string, dataFilePath string) (int, error)
}

// ServiceDependencies describes required collaborators for loads.
type ServiceDependencies struct {
	Logger *zap.Logger
	Target RepositoryWriter
}

// Service bulk-loads repository and graph dump artifacts into one target
// server.
type Service struct {
	logger *zap.Logger
	target RepositoryWriter
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Target == nil {
		return nil, errTargetClientMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{logger: logger, target: dependencies.Target}, nil
}

// Load imports the repository dump described by the artifact. When the target
// repository does not exist it is created from the artifact's configuration
// file first; an existing repository keeps its configuration and only
// receives the statements. The returned status code is the one reported by
// the statements upload.
func (service *Service) Load(executionContext context.Context, artifact graphdb.ExportArtifact) (int, error) {
	service.logger.Info(
		logMessageLoadStartedConstant,
		zap.String(logFieldRepositoryConstant, artifact.RepositoryID),
		zap.String(logFieldServerConstant, service.target.ServerURL()),
	)

	repositoryExists, existenceError := service.repositoryExists(executionContext, artifact.RepositoryID)
	if existenceError != nil {
		return 0, existenceError
	}

	configurationFilePath := ""
	if !repositoryExists {
		service.logger.Info(
			logMessageRepositoryAbsentConstant,
			zap.String(logFieldRepositoryConstant, artifact.RepositoryID),
			zap.String(logFieldServerConstant, service.target.ServerURL()),
		)
		configurationFilePath = artifact.ConfigFilePath
	}

	return service.target.ImportRepository(executionContext, artifact.RepositoryID, artifact.DataFilePath, configurationFilePath)
}

// InsertGraph streams the graph dump described by the artifact into the named
// graph of the target repository.
func (service *Service) InsertGraph(executionContext context.Context, repositoryID string, artifact graphdb.GraphArtifact) (int, error) {
	service.logger.Info(
		logMessageLoadStartedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldGraphConstant, artifact.GraphURI),
		zap.String(logFieldServerConstant, service.target.ServerURL()),
	)

	return service.target.InsertGraph(executionContext, repositoryID, artifact.GraphURI, artifact.LocalFilePath)
}

func (service *Service) repositoryExists(executionContext context.Context, repositoryID string) (bool, error) {
	repositories, listError := service.target.ListRepositories(executionContext)
	if listError != nil {
		return false, listError
	}

	for _, repository := range repositories {
		if repository.ID == repositoryID {
			return true, nil
		}
	}
	return false, nil
}
