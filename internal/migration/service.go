package migration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ontofleet/graphport/internal/graphdb"
)

const (
	exporterMissingMessageConstant              = "exporter not configured"
	sourceInspectorMissingMessageConstant       = "source inspector not configured"
	targetsMissingMessageConstant               = "at least one migration target required"
	targetURLMissingMessageConstant             = "migration target URL required"
	targetLoaderMissingMessageConstant          = "migration target loader required"
	targetInspectorMissingMessageConstant       = "migration target inspector required"
	defaultFleetConcurrencyConstant             = 4
	logMessageRepositoryMigratedConstant        = "Repository migrated"
	logMessageRepositoryMigrationFailedConstant = "Repository migration failed"
	logMessageGraphMigratedConstant             = "Graph migrated"
	logMessageGraphMigrationFailedConstant      = "Graph migration failed"
	logMessageGraphMissingAfterImportConstant   = "Graph missing after import, re-importing once"
	logMessageBackupManifestWrittenConstant     = "Backup manifest written"
	logFieldRepositoryConstant                  = "repository"
	logFieldGraphConstant                       = "graph"
	logFieldTargetConstant                      = "target"
	logFieldStatusConstant                      = "status"
	logFieldStateConstant                       = "state"
	logFieldManifestConstant                    = "manifest"
	logFieldRepositoryCountConstant             = "repositories"
)

var (
	errExporterMissing        = errors.New(exporterMissingMessageConstant)
	errSourceInspectorMissing = errors.New(sourceInspectorMissingMessageConstant)
	errTargetsMissing         = errors.New(targetsMissingMessageConstant)
	errTargetURLMissing       = errors.New(targetURLMissingMessageConstant)
	errTargetLoaderMissing    = errors.New(targetLoaderMissingMessageConstant)
	errTargetInspectorMissing = errors.New(targetInspectorMissingMessageConstant)
)

// Exporter produces dump artifacts from the source server.
type Exporter interface {
	Export(executionContext context.Context, repositoryID string) (graphdb.ExportArtifact, error)
	ExportGraph(executionContext context.Context, repositoryID string, graphURI string) (graphdb.GraphArtifact, error)
	ListGraphs(executionContext context.Context, repositoryID string) ([]string, error)
}

// Loader pushes dump artifacts into one target server.
type Loader interface {
	Load(executionContext context.Context, artifact graphdb.ExportArtifact) (int, error)
	InsertGraph(executionContext context.Context, repositoryID string, artifact graphdb.GraphArtifact) (int, error)
}

// RepositoryInspector answers read-only questions about one server.
type RepositoryInspector interface {
	ServerURL() string
	ListRepositories(executionContext context.Context) ([]graphdb.RepositoryDescriptor, error)
	GraphExists(executionContext context.Context, repositoryID string, graphURI string) (bool, error)
	CountStatements(executionContext context.Context, repositoryID string) (int64, error)
}

// ServerCredentials locates one repository server and its login.
type ServerCredentials struct {
	URL      string
	Username string
	Password string
}

// InspectorFactory builds a RepositoryInspector for an arbitrary server
// during fleet enumeration.
type InspectorFactory func(credentials ServerCredentials) (RepositoryInspector, error)

// Target pairs the loader and inspector for one configured target server.
type Target struct {
	URL       string
	Loader    Loader
	Inspector RepositoryInspector
}

// ServiceDependencies describes required collaborators for the orchestrator.
type ServiceDependencies struct {
	Logger            *zap.Logger
	Exporter          Exporter
	SourceInspector   RepositoryInspector
	Targets           []Target
	InspectorFactory  InspectorFactory
	FleetConcurrency  int
	ManifestDirectory string
}

// Service moves repositories and graphs from one source server to the
// configured targets.
type Service struct {
	logger            *zap.Logger
	exporter          Exporter
	sourceInspector   RepositoryInspector
	targets           []Target
	inspectorFactory  InspectorFactory
	fleetConcurrency  int
	manifestDirectory string
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Exporter == nil {
		return nil, errExporterMissing
	}
	if dependencies.SourceInspector == nil {
		return nil, errSourceInspectorMissing
	}
	for _, target := range dependencies.Targets {
		if len(strings.TrimSpace(target.URL)) == 0 {
			return nil, errTargetURLMissing
		}
		if target.Loader == nil {
			return nil, errTargetLoaderMissing
		}
		if target.Inspector == nil {
			return nil, errTargetInspectorMissing
		}
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inspectorFactory := dependencies.InspectorFactory
	if inspectorFactory == nil {
		inspectorFactory = defaultInspectorFactory
	}

	fleetConcurrency := dependencies.FleetConcurrency
	if fleetConcurrency <= 0 {
		fleetConcurrency = defaultFleetConcurrencyConstant
	}

	manifestDirectory := dependencies.ManifestDirectory
	if len(strings.TrimSpace(manifestDirectory)) == 0 {
		manifestDirectory = "."
	}

	return &Service{
		logger:            logger,
		exporter:          dependencies.Exporter,
		sourceInspector:   dependencies.SourceInspector,
		targets:           dependencies.Targets,
		inspectorFactory:  inspectorFactory,
		fleetConcurrency:  fleetConcurrency,
		manifestDirectory: manifestDirectory,
	}, nil
}

func defaultInspectorFactory(credentials ServerCredentials) (RepositoryInspector, error) {
	return graphdb.NewClient(graphdb.ClientDependencies{
		Connection: graphdb.NewServerConnection(credentials.URL, credentials.Username, credentials.Password),
	})
}

// ExportImportRepositories exports each repository once and loads the
// resulting artifact into every configured target in order. Failures are
// recorded per item and the batch continues. The result slice always holds
// one entry per repository and target pair, in input order.
func (service *Service) ExportImportRepositories(executionContext context.Context, repositoryIDs []string) []RepositoryMigrationResult {
	results := make([]RepositoryMigrationResult, 0, len(repositoryIDs)*len(service.targets))
	for _, repositoryID := range repositoryIDs {
		_, repositoryResults := service.migrateRepositoryAcrossTargets(executionContext, repositoryID)
		results = append(results, repositoryResults...)
	}
	return results
}

func (service *Service) migrateRepositoryAcrossTargets(executionContext context.Context, repositoryID string) (graphdb.ExportArtifact, []RepositoryMigrationResult) {
	results := make([]RepositoryMigrationResult, 0, len(service.targets))

	artifact, exportError := service.exporter.Export(executionContext, repositoryID)
	if exportError != nil {
		service.logger.Warn(
			logMessageRepositoryMigrationFailedConstant,
			zap.String(logFieldRepositoryConstant, repositoryID),
			zap.Error(exportError),
		)
		for _, target := range service.targets {
			results = append(results, RepositoryMigrationResult{
				RepositoryID: repositoryID,
				TargetURL:    target.URL,
				Err:          exportError,
			})
		}
		return graphdb.ExportArtifact{}, results
	}

	for _, target := range service.targets {
		statusCode, loadError := target.Loader.Load(executionContext, artifact)
		results = append(results, RepositoryMigrationResult{
			RepositoryID: repositoryID,
			TargetURL:    target.URL,
			StatusCode:   statusCode,
			Err:          loadError,
		})

		if loadError != nil {
			service.logger.Warn(
				logMessageRepositoryMigrationFailedConstant,
				zap.String(logFieldRepositoryConstant, repositoryID),
				zap.String(logFieldTargetConstant, target.URL),
				zap.Error(loadError),
			)
			continue
		}

		service.logger.Info(
			logMessageRepositoryMigratedConstant,
			zap.String(logFieldRepositoryConstant, repositoryID),
			zap.String(logFieldTargetConstant, target.URL),
			zap.Int(logFieldStatusConstant, statusCode),
		)
	}

	return artifact, results
}

// ExportImportGraphs exports each named graph from the source repository and
// inserts it into the target repository on every configured target. A graph
// missing from the target listing after import is re-imported exactly once
// without a second check. An empty graph list means every graph currently in
// the source repository.
func (service *Service) ExportImportGraphs(executionContext context.Context, sourceRepositoryID string, graphURIs []string, targetRepositoryID string) ([]GraphMigrationResult, error) {
	if len(graphURIs) == 0 {
		discoveredGraphURIs, listError := service.exporter.ListGraphs(executionContext, sourceRepositoryID)
		if listError != nil {
			return nil, listError
		}
		graphURIs = discoveredGraphURIs
	}

	results := make([]GraphMigrationResult, 0, len(graphURIs)*len(service.targets))
	for _, graphURI := range graphURIs {
		artifact, exportError := service.exporter.ExportGraph(executionContext, sourceRepositoryID, graphURI)
		if exportError != nil {
			service.logger.Warn(
				logMessageGraphMigrationFailedConstant,
				zap.String(logFieldGraphConstant, graphURI),
				zap.Error(exportError),
			)
			for _, target := range service.targets {
				results = append(results, GraphMigrationResult{
					GraphURI:  graphURI,
					TargetURL: target.URL,
					Err:       exportError,
				})
			}
			continue
		}

		for _, target := range service.targets {
			results = append(results, service.transferGraph(executionContext, target, targetRepositoryID, artifact))
		}
	}

	return results, nil
}

func (service *Service) transferGraph(executionContext context.Context, target Target, targetRepositoryID string, artifact graphdb.GraphArtifact) GraphMigrationResult {
	result := GraphMigrationResult{
		GraphURI:  artifact.GraphURI,
		TargetURL: target.URL,
		State:     GraphStateExported,
	}

	statusCode, insertError := target.Loader.InsertGraph(executionContext, targetRepositoryID, artifact)
	result.StatusCode = statusCode
	if insertError != nil {
		result.Err = insertError
		service.logGraphResult(result)
		return result
	}
	result.State = GraphStateImported

	graphPresent, existenceError := target.Inspector.GraphExists(executionContext, targetRepositoryID, artifact.GraphURI)
	if existenceError != nil {
		result.Err = existenceError
		service.logGraphResult(result)
		return result
	}

	if graphPresent {
		result.State = GraphStateVerified
		service.logGraphResult(result)
		return result
	}

	service.logger.Warn(
		logMessageGraphMissingAfterImportConstant,
		zap.String(logFieldGraphConstant, artifact.GraphURI),
		zap.String(logFieldTargetConstant, target.URL),
	)

	retryStatusCode, retryError := target.Loader.InsertGraph(executionContext, targetRepositoryID, artifact)
	result.State = GraphStateReimported
	result.StatusCode = retryStatusCode
	result.Retried = true
	result.Err = retryError
	service.logGraphResult(result)
	return result
}

func (service *Service) logGraphResult(result GraphMigrationResult) {
	if result.Err != nil {
		service.logger.Warn(
			logMessageGraphMigrationFailedConstant,
			zap.String(logFieldGraphConstant, result.GraphURI),
			zap.String(logFieldTargetConstant, result.TargetURL),
			zap.String(logFieldStateConstant, string(result.State)),
			zap.Error(result.Err),
		)
		return
	}

	service.logger.Info(
		logMessageGraphMigratedConstant,
		zap.String(logFieldGraphConstant, result.GraphURI),
		zap.String(logFieldTargetConstant, result.TargetURL),
		zap.String(logFieldStateConstant, string(result.State)),
		zap.Int(logFieldStatusConstant, result.StatusCode),
	)
}

// BackupAll discovers the source repositories, optionally narrowed to a
// name prefix, migrates every match to the configured targets, and writes a
// YAML manifest describing the produced artifacts.
func (service *Service) BackupAll(executionContext context.Context, prefix string) (BackupManifest, []RepositoryMigrationResult, error) {
	repositories, listError := service.sourceInspector.ListRepositories(executionContext)
	if listError != nil {
		return BackupManifest{}, nil, listError
	}

	trimmedPrefix := strings.TrimSpace(prefix)
	repositoryIDs := make([]string, 0, len(repositories))
	for _, repository := range repositories {
		if len(trimmedPrefix) > 0 && !strings.HasPrefix(repository.ID, trimmedPrefix) {
			continue
		}
		repositoryIDs = append(repositoryIDs, repository.ID)
	}

	return service.backupRepositories(executionContext, trimmedPrefix, repositoryIDs)
}

// BackupRestore migrates an explicit repository list to the configured
// targets and writes the same manifest a full backup produces.
func (service *Service) BackupRestore(executionContext context.Context, prefix string, repositoryIDs []string) (BackupManifest, []RepositoryMigrationResult, error) {
	return service.backupRepositories(executionContext, strings.TrimSpace(prefix), repositoryIDs)
}

func (service *Service) backupRepositories(executionContext context.Context, prefix string, repositoryIDs []string) (BackupManifest, []RepositoryMigrationResult, error) {
	manifest := BackupManifest{
		Prefix:       prefix,
		SourceURL:    service.sourceInspector.ServerURL(),
		CreatedAt:    time.Now().UTC(),
		Repositories: make([]BackupManifestEntry, 0, len(repositoryIDs)),
	}

	results := make([]RepositoryMigrationResult, 0, len(repositoryIDs)*len(service.targets))
	for _, repositoryID := range repositoryIDs {
		artifact, repositoryResults := service.migrateRepositoryAcrossTargets(executionContext, repositoryID)
		results = append(results, repositoryResults...)

		entry := BackupManifestEntry{RepositoryID: repositoryID}
		if len(repositoryResults) > 0 && repositoryResults[0].Err != nil && len(artifact.DataFilePath) == 0 {
			entry.Error = repositoryResults[0].Err.Error()
		} else {
			entry.ConfigFile = artifact.ConfigFilePath
			entry.DataFile = artifact.DataFilePath
		}
		manifest.Repositories = append(manifest.Repositories, entry)
	}

	manifestPath, manifestError := WriteBackupManifest(service.manifestDirectory, manifest)
	if manifestError != nil {
		return BackupManifest{}, results, manifestError
	}

	service.logger.Info(
		logMessageBackupManifestWrittenConstant,
		zap.String(logFieldManifestConstant, manifestPath),
		zap.Int(logFieldRepositoryCountConstant, len(manifest.Repositories)),
	)

	return manifest, results, nil
}

// VerifyStatementCounts compares the statement totals of each repository on
// the source server against every configured target.
func (service *Service) VerifyStatementCounts(executionContext context.Context, repositoryIDs []string) []StatementCountResult {
	results := make([]StatementCountResult, 0, len(repositoryIDs)*len(service.targets))
	for _, repositoryID := range repositoryIDs {
		sourceCount, sourceError := service.sourceInspector.CountStatements(executionContext, repositoryID)
		for _, target := range service.targets {
			result := StatementCountResult{RepositoryID: repositoryID, TargetURL: target.URL}
			if sourceError != nil {
				result.Err = sourceError
				results = append(results, result)
				continue
			}
			result.SourceCount = sourceCount

			targetCount, targetError := target.Inspector.CountStatements(executionContext, repositoryID)
			if targetError != nil {
				result.Err = targetError
				results = append(results, result)
				continue
			}
			result.TargetCount = targetCount
			result.Match = sourceCount == targetCount
			results = append(results, result)
		}
	}
	return results
}

// EnumerateFleet lists the repositories of every server concurrently through
// a bounded worker pool. Entries are keyed by server URL and individual
// listing failures are recorded per entry.
func (service *Service) EnumerateFleet(executionContext context.Context, servers []ServerCredentials) map[string]FleetEntry {
	entries := make(map[string]FleetEntry, len(servers))
	entriesMutex := sync.Mutex{}

	workerGroup, workerContext := errgroup.WithContext(executionContext)
	workerGroup.SetLimit(service.fleetConcurrency)

	for _, server := range servers {
		server := server
		workerGroup.Go(func() error {
			entry := FleetEntry{ServerURL: server.URL}

			inspector, factoryError := service.inspectorFactory(server)
			if factoryError != nil {
				entry.Err = factoryError
			} else {
				entry.Repositories, entry.Err = inspector.ListRepositories(workerContext)
			}

			entriesMutex.Lock()
			entries[server.URL] = entry
			entriesMutex.Unlock()
			return nil
		})
	}

	_ = workerGroup.Wait()
	return entries
}
