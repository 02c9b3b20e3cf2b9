package migration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ontofleet/graphport/internal/export"
	"github.com/ontofleet/graphport/internal/graphdb"
	"github.com/ontofleet/graphport/internal/load"
)

const (
	migrateCommandUseConstant              = "migrate <repository-id>..."
	migrateCommandShortDescriptionConstant = "Move repositories from the source server to every configured target"
	graphsCommandUseConstant               = "graphs <source-repository-id> [graph-uri]..."
	graphsCommandShortDescriptionConstant  = "Move named graphs from one source repository into the targets"
	backupCommandUseConstant               = "backup"
	backupCommandShortDescriptionConstant  = "Back up every source repository matching the configured prefix"
	restoreCommandUseConstant              = "restore <repository-id>..."
	restoreCommandShortDescriptionConstant = "Restore an explicit repository list onto the configured targets"
	fleetCommandUseConstant                = "fleet [server-url]..."
	fleetCommandShortDescriptionConstant   = "List the repositories of every known server"
	verifyCommandUseConstant               = "verify <repository-id>..."
	verifyCommandShortDescriptionConstant  = "Compare source and target statement counts per repository"

	targetRepositoryFlagNameConstant  = "target-repository"
	targetRepositoryFlagUsageConstant = "Repository on the targets receiving the graphs (defaults to the source repository)"
	backupPrefixFlagNameConstant      = "prefix"
	backupPrefixFlagUsageConstant     = "Repository name prefix selecting what to back up"

	sourceURLRequiredMessageConstant      = "source server URL required"
	sourceClientCreationErrorTemplate     = "unable to construct source client: %w"
	targetClientCreationErrorTemplate     = "unable to construct target client for %s: %w"
	exportServiceCreationErrorTemplate    = "unable to construct export service: %w"
	loadServiceCreationErrorTemplate      = "unable to construct load service for %s: %w"
	migrationServiceCreationErrorTemplate = "unable to construct migration service: %w"
	batchFailureTemplateConstant          = "%d of %d transfers failed"
	countMismatchTemplateConstant         = "%d of %d statement counts differ"

	repositoryResultLineTemplateConstant  = "%s -> %s: status=%d\n"
	repositoryFailureLineTemplateConstant = "%s -> %s: error=%v\n"
	graphResultLineTemplateConstant       = "%s -> %s: state=%s status=%d retried=%t\n"
	graphFailureLineTemplateConstant      = "%s -> %s: state=%s error=%v\n"
	countResultLineTemplateConstant       = "%s @ %s: source=%d target=%d match=%t\n"
	countFailureLineTemplateConstant      = "%s @ %s: error=%v\n"
	fleetEntryLineTemplateConstant        = "%s: %s\n"
	fleetFailureLineTemplateConstant      = "%s: error=%v\n"
	manifestLineTemplateConstant          = "manifest: %s repositories=%d\n"
)

var errSourceURLRequired = errors.New(sourceURLRequiredMessageConstant)

// MigrationExecutor exposes the orchestrator operations the commands invoke.
type MigrationExecutor interface {
	ExportImportRepositories(executionContext context.Context, repositoryIDs []string) []RepositoryMigrationResult
	ExportImportGraphs(executionContext context.Context, sourceRepositoryID string, graphURIs []string, targetRepositoryID string) ([]GraphMigrationResult, error)
	BackupAll(executionContext context.Context, prefix string) (BackupManifest, []RepositoryMigrationResult, error)
	BackupRestore(executionContext context.Context, prefix string, repositoryIDs []string) (BackupManifest, []RepositoryMigrationResult, error)
	VerifyStatementCounts(executionContext context.Context, repositoryIDs []string) []StatementCountResult
	EnumerateFleet(executionContext context.Context, servers []ServerCredentials) map[string]FleetEntry
}

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ExecutorProvider constructs a migration executor from resolved
// configuration.
type ExecutorProvider func(logger *zap.Logger, configuration CommandConfiguration) (MigrationExecutor, error)

// CommandBuilder assembles the migration Cobra commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	ExecutorProvider      ExecutorProvider
	HTTPClient            *http.Client
}

// BuildMigrateCommand constructs the repository migration command.
func (builder *CommandBuilder) BuildMigrateCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrateCommandUseConstant,
		Short:         migrateCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runMigrate,
	}
	return command, nil
}

// BuildGraphsCommand constructs the graph migration command.
func (builder *CommandBuilder) BuildGraphsCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           graphsCommandUseConstant,
		Short:         graphsCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runGraphs,
	}
	command.Flags().String(targetRepositoryFlagNameConstant, "", targetRepositoryFlagUsageConstant)
	return command, nil
}

// BuildBackupCommand constructs the full backup command.
func (builder *CommandBuilder) BuildBackupCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           backupCommandUseConstant,
		Short:         backupCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runBackup,
	}
	command.Flags().String(backupPrefixFlagNameConstant, "", backupPrefixFlagUsageConstant)
	return command, nil
}

// BuildRestoreCommand constructs the explicit-list restore command.
func (builder *CommandBuilder) BuildRestoreCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           restoreCommandUseConstant,
		Short:         restoreCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runRestore,
	}
	command.Flags().String(backupPrefixFlagNameConstant, "", backupPrefixFlagUsageConstant)
	return command, nil
}

// BuildFleetCommand constructs the fleet enumeration command.
func (builder *CommandBuilder) BuildFleetCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           fleetCommandUseConstant,
		Short:         fleetCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          builder.runFleet,
	}
	return command, nil
}

// BuildVerifyCommand constructs the statement count comparison command.
func (builder *CommandBuilder) BuildVerifyCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           verifyCommandUseConstant,
		Short:         verifyCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
		RunE:          builder.runVerify,
	}
	return command, nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := requireMigrationConfiguration(configuration); validationError != nil {
		return validationError
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	results := executor.ExportImportRepositories(command.Context(), arguments)
	printRepositoryResults(command, results)
	return summarizeRepositoryResults(results)
}

func (builder *CommandBuilder) runGraphs(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := requireMigrationConfiguration(configuration); validationError != nil {
		return validationError
	}

	sourceRepositoryID := arguments[0]
	graphURIs := arguments[1:]

	targetRepositoryID, flagError := command.Flags().GetString(targetRepositoryFlagNameConstant)
	if flagError != nil {
		return flagError
	}
	if len(strings.TrimSpace(targetRepositoryID)) == 0 {
		targetRepositoryID = sourceRepositoryID
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	results, migrationError := executor.ExportImportGraphs(command.Context(), sourceRepositoryID, graphURIs, targetRepositoryID)
	if migrationError != nil {
		return migrationError
	}

	failureCount := 0
	for _, result := range results {
		if result.Err != nil {
			failureCount++
			fmt.Fprintf(command.OutOrStdout(), graphFailureLineTemplateConstant, result.GraphURI, result.TargetURL, result.State, result.Err)
			continue
		}
		fmt.Fprintf(command.OutOrStdout(), graphResultLineTemplateConstant, result.GraphURI, result.TargetURL, result.State, result.StatusCode, result.Retried)
	}
	if failureCount > 0 {
		return fmt.Errorf(batchFailureTemplateConstant, failureCount, len(results))
	}
	return nil
}

func (builder *CommandBuilder) runBackup(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := requireMigrationConfiguration(configuration); validationError != nil {
		return validationError
	}

	prefix, flagError := command.Flags().GetString(backupPrefixFlagNameConstant)
	if flagError != nil {
		return flagError
	}
	if len(strings.TrimSpace(prefix)) == 0 {
		prefix = configuration.BackupPrefix
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	manifest, results, backupError := executor.BackupAll(command.Context(), prefix)
	if backupError != nil {
		return backupError
	}

	printRepositoryResults(command, results)
	fmt.Fprintf(command.OutOrStdout(), manifestLineTemplateConstant, ManifestFileName(manifest.Prefix), len(manifest.Repositories))
	return summarizeRepositoryResults(results)
}

func (builder *CommandBuilder) runRestore(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := requireMigrationConfiguration(configuration); validationError != nil {
		return validationError
	}

	prefix, flagError := command.Flags().GetString(backupPrefixFlagNameConstant)
	if flagError != nil {
		return flagError
	}
	if len(strings.TrimSpace(prefix)) == 0 {
		prefix = configuration.BackupPrefix
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	manifest, results, restoreError := executor.BackupRestore(command.Context(), prefix, arguments)
	if restoreError != nil {
		return restoreError
	}

	printRepositoryResults(command, results)
	fmt.Fprintf(command.OutOrStdout(), manifestLineTemplateConstant, ManifestFileName(manifest.Prefix), len(manifest.Repositories))
	return summarizeRepositoryResults(results)
}

func (builder *CommandBuilder) runFleet(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if len(strings.TrimSpace(configuration.Source.URL)) == 0 && len(configuration.FleetServers) == 0 && len(arguments) == 0 {
		return errSourceURLRequired
	}

	servers := make([]ServerCredentials, 0, len(configuration.FleetServers)+len(arguments)+1)
	if len(strings.TrimSpace(configuration.Source.URL)) > 0 {
		servers = append(servers, configuration.Source.Credentials())
	}
	for _, fleetServer := range configuration.FleetServers {
		servers = append(servers, fleetServer.Credentials())
	}
	for _, serverURL := range arguments {
		servers = append(servers, ServerCredentials{URL: strings.TrimSpace(serverURL)})
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	entries := executor.EnumerateFleet(command.Context(), servers)
	for _, server := range servers {
		entry := entries[server.URL]
		if entry.Err != nil {
			fmt.Fprintf(command.OutOrStdout(), fleetFailureLineTemplateConstant, server.URL, entry.Err)
			continue
		}
		repositoryIDs := make([]string, 0, len(entry.Repositories))
		for _, repository := range entry.Repositories {
			repositoryIDs = append(repositoryIDs, repository.ID)
		}
		fmt.Fprintf(command.OutOrStdout(), fleetEntryLineTemplateConstant, server.URL, strings.Join(repositoryIDs, ", "))
	}
	return nil
}

func (builder *CommandBuilder) runVerify(command *cobra.Command, arguments []string) error {
	logger := builder.resolveLogger()
	configuration := builder.resolveConfiguration()
	if validationError := requireMigrationConfiguration(configuration); validationError != nil {
		return validationError
	}

	executor, executorError := builder.resolveExecutor(logger, configuration)
	if executorError != nil {
		return executorError
	}

	results := executor.VerifyStatementCounts(command.Context(), arguments)
	mismatchCount := 0
	for _, result := range results {
		if result.Err != nil {
			mismatchCount++
			fmt.Fprintf(command.OutOrStdout(), countFailureLineTemplateConstant, result.RepositoryID, result.TargetURL, result.Err)
			continue
		}
		if !result.Match {
			mismatchCount++
		}
		fmt.Fprintf(command.OutOrStdout(), countResultLineTemplateConstant, result.RepositoryID, result.TargetURL, result.SourceCount, result.TargetCount, result.Match)
	}
	if mismatchCount > 0 {
		return fmt.Errorf(countMismatchTemplateConstant, mismatchCount, len(results))
	}
	return nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider != nil {
		if logger := builder.LoggerProvider(); logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider != nil {
		return builder.ConfigurationProvider().Sanitize()
	}
	return DefaultCommandConfiguration()
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger, configuration CommandConfiguration) (MigrationExecutor, error) {
	if builder.ExecutorProvider != nil {
		return builder.ExecutorProvider(logger, configuration)
	}
	return builder.buildExecutor(logger, configuration)
}

func (builder *CommandBuilder) buildExecutor(logger *zap.Logger, configuration CommandConfiguration) (MigrationExecutor, error) {
	sourceClient, sourceClientError := builder.buildClient(logger, configuration.Source, configuration.ArtifactDirectory)
	if sourceClientError != nil {
		return nil, fmt.Errorf(sourceClientCreationErrorTemplate, sourceClientError)
	}

	exporter, exporterError := export.NewService(export.ServiceDependencies{Logger: logger, Source: sourceClient})
	if exporterError != nil {
		return nil, fmt.Errorf(exportServiceCreationErrorTemplate, exporterError)
	}

	targets := make([]Target, 0, len(configuration.Targets))
	for _, targetConfiguration := range configuration.Targets {
		targetClient, targetClientError := builder.buildClient(logger, targetConfiguration, configuration.ArtifactDirectory)
		if targetClientError != nil {
			return nil, fmt.Errorf(targetClientCreationErrorTemplate, targetConfiguration.URL, targetClientError)
		}

		loader, loaderError := load.NewService(load.ServiceDependencies{Logger: logger, Target: targetClient})
		if loaderError != nil {
			return nil, fmt.Errorf(loadServiceCreationErrorTemplate, targetConfiguration.URL, loaderError)
		}

		targets = append(targets, Target{URL: targetConfiguration.URL, Loader: loader, Inspector: targetClient})
	}

	service, serviceError := NewService(ServiceDependencies{
		Logger:            logger,
		Exporter:          exporter,
		SourceInspector:   sourceClient,
		Targets:           targets,
		FleetConcurrency:  configuration.FleetConcurrency,
		ManifestDirectory: configuration.ArtifactDirectory,
	})
	if serviceError != nil {
		return nil, fmt.Errorf(migrationServiceCreationErrorTemplate, serviceError)
	}
	return service, nil
}

func (builder *CommandBuilder) buildClient(logger *zap.Logger, server ServerConfiguration, artifactDirectory string) (*graphdb.Client, error) {
	return graphdb.NewClient(graphdb.ClientDependencies{
		Logger:            logger,
		HTTPClient:        builder.HTTPClient,
		Connection:        graphdb.NewServerConnection(server.URL, server.Username, server.Password),
		ArtifactDirectory: artifactDirectory,
	})
}

func requireMigrationConfiguration(configuration CommandConfiguration) error {
	if len(strings.TrimSpace(configuration.Source.URL)) == 0 {
		return errSourceURLRequired
	}
	if len(configuration.Targets) == 0 {
		return errTargetsMissing
	}
	return nil
}

func printRepositoryResults(command *cobra.Command, results []RepositoryMigrationResult) {
	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(command.OutOrStdout(), repositoryFailureLineTemplateConstant, result.RepositoryID, result.TargetURL, result.Err)
			continue
		}
		fmt.Fprintf(command.OutOrStdout(), repositoryResultLineTemplateConstant, result.RepositoryID, result.TargetURL, result.StatusCode)
	}
}

func summarizeRepositoryResults(results []RepositoryMigrationResult) error {
	failureCount := 0
	for _, result := range results {
		if result.Err != nil {
			failureCount++
		}
	}
	if failureCount > 0 {
		return fmt.Errorf(batchFailureTemplateConstant, failureCount, len(results))
	}
	return nil
}
