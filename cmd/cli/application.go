package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ontofleet/graphport/internal/lifecycle"
	"github.com/ontofleet/graphport/internal/migration"
	"github.com/ontofleet/graphport/internal/secrets"
	"github.com/ontofleet/graphport/internal/utils"
)

const (
	applicationNameConstant                 = "graphport"
	applicationShortDescriptionConstant     = "Command-line interface for GraphDB fleet migration"
	applicationLongDescriptionConstant      = "graphport moves repositories, named graphs, and backups between GraphDB instances and manages local GraphDB containers."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	environmentFileFlagNameConstant         = "env-file"
	environmentFileFlagUsageConstant        = "Optional path to a dotenv file exported before configuration is resolved."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	versionFlagArgumentConstant             = "--version"
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant               = "GRAPHPORT"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	environmentFileFieldConstant            = "environment_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	secretsResolutionErrorTemplateConstant  = "unable to resolve secrets: %w"
	rootCommandInfoMessageConstant          = "graphport CLI executed"
	rootCommandDebugMessageConstant         = "graphport CLI diagnostics"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	versionOutputTemplateConstant           = "graphport version: %s\n"
	versionFallbackConstant                 = "development"
	usernameSecretKeyConstant               = "GRAPHDB_USERNAME"
	passwordSecretKeyConstant               = "GRAPHDB_PASSWORD"
	secretsAppliedMessageConstant           = "secret credentials applied"
	logFieldSecretsBaseURLConstant          = "secrets_base_url"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common  ApplicationCommonConfiguration  `mapstructure:"common"`
	Tools   ApplicationToolsConfiguration   `mapstructure:"tools"`
	Secrets ApplicationSecretsConfiguration `mapstructure:"secrets"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for CLI subcommands grouped by tool family.
type ApplicationToolsConfiguration struct {
	Migration migration.CommandConfiguration `mapstructure:"migration"`
	Instance  lifecycle.CommandConfiguration `mapstructure:"instance"`
}

// ApplicationSecretsConfiguration points the launcher at a secrets service used
// to fill server credentials left blank in the configuration.
type ApplicationSecretsConfiguration struct {
	BaseURL      string `mapstructure:"base_url"`
	ProjectID    string `mapstructure:"project_id"`
	Environment  string `mapstructure:"environment"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand              *cobra.Command
	configurationLoader      *utils.ConfigurationLoader
	loggerFactory            *utils.LoggerFactory
	logger                   *zap.Logger
	configuration            ApplicationConfiguration
	configurationMetadata    utils.LoadedConfiguration
	configurationFilePath    string
	environmentFilePathValue string
	logLevelFlagValue        string
	logFormatFlagValue       string
	commandContextAccessor   utils.CommandContextAccessor
	versionResolver          func(context.Context) string
	exitFunction             func(int)
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)

	embeddedConfigurationData, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfigurationData, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		exitFunction:           os.Exit,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.environmentFilePathValue, environmentFileFlagNameConstant, "", environmentFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	migrationBuilder := migration.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() migration.CommandConfiguration {
			return application.configuration.Tools.Migration
		},
	}
	migrationCommandBuilders := []func() (*cobra.Command, error){
		migrationBuilder.BuildMigrateCommand,
		migrationBuilder.BuildGraphsCommand,
		migrationBuilder.BuildBackupCommand,
		migrationBuilder.BuildRestoreCommand,
		migrationBuilder.BuildFleetCommand,
		migrationBuilder.BuildVerifyCommand,
	}
	for _, buildMigrationCommand := range migrationCommandBuilders {
		migrationCommand, migrationBuildError := buildMigrationCommand()
		if migrationBuildError == nil {
			cobraCommand.AddCommand(migrationCommand)
		}
	}

	instanceBuilder := lifecycle.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() lifecycle.CommandConfiguration {
			return application.configuration.Tools.Instance
		},
	}
	instanceCommand, instanceBuildError := instanceBuilder.Build()
	if instanceBuildError == nil {
		cobraCommand.AddCommand(instanceCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	for _, argument := range os.Args[1:] {
		if argument == versionFlagArgumentConstant {
			fmt.Fprintf(os.Stdout, versionOutputTemplateConstant, application.resolveVersion())
			application.exitFunction(0)
			return nil
		}
	}

	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	application.configurationLoader.SetEnvironmentFilePath(application.environmentFilePathValue)

	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.String(environmentFileFieldConstant, application.configurationMetadata.EnvironmentFileUsed),
	)

	var commandContext context.Context
	if command != nil {
		commandContext = command.Context()
	}

	if secretsError := application.applySecretCredentials(commandContext); secretsError != nil {
		return fmt.Errorf(secretsResolutionErrorTemplateConstant, secretsError)
	}

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			commandContext,
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithEnvironmentFilePath(
			updatedContext,
			application.configurationMetadata.EnvironmentFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) applySecretCredentials(executionContext context.Context) error {
	secretsConfiguration := application.configuration.Secrets
	if len(strings.TrimSpace(secretsConfiguration.BaseURL)) == 0 {
		return nil
	}

	resolver, resolverError := secrets.NewResolver(secrets.ResolverDependencies{
		Logger:  application.logger,
		BaseURL: secretsConfiguration.BaseURL,
	})
	if resolverError != nil {
		return resolverError
	}

	if executionContext == nil {
		executionContext = context.Background()
	}

	machineIdentity := secrets.MachineIdentity{
		ClientID:     secretsConfiguration.ClientID,
		ClientSecret: secretsConfiguration.ClientSecret,
	}
	secretValues, resolutionError := resolver.ResolveSecrets(executionContext, machineIdentity, secretsConfiguration.ProjectID, secretsConfiguration.Environment)
	if resolutionError != nil {
		return resolutionError
	}

	migrationConfiguration := &application.configuration.Tools.Migration
	fillServerCredentials(&migrationConfiguration.Source, secretValues)
	for serverIndex := range migrationConfiguration.Targets {
		fillServerCredentials(&migrationConfiguration.Targets[serverIndex], secretValues)
	}
	for serverIndex := range migrationConfiguration.FleetServers {
		fillServerCredentials(&migrationConfiguration.FleetServers[serverIndex], secretValues)
	}

	application.logger.Debug(
		secretsAppliedMessageConstant,
		zap.String(logFieldSecretsBaseURLConstant, secretsConfiguration.BaseURL),
	)

	return nil
}

func fillServerCredentials(serverConfiguration *migration.ServerConfiguration, secretValues map[string]string) {
	if len(strings.TrimSpace(serverConfiguration.Username)) == 0 {
		serverConfiguration.Username = secretValues[usernameSecretKeyConstant]
	}
	if len(serverConfiguration.Password) == 0 {
		serverConfiguration.Password = secretValues[passwordSecretKeyConstant]
	}
}

func (application *Application) resolveVersion() string {
	if application.versionResolver != nil {
		return application.versionResolver(application.rootCommand.Context())
	}

	buildInformation, buildInformationAvailable := debug.ReadBuildInfo()
	if buildInformationAvailable && len(buildInformation.Main.Version) > 0 {
		return buildInformation.Main.Version
	}

	return versionFallbackConstant
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	if len(arguments) == 0 {
		return command.Help()
	}

	return nil
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
