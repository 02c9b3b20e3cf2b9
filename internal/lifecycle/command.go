package lifecycle

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	instanceCommandUseConstant              = "instance"
	instanceCommandShortDescriptionConstant = "Manage local GraphDB container instances"
	startCommandUseConstant                 = "start"
	startCommandShortDescriptionConstant    = "Start a GraphDB container and wait until it is healthy"
	removeCommandUseConstant                = "remove"
	removeCommandShortDescriptionConstant   = "Stop a GraphDB container and remove it together with its volume"
	managerCreationErrorTemplateConstant    = "unable to construct instance manager: %w"
	instanceStartedLineTemplateConstant     = "started %s (%s)\n"
	instanceRemovedLineTemplateConstant     = "removed %s\n"
)

// InstanceController exposes the manager operations the commands invoke.
type InstanceController interface {
	StartInstance(executionContext context.Context, specification InstanceSpecification) (string, error)
	RemoveInstance(executionContext context.Context, containerName string, volumeName string) error
}

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ControllerProvider constructs an instance controller from resolved
// configuration.
type ControllerProvider func(logger *zap.Logger, configuration CommandConfiguration) (InstanceController, error)

// CommandBuilder assembles the instance Cobra command tree.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	ControllerProvider    ControllerProvider
}

// Build constructs the instance command with its start and remove
// subcommands.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	instanceCommand := &cobra.Command{
		Use:           instanceCommandUseConstant,
		Short:         instanceCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	startCommand := &cobra.Command{
		Use:           startCommandUseConstant,
		Short:         startCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runStart,
	}

	removeCommand := &cobra.Command{
		Use:           removeCommandUseConstant,
		Short:         removeCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runRemove,
	}

	instanceCommand.AddCommand(startCommand, removeCommand)
	return instanceCommand, nil
}

func (builder *CommandBuilder) runStart(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()
	controller, controllerError := builder.resolveController(configuration)
	if controllerError != nil {
		return controllerError
	}

	containerID, startError := controller.StartInstance(command.Context(), configuration.InstanceSpecification())
	if startError != nil {
		return startError
	}

	fmt.Fprintf(command.OutOrStdout(), instanceStartedLineTemplateConstant, configuration.ContainerName, containerID)
	return nil
}

func (builder *CommandBuilder) runRemove(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()
	controller, controllerError := builder.resolveController(configuration)
	if controllerError != nil {
		return controllerError
	}

	removeError := controller.RemoveInstance(command.Context(), configuration.ContainerName, configuration.VolumeName)
	if removeError != nil {
		return removeError
	}

	fmt.Fprintf(command.OutOrStdout(), instanceRemovedLineTemplateConstant, configuration.ContainerName)
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

func (builder *CommandBuilder) resolveController(configuration CommandConfiguration) (InstanceController, error) {
	logger := builder.resolveLogger()
	if builder.ControllerProvider != nil {
		return builder.ControllerProvider(logger, configuration)
	}

	manager, managerError := NewManager(ManagerDependencies{
		Logger: logger,
		Engine: NewEngineClient(configuration.DockerHost),
	})
	if managerError != nil {
		return nil, fmt.Errorf(managerCreationErrorTemplateConstant, managerError)
	}
	return manager, nil
}
