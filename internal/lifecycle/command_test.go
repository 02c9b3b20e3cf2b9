package lifecycle_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ontofleet/graphport/internal/lifecycle"
)

type stubController struct {
	startedSpecifications []lifecycle.InstanceSpecification
	removedContainers     []string
	removedVolumes        []string
	startError            error
}

func (controller *stubController) StartInstance(executionContext context.Context, specification lifecycle.InstanceSpecification) (string, error) {
	if controller.startError != nil {
		return "", controller.startError
	}
	controller.startedSpecifications = append(controller.startedSpecifications, specification)
	return "container-identifier", nil
}

func (controller *stubController) RemoveInstance(executionContext context.Context, containerName string, volumeName string) error {
	controller.removedContainers = append(controller.removedContainers, containerName)
	controller.removedVolumes = append(controller.removedVolumes, volumeName)
	return nil
}

func buildInstanceCommand(testInstance *testing.T, controller *stubController, configuration lifecycle.CommandConfiguration) *cobra.Command {
	testInstance.Helper()

	builder := &lifecycle.CommandBuilder{
		LoggerProvider:        func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: func() lifecycle.CommandConfiguration { return configuration },
		ControllerProvider: func(logger *zap.Logger, resolvedConfiguration lifecycle.CommandConfiguration) (lifecycle.InstanceController, error) {
			return controller, nil
		},
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	return command
}

func TestInstanceStartCommandUsesSanitizedConfiguration(testInstance *testing.T) {
	testInstance.Parallel()

	controller := &stubController{}
	configuration := lifecycle.CommandConfiguration{ContainerName: " canto-db "}
	command := buildInstanceCommand(testInstance, controller, configuration)

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetArgs([]string{"start"})
	command.SetContext(context.Background())
	require.NoError(testInstance, command.Execute())

	require.Len(testInstance, controller.startedSpecifications, 1)
	specification := controller.startedSpecifications[0]
	require.Equal(testInstance, "canto-db", specification.ContainerName)
	require.Equal(testInstance, "ontotext/graphdb:10.6.3", specification.Image)
	require.Equal(testInstance, "7200", specification.HostPort)
	require.Contains(testInstance, outputBuffer.String(), "started canto-db (container-identifier)")
}

func TestInstanceRemoveCommandPassesVolume(testInstance *testing.T) {
	testInstance.Parallel()

	controller := &stubController{}
	command := buildInstanceCommand(testInstance, controller, lifecycle.DefaultCommandConfiguration())

	outputBuffer := &bytes.Buffer{}
	command.SetOut(outputBuffer)
	command.SetArgs([]string{"remove"})
	command.SetContext(context.Background())
	require.NoError(testInstance, command.Execute())

	require.Equal(testInstance, []string{"graphport-graphdb"}, controller.removedContainers)
	require.Equal(testInstance, []string{"graphport-data"}, controller.removedVolumes)
}

func TestInstanceStartCommandPropagatesFailure(testInstance *testing.T) {
	testInstance.Parallel()

	controller := &stubController{startError: lifecycle.HealthTimeoutError{ContainerName: "graphport-graphdb", Attempts: 10}}
	command := buildInstanceCommand(testInstance, controller, lifecycle.DefaultCommandConfiguration())

	command.SetArgs([]string{"start"})
	command.SetContext(context.Background())
	executionError := command.Execute()
	require.Error(testInstance, executionError)
	require.ErrorContains(testInstance, executionError, "not healthy after 10 attempts")
}
