package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.uber.org/zap"
)

const (
	boundedAttemptCountConstant            = 10
	boundedAttemptDelayConstant            = time.Second
	engineMissingMessageConstant           = "container engine not configured"
	instanceNameRequiredMessageConstant    = "instance name required"
	healthProbeFailedTemplateConstant      = "health probe returned status %d"
	logMessageInstanceStartedConstant      = "Instance started"
	logMessageInstanceRemovedConstant      = "Instance removed"
	logMessageHealthAttemptConstant        = "Instance not healthy yet"
	logMessageVolumeRemovalAttemptConstant = "Volume still busy"
	logFieldContainerConstant              = "container"
	logFieldVolumeConstant                 = "volume"
	logFieldAttemptConstant                = "attempt"
	logFieldHealthURLConstant              = "health_url"
)

var (
	errEngineMissing        = errors.New(engineMissingMessageConstant)
	errInstanceNameRequired = errors.New(instanceNameRequiredMessageConstant)
)

// HealthTimeoutError reports an instance that never answered its health
// endpoint within the attempt cap. The container is removed before this
// error is returned.
type HealthTimeoutError struct {
	ContainerName string
	Attempts      int
	Cause         error
}

// Error describes the exhausted health polling.
func (timeoutError HealthTimeoutError) Error() string {
	return fmt.Sprintf("instance %s not healthy after %d attempts: %v", timeoutError.ContainerName, timeoutError.Attempts, timeoutError.Cause)
}

// Unwrap exposes the final probe failure.
func (timeoutError HealthTimeoutError) Unwrap() error {
	return timeoutError.Cause
}

// ResourceBusyError reports a volume that stayed attached through every
// removal attempt.
type ResourceBusyError struct {
	ResourceName string
	Attempts     int
}

// Error describes the busy resource.
func (busyError ResourceBusyError) Error() string {
	return fmt.Sprintf("resource %s still busy after %d removal attempts", busyError.ResourceName, busyError.Attempts)
}

// ContainerEngine describes the Docker Engine operations the manager drives.
type ContainerEngine interface {
	CreateNetwork(executionContext context.Context, networkName string) error
	CreateVolume(executionContext context.Context, volumeName string) error
	RemoveVolume(executionContext context.Context, volumeName string) error
	CreateContainer(executionContext context.Context, specification ContainerSpecification) (string, error)
	StartContainer(executionContext context.Context, containerID string) error
	StopContainer(executionContext context.Context, containerID string) error
	RemoveContainer(executionContext context.Context, containerID string) error
	InspectContainer(executionContext context.Context, containerID string) (ContainerState, error)
}

// InstanceSpecification describes one managed GraphDB instance.
type InstanceSpecification struct {
	ContainerName string
	Image         string
	NetworkName   string
	VolumeName    string
	VolumeTarget  string
	HostPort      string
	ContainerPort string
	HealthURL     string
	Environment   []string
}

// ManagerDependencies describes required collaborators for the manager.
type ManagerDependencies struct {
	Logger           *zap.Logger
	Engine           ContainerEngine
	HealthHTTPClient *http.Client
	Clock            clock.Clock
	RetryDelay       time.Duration
}

// Manager starts and removes container instances with bounded health and
// cleanup loops.
type Manager struct {
	logger           *zap.Logger
	engine           ContainerEngine
	healthHTTPClient *http.Client
	clock            clock.Clock
	retryDelay       time.Duration
}

// NewManager constructs a Manager with the provided dependencies.
func NewManager(dependencies ManagerDependencies) (*Manager, error) {
	if dependencies.Engine == nil {
		return nil, errEngineMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	healthHTTPClient := dependencies.HealthHTTPClient
	if healthHTTPClient == nil {
		healthHTTPClient = &http.Client{}
	}

	managerClock := dependencies.Clock
	if managerClock == nil {
		managerClock = clock.WallClock
	}

	retryDelay := dependencies.RetryDelay
	if retryDelay <= 0 {
		retryDelay = boundedAttemptDelayConstant
	}

	return &Manager{
		logger:           logger,
		engine:           dependencies.Engine,
		healthHTTPClient: healthHTTPClient,
		clock:            managerClock,
		retryDelay:       retryDelay,
	}, nil
}

// StartInstance ensures the network and volume exist, runs the container,
// and polls the health endpoint until it answers 200 or the attempt cap is
// reached. On exhaustion the container is removed and a HealthTimeoutError
// is returned.
func (manager *Manager) StartInstance(executionContext context.Context, specification InstanceSpecification) (string, error) {
	if networkError := manager.engine.CreateNetwork(executionContext, specification.NetworkName); networkError != nil {
		return "", networkError
	}
	if volumeError := manager.engine.CreateVolume(executionContext, specification.VolumeName); volumeError != nil {
		return "", volumeError
	}

	containerID, creationError := manager.engine.CreateContainer(executionContext, ContainerSpecification{
		Name:          specification.ContainerName,
		Image:         specification.Image,
		Environment:   specification.Environment,
		NetworkName:   specification.NetworkName,
		VolumeName:    specification.VolumeName,
		VolumeTarget:  specification.VolumeTarget,
		HostPort:      specification.HostPort,
		ContainerPort: specification.ContainerPort,
	})
	if creationError != nil {
		return "", creationError
	}

	if startError := manager.engine.StartContainer(executionContext, containerID); startError != nil {
		return "", startError
	}

	healthError := retry.Call(retry.CallArgs{
		Func: func() error {
			return manager.probeHealth(executionContext, specification.HealthURL)
		},
		NotifyFunc: func(probeError error, attempt int) {
			manager.logger.Debug(
				logMessageHealthAttemptConstant,
				zap.String(logFieldContainerConstant, specification.ContainerName),
				zap.Int(logFieldAttemptConstant, attempt),
				zap.Error(probeError),
			)
		},
		Attempts: boundedAttemptCountConstant,
		Delay:    manager.retryDelay,
		Clock:    manager.clock,
	})
	if healthError != nil {
		lastProbeError := healthError
		if retry.IsAttemptsExceeded(healthError) {
			lastProbeError = retry.LastError(healthError)
		}
		_ = manager.engine.RemoveContainer(executionContext, containerID)
		return "", HealthTimeoutError{
			ContainerName: specification.ContainerName,
			Attempts:      boundedAttemptCountConstant,
			Cause:         lastProbeError,
		}
	}

	manager.logger.Info(
		logMessageInstanceStartedConstant,
		zap.String(logFieldContainerConstant, specification.ContainerName),
		zap.String(logFieldHealthURLConstant, specification.HealthURL),
	)
	return containerID, nil
}

// RemoveInstance stops and removes the container, then removes its volume
// with the bounded retry loop.
func (manager *Manager) RemoveInstance(executionContext context.Context, containerName string, volumeName string) error {
	if len(containerName) == 0 {
		return errInstanceNameRequired
	}

	if stopError := manager.engine.StopContainer(executionContext, containerName); stopError != nil && !IsEngineNotFound(stopError) {
		return stopError
	}
	if removeError := manager.engine.RemoveContainer(executionContext, containerName); removeError != nil && !IsEngineNotFound(removeError) {
		return removeError
	}

	if len(volumeName) > 0 {
		if volumeError := manager.RemoveVolumeWithRetry(executionContext, volumeName); volumeError != nil {
			return volumeError
		}
	}

	manager.logger.Info(
		logMessageInstanceRemovedConstant,
		zap.String(logFieldContainerConstant, containerName),
		zap.String(logFieldVolumeConstant, volumeName),
	)
	return nil
}

// RemoveVolumeWithRetry removes a volume, retrying while the engine reports
// it busy. Exhausting the attempt cap yields a ResourceBusyError.
func (manager *Manager) RemoveVolumeWithRetry(executionContext context.Context, volumeName string) error {
	removalError := retry.Call(retry.CallArgs{
		Func: func() error {
			volumeError := manager.engine.RemoveVolume(executionContext, volumeName)
			if IsEngineNotFound(volumeError) {
				return nil
			}
			return volumeError
		},
		IsFatalError: func(candidate error) bool {
			return !IsEngineConflict(candidate)
		},
		NotifyFunc: func(volumeError error, attempt int) {
			manager.logger.Debug(
				logMessageVolumeRemovalAttemptConstant,
				zap.String(logFieldVolumeConstant, volumeName),
				zap.Int(logFieldAttemptConstant, attempt),
			)
		},
		Attempts: boundedAttemptCountConstant,
		Delay:    manager.retryDelay,
		Clock:    manager.clock,
	})
	if removalError == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(removalError) {
		return ResourceBusyError{ResourceName: volumeName, Attempts: boundedAttemptCountConstant}
	}
	return removalError
}

func (manager *Manager) probeHealth(executionContext context.Context, healthURL string) error {
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, healthURL, nil)
	if requestError != nil {
		return requestError
	}

	response, responseError := manager.healthHTTPClient.Do(request)
	if responseError != nil {
		return responseError
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf(healthProbeFailedTemplateConstant, response.StatusCode)
	}
	return nil
}
