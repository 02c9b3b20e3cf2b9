package lifecycle_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/lifecycle"
)

type stubEngine struct {
	createdNetworks    []string
	createdVolumes     []string
	createdContainers  []lifecycle.ContainerSpecification
	startedContainers  []string
	stoppedContainers  []string
	removedContainers  []string
	volumeRemovalCalls int
	volumeRemovalError func(call int) error
	stopError          error
}

func (engine *stubEngine) CreateNetwork(executionContext context.Context, networkName string) error {
	engine.createdNetworks = append(engine.createdNetworks, networkName)
	return nil
}

func (engine *stubEngine) CreateVolume(executionContext context.Context, volumeName string) error {
	engine.createdVolumes = append(engine.createdVolumes, volumeName)
	return nil
}

func (engine *stubEngine) RemoveVolume(executionContext context.Context, volumeName string) error {
	engine.volumeRemovalCalls++
	if engine.volumeRemovalError != nil {
		return engine.volumeRemovalError(engine.volumeRemovalCalls)
	}
	return nil
}

func (engine *stubEngine) CreateContainer(executionContext context.Context, specification lifecycle.ContainerSpecification) (string, error) {
	engine.createdContainers = append(engine.createdContainers, specification)
	return "container-identifier", nil
}

func (engine *stubEngine) StartContainer(executionContext context.Context, containerID string) error {
	engine.startedContainers = append(engine.startedContainers, containerID)
	return nil
}

func (engine *stubEngine) StopContainer(executionContext context.Context, containerID string) error {
	engine.stoppedContainers = append(engine.stoppedContainers, containerID)
	return engine.stopError
}

func (engine *stubEngine) RemoveContainer(executionContext context.Context, containerID string) error {
	engine.removedContainers = append(engine.removedContainers, containerID)
	return nil
}

func (engine *stubEngine) InspectContainer(executionContext context.Context, containerID string) (lifecycle.ContainerState, error) {
	return lifecycle.ContainerState{Running: true}, nil
}

func newManagerUnderTest(testInstance *testing.T, engine *stubEngine) *lifecycle.Manager {
	testInstance.Helper()

	manager, managerError := lifecycle.NewManager(lifecycle.ManagerDependencies{
		Engine:     engine,
		RetryDelay: time.Millisecond,
	})
	require.NoError(testInstance, managerError)
	return manager
}

func instanceSpecificationForURL(healthURL string) lifecycle.InstanceSpecification {
	return lifecycle.InstanceSpecification{
		ContainerName: "graphport-graphdb",
		Image:         "ontotext/graphdb:10.6.3",
		NetworkName:   "graphport-net",
		VolumeName:    "graphport-data",
		VolumeTarget:  "/opt/graphdb/home",
		HostPort:      "7200",
		ContainerPort: "7200",
		HealthURL:     healthURL,
	}
}

func TestNewManagerRequiresEngine(testInstance *testing.T) {
	testInstance.Parallel()

	_, managerError := lifecycle.NewManager(lifecycle.ManagerDependencies{})
	require.Error(testInstance, managerError)
}

func TestManagerStartInstanceBecomesHealthy(testInstance *testing.T) {
	testInstance.Parallel()

	var probeCount atomic.Int64
	healthServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if probeCount.Add(1) < 3 {
			responseWriter.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		responseWriter.WriteHeader(http.StatusOK)
	}))
	defer healthServer.Close()

	engine := &stubEngine{}
	manager := newManagerUnderTest(testInstance, engine)

	containerID, startError := manager.StartInstance(context.Background(), instanceSpecificationForURL(healthServer.URL))
	require.NoError(testInstance, startError)
	require.Equal(testInstance, "container-identifier", containerID)
	require.Equal(testInstance, []string{"graphport-net"}, engine.createdNetworks)
	require.Equal(testInstance, []string{"graphport-data"}, engine.createdVolumes)
	require.Equal(testInstance, []string{"container-identifier"}, engine.startedContainers)
	require.Empty(testInstance, engine.removedContainers)
	require.Equal(testInstance, int64(3), probeCount.Load())
}

func TestManagerStartInstanceRemovesContainerAfterBoundedProbes(testInstance *testing.T) {
	testInstance.Parallel()

	var probeCount atomic.Int64
	healthServer := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		probeCount.Add(1)
		responseWriter.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer healthServer.Close()

	engine := &stubEngine{}
	manager := newManagerUnderTest(testInstance, engine)

	_, startError := manager.StartInstance(context.Background(), instanceSpecificationForURL(healthServer.URL))
	require.Error(testInstance, startError)

	timeoutError, isTimeoutError := startError.(lifecycle.HealthTimeoutError)
	require.True(testInstance, isTimeoutError)
	require.Equal(testInstance, 10, timeoutError.Attempts)
	require.Equal(testInstance, int64(10), probeCount.Load())
	require.Equal(testInstance, []string{"container-identifier"}, engine.removedContainers)
}

func TestManagerRemoveVolumeWithRetry(testInstance *testing.T) {
	busyError := lifecycle.EngineError{Operation: "remove volume", StatusCode: http.StatusConflict, Message: "volume is in use"}
	fatalError := lifecycle.EngineError{Operation: "remove volume", StatusCode: http.StatusInternalServerError, Message: "driver failure"}

	testCases := []struct {
		name          string
		removalError  func(call int) error
		expectedCalls int
		assertOutcome func(*testing.T, error)
	}{
		{
			name: "busy_volume_released_before_cap",
			removalError: func(call int) error {
				if call < 5 {
					return busyError
				}
				return nil
			},
			expectedCalls: 5,
			assertOutcome: func(subtestInstance *testing.T, outcome error) {
				require.NoError(subtestInstance, outcome)
			},
		},
		{
			name:          "busy_volume_exhausts_exactly_ten_attempts",
			removalError:  func(call int) error { return busyError },
			expectedCalls: 10,
			assertOutcome: func(subtestInstance *testing.T, outcome error) {
				busyOutcome, isBusyOutcome := outcome.(lifecycle.ResourceBusyError)
				require.True(subtestInstance, isBusyOutcome)
				require.Equal(subtestInstance, 10, busyOutcome.Attempts)
				require.Equal(subtestInstance, "graphport-data", busyOutcome.ResourceName)
			},
		},
		{
			name:          "fatal_engine_error_stops_immediately",
			removalError:  func(call int) error { return fatalError },
			expectedCalls: 1,
			assertOutcome: func(subtestInstance *testing.T, outcome error) {
				require.Error(subtestInstance, outcome)
				require.ErrorContains(subtestInstance, outcome, "driver failure")
			},
		},
		{
			name:          "absent_volume_is_not_an_error",
			removalError:  func(call int) error { return lifecycle.EngineError{Operation: "remove volume", StatusCode: http.StatusNotFound} },
			expectedCalls: 1,
			assertOutcome: func(subtestInstance *testing.T, outcome error) {
				require.NoError(subtestInstance, outcome)
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			engine := &stubEngine{volumeRemovalError: testCase.removalError}
			manager := newManagerUnderTest(subtestInstance, engine)

			outcome := manager.RemoveVolumeWithRetry(context.Background(), "graphport-data")
			testCase.assertOutcome(subtestInstance, outcome)
			require.Equal(subtestInstance, testCase.expectedCalls, engine.volumeRemovalCalls)
		})
	}
}

func TestManagerRemoveInstance(testInstance *testing.T) {
	testInstance.Parallel()

	engine := &stubEngine{}
	manager := newManagerUnderTest(testInstance, engine)

	removeError := manager.RemoveInstance(context.Background(), "graphport-graphdb", "graphport-data")
	require.NoError(testInstance, removeError)
	require.Equal(testInstance, []string{"graphport-graphdb"}, engine.stoppedContainers)
	require.Equal(testInstance, []string{"graphport-graphdb"}, engine.removedContainers)
	require.Equal(testInstance, 1, engine.volumeRemovalCalls)
}

func TestManagerRemoveInstanceToleratesAbsentContainer(testInstance *testing.T) {
	testInstance.Parallel()

	engine := &stubEngine{stopError: lifecycle.EngineError{Operation: "stop container", StatusCode: http.StatusNotFound}}
	manager := newManagerUnderTest(testInstance, engine)

	removeError := manager.RemoveInstance(context.Background(), "graphport-graphdb", "graphport-data")
	require.NoError(testInstance, removeError)
}
