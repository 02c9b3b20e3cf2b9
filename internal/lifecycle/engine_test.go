package lifecycle_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/lifecycle"
)

func newEngineClientForServer(server *httptest.Server) *lifecycle.EngineClient {
	return lifecycle.NewEngineClientWithHTTPClient(server.URL, server.Client())
}

func TestEngineClientCreateNetworkToleratesExisting(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name       string
		statusCode int
	}{
		{name: "created", statusCode: http.StatusCreated},
		{name: "already_exists", statusCode: http.StatusConflict},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
				require.Equal(subtestInstance, "/networks/create", request.URL.Path)
				responseWriter.WriteHeader(testCase.statusCode)
			}))
			defer server.Close()

			client := newEngineClientForServer(server)
			require.NoError(subtestInstance, client.CreateNetwork(context.Background(), "graphport-net"))
		})
	}
}

func TestEngineClientCreateContainer(testInstance *testing.T) {
	testInstance.Parallel()

	var observedRequest map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "/containers/create", request.URL.Path)
		require.Equal(testInstance, "graphport-graphdb", request.URL.Query().Get("name"))
		requestContent, readError := io.ReadAll(request.Body)
		require.NoError(testInstance, readError)
		require.NoError(testInstance, json.Unmarshal(requestContent, &observedRequest))
		responseWriter.WriteHeader(http.StatusCreated)
		io.WriteString(responseWriter, `{"Id": "abc123"}`)
	}))
	defer server.Close()

	client := newEngineClientForServer(server)

	containerID, creationError := client.CreateContainer(context.Background(), lifecycle.ContainerSpecification{
		Name:          "graphport-graphdb",
		Image:         "ontotext/graphdb:10.6.3",
		NetworkName:   "graphport-net",
		VolumeName:    "graphport-data",
		VolumeTarget:  "/opt/graphdb/home",
		HostPort:      "7200",
		ContainerPort: "7200",
	})
	require.NoError(testInstance, creationError)
	require.Equal(testInstance, "abc123", containerID)
	require.Equal(testInstance, "ontotext/graphdb:10.6.3", observedRequest["Image"])

	hostConfiguration, isMap := observedRequest["HostConfig"].(map[string]any)
	require.True(testInstance, isMap)
	require.Equal(testInstance, "graphport-net", hostConfiguration["NetworkMode"])
	require.Equal(testInstance, []any{"graphport-data:/opt/graphdb/home"}, hostConfiguration["Binds"])
}

func TestEngineClientRemoveVolumeReportsConflict(testInstance *testing.T) {
	testInstance.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, http.MethodDelete, request.Method)
		require.Equal(testInstance, "/volumes/graphport-data", request.URL.Path)
		responseWriter.WriteHeader(http.StatusConflict)
		io.WriteString(responseWriter, `{"message": "volume is in use"}`)
	}))
	defer server.Close()

	client := newEngineClientForServer(server)

	removalError := client.RemoveVolume(context.Background(), "graphport-data")
	require.True(testInstance, lifecycle.IsEngineConflict(removalError))
	require.ErrorContains(testInstance, removalError, "volume is in use")
}

func TestEngineClientInspectContainer(testInstance *testing.T) {
	testInstance.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "/containers/abc123/json", request.URL.Path)
		io.WriteString(responseWriter, `{"Id": "abc123", "State": {"Running": true, "Status": "running"}}`)
	}))
	defer server.Close()

	client := newEngineClientForServer(server)

	containerState, inspectError := client.InspectContainer(context.Background(), "abc123")
	require.NoError(testInstance, inspectError)
	require.True(testInstance, containerState.Running)
	require.Equal(testInstance, "running", containerState.Status)
}

func TestEngineClientMapsMissingContainer(testInstance *testing.T) {
	testInstance.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.WriteHeader(http.StatusNotFound)
		io.WriteString(responseWriter, `{"message": "no such container"}`)
	}))
	defer server.Close()

	client := newEngineClientForServer(server)

	stopError := client.StopContainer(context.Background(), "missing")
	require.True(testInstance, lifecycle.IsEngineNotFound(stopError))
}
