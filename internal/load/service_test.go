package load_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/graphdb"
	"github.com/ontofleet/graphport/internal/load"
)

type importInvocation struct {
	repositoryID   string
	dataFilePath   string
	configFilePath string
}

type stubRepositoryWriter struct {
	existingRepositories []graphdb.RepositoryDescriptor
	importInvocations    []importInvocation
	insertedGraphURIs    []string
	listError            error
}

func (writer *stubRepositoryWriter) ServerURL() string {
	return "http://target.internal:7200"
}

func (writer *stubRepositoryWriter) ListRepositories(executionContext context.Context) ([]graphdb.RepositoryDescriptor, error) {
	if writer.listError != nil {
		return nil, writer.listError
	}
	return writer.existingRepositories, nil
}

func (writer *stubRepositoryWriter) ImportRepository(executionContext context.Context, repositoryID string, dataFilePath string, configFilePath string) (int, error) {
	writer.importInvocations = append(writer.importInvocations, importInvocation{
		repositoryID:   repositoryID,
		dataFilePath:   dataFilePath,
		configFilePath: configFilePath,
	})
	return http.StatusNoContent, nil
}

func (writer *stubRepositoryWriter) InsertGraph(executionContext context.Context, repositoryID string, graphURI string, dataFilePath string) (int, error) {
	writer.insertedGraphURIs = append(writer.insertedGraphURIs, graphURI)
	return http.StatusNoContent, nil
}

func TestNewServiceRequiresTarget(testInstance *testing.T) {
	testInstance.Parallel()

	_, serviceError := load.NewService(load.ServiceDependencies{})
	require.Error(testInstance, serviceError)
}

func TestServiceLoadCreatesAbsentRepository(testInstance *testing.T) {
	testCases := []struct {
		name                   string
		existingRepositories   []graphdb.RepositoryDescriptor
		expectedConfigFilePath string
	}{
		{
			name:                   "absent_repository_is_created_from_configuration",
			existingRepositories:   []graphdb.RepositoryDescriptor{{ID: "other"}},
			expectedConfigFilePath: "/tmp/token-RepoA.conf.ttl",
		},
		{
			name:                   "existing_repository_keeps_configuration",
			existingRepositories:   []graphdb.RepositoryDescriptor{{ID: "RepoA"}},
			expectedConfigFilePath: "",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			writer := &stubRepositoryWriter{existingRepositories: testCase.existingRepositories}
			service, serviceError := load.NewService(load.ServiceDependencies{Target: writer})
			require.NoError(subtestInstance, serviceError)

			artifact := graphdb.ExportArtifact{
				RepositoryID:   "RepoA",
				ConfigFilePath: "/tmp/token-RepoA.conf.ttl",
				DataFilePath:   "/tmp/token-RepoA.brf",
			}

			statusCode, loadError := service.Load(context.Background(), artifact)
			require.NoError(subtestInstance, loadError)
			require.Equal(subtestInstance, http.StatusNoContent, statusCode)
			require.Len(subtestInstance, writer.importInvocations, 1)
			require.Equal(subtestInstance, "RepoA", writer.importInvocations[0].repositoryID)
			require.Equal(subtestInstance, "/tmp/token-RepoA.brf", writer.importInvocations[0].dataFilePath)
			require.Equal(subtestInstance, testCase.expectedConfigFilePath, writer.importInvocations[0].configFilePath)
		})
	}
}

func TestServiceLoadPropagatesListingFailure(testInstance *testing.T) {
	testInstance.Parallel()

	writer := &stubRepositoryWriter{listError: graphdb.StatusError{Operation: graphdb.OperationListRepositories, StatusCode: http.StatusBadGateway}}
	service, serviceError := load.NewService(load.ServiceDependencies{Target: writer})
	require.NoError(testInstance, serviceError)

	_, loadError := service.Load(context.Background(), graphdb.ExportArtifact{RepositoryID: "RepoA"})
	require.Error(testInstance, loadError)
	require.Empty(testInstance, writer.importInvocations)
}

func TestServiceInsertGraph(testInstance *testing.T) {
	testInstance.Parallel()

	writer := &stubRepositoryWriter{}
	service, serviceError := load.NewService(load.ServiceDependencies{Target: writer})
	require.NoError(testInstance, serviceError)

	artifact := graphdb.GraphArtifact{GraphURI: "https://example.org/g1", LocalFilePath: "/tmp/_g1.brf", RepositoryID: "RepoA"}

	statusCode, insertError := service.InsertGraph(context.Background(), "RepoA", artifact)
	require.NoError(testInstance, insertError)
	require.Equal(testInstance, http.StatusNoContent, statusCode)
	require.Equal(testInstance, []string{"https://example.org/g1"}, writer.insertedGraphURIs)
}
