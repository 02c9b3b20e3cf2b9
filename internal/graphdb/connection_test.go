package graphdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/graphdb"
)

func TestServerConnectionAuthorizationHeader(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name           string
		username       string
		password       string
		expectedHeader string
	}{
		{
			name:           "credentials_produce_basic_header",
			username:       "admin",
			password:       "root",
			expectedHeader: "Basic YWRtaW46cm9vdA==",
		},
		{
			name:           "blank_credentials_produce_no_header",
			username:       "",
			password:       "",
			expectedHeader: "",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			connection := graphdb.NewServerConnection("http://graphdb.internal:7200", testCase.username, testCase.password)
			require.Equal(subtestInstance, testCase.expectedHeader, connection.AuthorizationHeader())
		})
	}
}

func TestServerConnectionAuthorizationHeaderIsCached(testInstance *testing.T) {
	testInstance.Parallel()

	connection := graphdb.NewServerConnection("http://graphdb.internal:7200", "admin", "root")
	firstHeader := connection.AuthorizationHeader()

	// Mutating credentials after first use must not change the cached header.
	connection.Password = "changed"
	require.Equal(testInstance, firstHeader, connection.AuthorizationHeader())
}

func TestServerConnectionTrimsTrailingSlash(testInstance *testing.T) {
	testInstance.Parallel()

	connection := graphdb.NewServerConnection("http://graphdb.internal:7200/", "", "")
	require.Equal(testInstance, "http://graphdb.internal:7200", connection.BaseURL)
	require.True(testInstance, connection.Anonymous())
}
