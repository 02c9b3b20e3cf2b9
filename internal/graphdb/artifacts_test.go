package graphdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/graphdb"
)

func TestGraphArtifactFileName(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name             string
		graphURI         string
		expectedFileName string
		expectError      bool
	}{
		{
			name:             "path_segments_flatten_to_underscores",
			graphURI:         "https://data.example.com/KKH/SelectionTemplateEG",
			expectedFileName: "_KKH_SelectionTemplateEG.brf",
		},
		{
			name:             "single_segment_path",
			graphURI:         "https://example.org/g1",
			expectedFileName: "_g1.brf",
		},
		{
			name:        "relative_reference_is_rejected",
			graphURI:    "not-a-graph-uri",
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			graphFileName, nameError := graphdb.GraphArtifactFileName(testCase.graphURI)

			if testCase.expectError {
				require.Error(subtestInstance, nameError)
				return
			}

			require.NoError(subtestInstance, nameError)
			require.Equal(subtestInstance, testCase.expectedFileName, graphFileName)
		})
	}
}

func TestGraphArtifactFileNameIsDeterministic(testInstance *testing.T) {
	testInstance.Parallel()

	firstFileName, firstError := graphdb.GraphArtifactFileName("https://example.org/catalog/products")
	require.NoError(testInstance, firstError)

	secondFileName, secondError := graphdb.GraphArtifactFileName("https://example.org/catalog/products")
	require.NoError(testInstance, secondError)

	require.Equal(testInstance, firstFileName, secondFileName)
}
