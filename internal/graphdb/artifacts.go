package graphdb

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	configurationArtifactTemplateConstant = "%s-%s.conf.ttl"
	dataArtifactTemplateConstant          = "%s-%s.brf"
	graphArtifactSuffixConstant           = ".brf"
	graphPathSeparatorConstant            = "/"
	graphPathReplacementConstant          = "_"
	graphURIFieldNameConstant             = "graph_uri"
	graphURIInvalidMessageConstant        = "graph URI must be an absolute URI"
)

// RepositoryDescriptor identifies one repository reported by a server listing.
type RepositoryDescriptor struct {
	ID string
}

// ExportArtifact references the on-disk configuration and statement dump of one
// exported repository. File names embed a random token so that concurrent
// migrations targeting the same repository identifier never collide.
type ExportArtifact struct {
	RepositoryID   string
	ConfigFilePath string
	DataFilePath   string
}

// GraphArtifact references the on-disk statement dump of one named graph.
// The file name is a pure function of the graph URI, so repeated exports of
// the same graph overwrite the same file.
type GraphArtifact struct {
	GraphURI      string
	LocalFilePath string
	RepositoryID  string
}

func newExportArtifactPaths(artifactDirectory string, repositoryID string) (string, string) {
	artifactToken := uuid.NewString()
	configurationFileName := fmt.Sprintf(configurationArtifactTemplateConstant, artifactToken, repositoryID)
	dataFileName := fmt.Sprintf(dataArtifactTemplateConstant, artifactToken, repositoryID)
	return filepath.Join(artifactDirectory, configurationFileName), filepath.Join(artifactDirectory, dataFileName)
}

// GraphArtifactFileName derives the deterministic dump file name for a graph URI.
func GraphArtifactFileName(graphURI string) (string, error) {
	parsedGraphURI, parseError := url.Parse(graphURI)
	if parseError != nil || !parsedGraphURI.IsAbs() {
		return "", InvalidInputError{FieldName: graphURIFieldNameConstant, Message: graphURIInvalidMessageConstant}
	}

	flattenedPath := strings.ReplaceAll(parsedGraphURI.Path, graphPathSeparatorConstant, graphPathReplacementConstant)
	return flattenedPath + graphArtifactSuffixConstant, nil
}
