package graphdb

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

const (
	repositoryConfigurationTemplateNameConstant = "repository_config"
	defaultInferenceProfileConstant             = "rdfsplus-optimized"
	templateRenderErrorTemplateConstant         = "unable to render repository configuration for %q: %w"
	repositoryIdentifierRequiredMessageConstant = "repository identifier required"
)

//go:embed config/repository_config.ttl.tmpl
var repositoryConfigurationTemplateContent string

//go:embed config/get_graph_names.rq
var graphNamesQueryContent string

//go:embed config/triples_count_by_graph.rq
var triplesCountByGraphQueryContent string

var repositoryConfigurationTemplate = template.Must(
	template.New(repositoryConfigurationTemplateNameConstant).Parse(repositoryConfigurationTemplateContent),
)

// RepositoryConfigurationParameters are the only substitution points of the
// repository configuration template.
type RepositoryConfigurationParameters struct {
	RepositoryID     string
	InferenceProfile string
}

// RenderRepositoryConfiguration renders the fixed turtle configuration template.
// The document is produced fresh for every create call and never hand-edited.
func RenderRepositoryConfiguration(parameters RepositoryConfigurationParameters) (string, error) {
	repositoryIdentifier := strings.TrimSpace(parameters.RepositoryID)
	if len(repositoryIdentifier) == 0 {
		return "", InvalidInputError{FieldName: repositoryIdentifierFieldNameConstant, Message: repositoryIdentifierRequiredMessageConstant}
	}

	inferenceProfile := strings.TrimSpace(parameters.InferenceProfile)
	if len(inferenceProfile) == 0 {
		inferenceProfile = defaultInferenceProfileConstant
	}

	renderedConfiguration := bytes.Buffer{}
	renderError := repositoryConfigurationTemplate.Execute(&renderedConfiguration, RepositoryConfigurationParameters{
		RepositoryID:     repositoryIdentifier,
		InferenceProfile: inferenceProfile,
	})
	if renderError != nil {
		return "", fmt.Errorf(templateRenderErrorTemplateConstant, repositoryIdentifier, renderError)
	}

	return renderedConfiguration.String(), nil
}
