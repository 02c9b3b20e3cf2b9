package graphdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	repositoriesEndpointTemplateConstant       = "%s/repositories"
	repositoryManagementEndpointConstant       = "%s/rest/repositories"
	repositoryConfigurationEndpointConstant    = "%s/rest/repositories/%s/download-ttl"
	repositoryDeletionEndpointConstant         = "%s/rest/repositories/%s"
	repositoryStatementsEndpointConstant       = "%s/repositories/%s/statements"
	repositorySizeEndpointConstant             = "%s/repositories/%s/size"
	repositoryQueryEndpointConstant            = "%s/repositories/%s"
	graphServiceEndpointConstant               = "%s/repositories/%s/rdf-graphs/service?%s"
	graphQueryParameterNameConstant            = "graph"
	sparqlQueryFormFieldNameConstant           = "query"
	authorizationHeaderNameConstant            = "Authorization"
	acceptHeaderNameConstant                   = "Accept"
	contentTypeHeaderNameConstant              = "Content-Type"
	jsonContentTypeConstant                    = "application/json"
	turtleContentTypeConstant                  = "text/turtle"
	binaryRDFContentTypeConstant               = "application/x-binary-rdf"
	sparqlResultsContentTypeConstant           = "application/sparql-results+json"
	formURLEncodedContentTypeConstant          = "application/x-www-form-urlencoded"
	multipartConfigFieldNameConstant           = "config"
	multipartConfigFileNameTemplateConstant    = "%s-config.ttl"
	contentDispositionHeaderNameConstant       = "Content-Disposition"
	contentDispositionTemplateConstant         = `form-data; name=%q; filename=%q`
	configurationChunkSizeConstant             = 1024
	dataChunkSizeConstant                      = 4 * 1024 * 1024
	repositoryIdentifierFieldNameConstant      = "repository_id"
	dataFilePathFieldNameConstant              = "data_file_path"
	requiredValueMessageConstant               = "value required"
	connectionMissingMessageConstant           = "server connection not configured"
	graphBindingVariableNameConstant           = "g"
	triplesBindingVariableNameConstant         = "triples"
	repositoryBindingVariableNameConstant      = "id"
	artifactFileCreateErrorTemplateConstant    = "unable to create artifact file %s: %w"
	artifactFileWriteErrorTemplateConstant     = "unable to write artifact file %s: %w"
	artifactFileCloseErrorTemplateConstant     = "unable to finalize artifact file %s: %w"
	artifactFileOpenErrorTemplateConstant      = "unable to open artifact file %s: %w"
	logMessageRepositoryExportedConstant       = "Repository exported"
	logMessageRepositoryImportedConstant       = "Repository imported"
	logMessageGraphExportedConstant            = "Graph exported"
	logMessageGraphInsertedConstant            = "Graph inserted"
	logFieldRepositoryConstant                 = "repository"
	logFieldServerConstant                     = "server"
	logFieldGraphConstant                      = "graph"
	logFieldStatusConstant                     = "status"
	logFieldConfigArtifactConstant             = "config_artifact"
	logFieldDataArtifactConstant               = "data_artifact"
	logFieldGraphArtifactConstant              = "graph_artifact"
	defaultArtifactDirectoryConstant           = "."
)

// ErrConnectionMissing indicates the client was constructed without a server connection.
var ErrConnectionMissing = errors.New(connectionMissingMessageConstant)

// ClientDependencies describes collaborators required by the wire client.
type ClientDependencies struct {
	Logger            *zap.Logger
	HTTPClient        *http.Client
	Connection        *ServerConnection
	ArtifactDirectory string
}

// Client performs primitive repository and graph operations against one server.
// The client performs no automatic retry; failures surface to the caller.
type Client struct {
	logger            *zap.Logger
	httpClient        *http.Client
	connection        *ServerConnection
	artifactDirectory string
}

// NewClient constructs a wire client from its dependencies.
func NewClient(dependencies ClientDependencies) (*Client, error) {
	if dependencies.Connection == nil {
		return nil, ErrConnectionMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := dependencies.HTTPClient
	if httpClient == nil {
		// No client timeout: statement dumps can take hours to stream.
		httpClient = &http.Client{}
	}

	artifactDirectory := strings.TrimSpace(dependencies.ArtifactDirectory)
	if len(artifactDirectory) == 0 {
		artifactDirectory = defaultArtifactDirectoryConstant
	}

	return &Client{
		logger:            logger,
		httpClient:        httpClient,
		connection:        dependencies.Connection,
		artifactDirectory: artifactDirectory,
	}, nil
}

// ServerURL exposes the endpoint this client talks to.
func (client *Client) ServerURL() string {
	return client.connection.BaseURL
}

// ListRepositories enumerates repository identifiers hosted by the server.
// Servers without repositories return an empty set.
func (client *Client) ListRepositories(executionContext context.Context) ([]RepositoryDescriptor, error) {
	listURL := fmt.Sprintf(repositoriesEndpointTemplateConstant, client.connection.BaseURL)

	response, requestError := client.execute(executionContext, OperationListRepositories, http.MethodGet, listURL, "", nil, map[string]string{
		acceptHeaderNameConstant: sparqlResultsContentTypeConstant,
	})
	if requestError != nil {
		return nil, requestError
	}
	defer response.Body.Close()

	bindingValues, decodeError := decodeBindingColumn(OperationListRepositories, response.Body, repositoryBindingVariableNameConstant)
	if decodeError != nil {
		return nil, decodeError
	}

	repositories := make([]RepositoryDescriptor, 0, len(bindingValues))
	for _, repositoryIdentifier := range bindingValues {
		repositories = append(repositories, RepositoryDescriptor{ID: repositoryIdentifier})
	}
	return repositories, nil
}

// CreateRepository renders the configuration template for the identifier and
// uploads it. The call is not idempotent: creating an existing repository
// yields a ConflictError, and idempotency is the caller's responsibility.
func (client *Client) CreateRepository(executionContext context.Context, repositoryID string, inferenceProfile string) error {
	renderedConfiguration, renderError := RenderRepositoryConfiguration(RepositoryConfigurationParameters{
		RepositoryID:     repositoryID,
		InferenceProfile: inferenceProfile,
	})
	if renderError != nil {
		return renderError
	}

	return client.uploadRepositoryConfiguration(executionContext, repositoryID, renderedConfiguration)
}

// DeleteRepository removes the repository and its contents from the server.
func (client *Client) DeleteRepository(executionContext context.Context, repositoryID string) error {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return validationError
	}

	deletionURL := fmt.Sprintf(repositoryDeletionEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	response, requestError := client.execute(executionContext, OperationDeleteRepository, http.MethodDelete, deletionURL, repositoryID, nil, nil)
	if requestError != nil {
		return requestError
	}
	response.Body.Close()
	return nil
}

// ExportRepository downloads the repository configuration and its full binary
// statement dump into freshly named artifact files. The configuration is small
// and copied in small buffered chunks; the dump is streamed in large chunks so
// memory use stays independent of repository size. Both files are fully
// written and closed before the artifact is returned.
func (client *Client) ExportRepository(executionContext context.Context, repositoryID string) (ExportArtifact, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return ExportArtifact{}, validationError
	}

	configurationFilePath, dataFilePath := newExportArtifactPaths(client.artifactDirectory, repositoryID)

	configurationURL := fmt.Sprintf(repositoryConfigurationEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	configurationError := client.downloadToFile(executionContext, OperationExportRepository, configurationURL, repositoryID, turtleContentTypeConstant, configurationFilePath, configurationChunkSizeConstant)
	if configurationError != nil {
		return ExportArtifact{}, configurationError
	}

	statementsURL := fmt.Sprintf(repositoryStatementsEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	dataError := client.downloadToFile(executionContext, OperationExportRepository, statementsURL, repositoryID, binaryRDFContentTypeConstant, dataFilePath, dataChunkSizeConstant)
	if dataError != nil {
		return ExportArtifact{}, dataError
	}

	artifact := ExportArtifact{
		RepositoryID:   repositoryID,
		ConfigFilePath: configurationFilePath,
		DataFilePath:   dataFilePath,
	}

	client.logger.Info(
		logMessageRepositoryExportedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldServerConstant, client.connection.BaseURL),
		zap.String(logFieldConfigArtifactConstant, artifact.ConfigFilePath),
		zap.String(logFieldDataArtifactConstant, artifact.DataFilePath),
	)

	return artifact, nil
}

// ImportRepository bulk-loads a statement dump into the repository. When a
// configuration path is provided the repository is created from that turtle
// document first. The dump is streamed from disk as the request body.
func (client *Client) ImportRepository(executionContext context.Context, repositoryID string, dataFilePath string, configFilePath string) (int, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return 0, validationError
	}
	if len(strings.TrimSpace(dataFilePath)) == 0 {
		return 0, InvalidInputError{FieldName: dataFilePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	if len(configFilePath) > 0 {
		configurationContent, readError := os.ReadFile(configFilePath)
		if readError != nil {
			return 0, fmt.Errorf(artifactFileOpenErrorTemplateConstant, configFilePath, readError)
		}
		if creationError := client.uploadRepositoryConfiguration(executionContext, repositoryID, string(configurationContent)); creationError != nil {
			return 0, creationError
		}
	}

	statementsURL := fmt.Sprintf(repositoryStatementsEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	statusCode, uploadError := client.uploadFile(executionContext, OperationImportRepository, http.MethodPost, statementsURL, repositoryID, dataFilePath)
	if uploadError != nil {
		return statusCode, uploadError
	}

	client.logger.Info(
		logMessageRepositoryImportedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldServerConstant, client.connection.BaseURL),
		zap.Int(logFieldStatusConstant, statusCode),
	)

	return statusCode, nil
}

// ListGraphs issues the stored graph-name query against the repository query
// endpoint and returns the URI column of the result bindings.
func (client *Client) ListGraphs(executionContext context.Context, repositoryID string) ([]string, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return nil, validationError
	}

	return client.runStoredQuery(executionContext, OperationListGraphs, repositoryID, graphNamesQueryContent, graphBindingVariableNameConstant)
}

// GraphExists reports whether the graph URI is present in the repository's graph listing.
func (client *Client) GraphExists(executionContext context.Context, repositoryID string, graphURI string) (bool, error) {
	graphURIs, listError := client.ListGraphs(executionContext, repositoryID)
	if listError != nil {
		return false, listError
	}

	for _, candidateGraphURI := range graphURIs {
		if candidateGraphURI == graphURI {
			return true, nil
		}
	}
	return false, nil
}

// ExportGraph streams one named graph into its deterministic dump file.
func (client *Client) ExportGraph(executionContext context.Context, repositoryID string, graphURI string) (GraphArtifact, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return GraphArtifact{}, validationError
	}

	graphFileName, nameError := GraphArtifactFileName(graphURI)
	if nameError != nil {
		return GraphArtifact{}, nameError
	}
	graphFilePath := filepath.Join(client.artifactDirectory, graphFileName)

	graphURL := client.graphServiceURL(repositoryID, graphURI)
	downloadError := client.downloadToFile(executionContext, OperationExportGraph, graphURL, graphURI, binaryRDFContentTypeConstant, graphFilePath, dataChunkSizeConstant)
	if downloadError != nil {
		return GraphArtifact{}, downloadError
	}

	artifact := GraphArtifact{
		GraphURI:      graphURI,
		LocalFilePath: graphFilePath,
		RepositoryID:  repositoryID,
	}

	client.logger.Info(
		logMessageGraphExportedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldGraphConstant, graphURI),
		zap.String(logFieldGraphArtifactConstant, artifact.LocalFilePath),
	)

	return artifact, nil
}

// InsertGraph streams a graph dump file into the named graph of the repository.
func (client *Client) InsertGraph(executionContext context.Context, repositoryID string, graphURI string, dataFilePath string) (int, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return 0, validationError
	}
	if len(strings.TrimSpace(dataFilePath)) == 0 {
		return 0, InvalidInputError{FieldName: dataFilePathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	graphURL := client.graphServiceURL(repositoryID, graphURI)
	statusCode, uploadError := client.uploadFile(executionContext, OperationInsertGraph, http.MethodPost, graphURL, graphURI, dataFilePath)
	if uploadError != nil {
		return statusCode, uploadError
	}

	client.logger.Info(
		logMessageGraphInsertedConstant,
		zap.String(logFieldRepositoryConstant, repositoryID),
		zap.String(logFieldGraphConstant, graphURI),
		zap.Int(logFieldStatusConstant, statusCode),
	)

	return statusCode, nil
}

// CountStatements returns the total number of statements stored in the repository.
func (client *Client) CountStatements(executionContext context.Context, repositoryID string) (int64, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return 0, validationError
	}

	sizeURL := fmt.Sprintf(repositorySizeEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	response, requestError := client.execute(executionContext, OperationCountStatements, http.MethodGet, sizeURL, repositoryID, nil, nil)
	if requestError != nil {
		return 0, requestError
	}
	defer response.Body.Close()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return 0, ResponseDecodingError{Operation: OperationCountStatements, Cause: readError}
	}

	statementCount, parseError := strconv.ParseInt(strings.TrimSpace(string(responseBody)), 10, 64)
	if parseError != nil {
		return 0, ResponseDecodingError{Operation: OperationCountStatements, Cause: parseError}
	}
	return statementCount, nil
}

// CountTriplesByGraph returns the per-graph triple counts reported by the
// stored aggregation query.
func (client *Client) CountTriplesByGraph(executionContext context.Context, repositoryID string) (map[string]int64, error) {
	if validationError := requireRepositoryIdentifier(repositoryID); validationError != nil {
		return nil, validationError
	}

	bindings, queryError := client.runStoredQueryBindings(executionContext, OperationCountTriplesByGraph, repositoryID, triplesCountByGraphQueryContent)
	if queryError != nil {
		return nil, queryError
	}

	triplesByGraph := make(map[string]int64, len(bindings))
	for _, binding := range bindings {
		graphURI := binding[graphBindingVariableNameConstant].Value
		tripleCount, parseError := strconv.ParseInt(binding[triplesBindingVariableNameConstant].Value, 10, 64)
		if parseError != nil {
			return nil, ResponseDecodingError{Operation: OperationCountTriplesByGraph, Cause: parseError}
		}
		triplesByGraph[graphURI] = tripleCount
	}
	return triplesByGraph, nil
}

func (client *Client) graphServiceURL(repositoryID string, graphURI string) string {
	graphQueryValues := url.Values{}
	graphQueryValues.Set(graphQueryParameterNameConstant, graphURI)
	return fmt.Sprintf(graphServiceEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID), graphQueryValues.Encode())
}

func (client *Client) uploadRepositoryConfiguration(executionContext context.Context, repositoryID string, configurationContent string) error {
	multipartBody := &strings.Builder{}
	multipartWriter := multipart.NewWriter(multipartBody)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set(contentDispositionHeaderNameConstant, fmt.Sprintf(contentDispositionTemplateConstant, multipartConfigFieldNameConstant, fmt.Sprintf(multipartConfigFileNameTemplateConstant, repositoryID)))
	partHeader.Set(contentTypeHeaderNameConstant, turtleContentTypeConstant)

	configurationPart, partError := multipartWriter.CreatePart(partHeader)
	if partError != nil {
		return NetworkError{Operation: OperationCreateRepository, ServerURL: client.connection.BaseURL, Cause: partError}
	}
	if _, writeError := io.WriteString(configurationPart, configurationContent); writeError != nil {
		return NetworkError{Operation: OperationCreateRepository, ServerURL: client.connection.BaseURL, Cause: writeError}
	}
	if closeError := multipartWriter.Close(); closeError != nil {
		return NetworkError{Operation: OperationCreateRepository, ServerURL: client.connection.BaseURL, Cause: closeError}
	}

	creationURL := fmt.Sprintf(repositoryManagementEndpointConstant, client.connection.BaseURL)
	response, requestError := client.execute(executionContext, OperationCreateRepository, http.MethodPost, creationURL, repositoryID, strings.NewReader(multipartBody.String()), map[string]string{
		contentTypeHeaderNameConstant: multipartWriter.FormDataContentType(),
	})
	if requestError != nil {
		return requestError
	}
	response.Body.Close()
	return nil
}

func (client *Client) runStoredQuery(executionContext context.Context, operation OperationName, repositoryID string, queryText string, bindingVariableName string) ([]string, error) {
	bindings, queryError := client.runStoredQueryBindings(executionContext, operation, repositoryID, queryText)
	if queryError != nil {
		return nil, queryError
	}

	bindingValues := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		bindingValues = append(bindingValues, binding[bindingVariableName].Value)
	}
	return bindingValues, nil
}

type sparqlBinding struct {
	Value string `json:"value"`
}

type sparqlResultsDocument struct {
	Results struct {
		Bindings []map[string]sparqlBinding `json:"bindings"`
	} `json:"results"`
}

func (client *Client) runStoredQueryBindings(executionContext context.Context, operation OperationName, repositoryID string, queryText string) ([]map[string]sparqlBinding, error) {
	queryURL := fmt.Sprintf(repositoryQueryEndpointConstant, client.connection.BaseURL, url.PathEscape(repositoryID))
	formValues := url.Values{}
	formValues.Set(sparqlQueryFormFieldNameConstant, queryText)

	response, requestError := client.execute(executionContext, operation, http.MethodPost, queryURL, repositoryID, strings.NewReader(formValues.Encode()), map[string]string{
		acceptHeaderNameConstant:      sparqlResultsContentTypeConstant,
		contentTypeHeaderNameConstant: formURLEncodedContentTypeConstant,
	})
	if requestError != nil {
		return nil, requestError
	}
	defer response.Body.Close()

	resultsDocument := sparqlResultsDocument{}
	if decodeError := json.NewDecoder(response.Body).Decode(&resultsDocument); decodeError != nil {
		return nil, ResponseDecodingError{Operation: operation, Cause: decodeError}
	}
	return resultsDocument.Results.Bindings, nil
}

func decodeBindingColumn(operation OperationName, responseBody io.Reader, bindingVariableName string) ([]string, error) {
	resultsDocument := sparqlResultsDocument{}
	if decodeError := json.NewDecoder(responseBody).Decode(&resultsDocument); decodeError != nil {
		return nil, ResponseDecodingError{Operation: operation, Cause: decodeError}
	}

	bindingValues := make([]string, 0, len(resultsDocument.Results.Bindings))
	for _, binding := range resultsDocument.Results.Bindings {
		bindingValues = append(bindingValues, binding[bindingVariableName].Value)
	}
	return bindingValues, nil
}

func (client *Client) downloadToFile(executionContext context.Context, operation OperationName, requestURL string, resource string, acceptContentType string, destinationPath string, chunkSize int) error {
	response, requestError := client.execute(executionContext, operation, http.MethodGet, requestURL, resource, nil, map[string]string{
		acceptHeaderNameConstant: acceptContentType,
	})
	if requestError != nil {
		return requestError
	}
	defer response.Body.Close()

	destinationFile, createError := os.Create(destinationPath)
	if createError != nil {
		return fmt.Errorf(artifactFileCreateErrorTemplateConstant, destinationPath, createError)
	}

	transferBuffer := make([]byte, chunkSize)
	if _, copyError := io.CopyBuffer(destinationFile, response.Body, transferBuffer); copyError != nil {
		destinationFile.Close()
		return fmt.Errorf(artifactFileWriteErrorTemplateConstant, destinationPath, copyError)
	}

	if closeError := destinationFile.Close(); closeError != nil {
		return fmt.Errorf(artifactFileCloseErrorTemplateConstant, destinationPath, closeError)
	}
	return nil
}

func (client *Client) uploadFile(executionContext context.Context, operation OperationName, method string, requestURL string, resource string, sourcePath string) (int, error) {
	sourceFile, openError := os.Open(sourcePath)
	if openError != nil {
		return 0, fmt.Errorf(artifactFileOpenErrorTemplateConstant, sourcePath, openError)
	}
	defer sourceFile.Close()

	sourceInformation, statError := sourceFile.Stat()
	if statError != nil {
		return 0, fmt.Errorf(artifactFileOpenErrorTemplateConstant, sourcePath, statError)
	}

	request, requestCreationError := http.NewRequestWithContext(executionContext, method, requestURL, sourceFile)
	if requestCreationError != nil {
		return 0, NetworkError{Operation: operation, ServerURL: client.connection.BaseURL, Cause: requestCreationError}
	}
	request.ContentLength = sourceInformation.Size()
	request.Header.Set(contentTypeHeaderNameConstant, binaryRDFContentTypeConstant)
	client.applyAuthorization(request)

	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return 0, NetworkError{Operation: operation, ServerURL: client.connection.BaseURL, Cause: transportError}
	}
	defer response.Body.Close()
	io.Copy(io.Discard, response.Body)

	if response.StatusCode >= http.StatusBadRequest {
		return response.StatusCode, classifyStatus(operation, client.connection.BaseURL, resource, response.StatusCode)
	}
	return response.StatusCode, nil
}

func (client *Client) execute(executionContext context.Context, operation OperationName, method string, requestURL string, resource string, requestBody io.Reader, headers map[string]string) (*http.Response, error) {
	request, requestCreationError := http.NewRequestWithContext(executionContext, method, requestURL, requestBody)
	if requestCreationError != nil {
		return nil, NetworkError{Operation: operation, ServerURL: client.connection.BaseURL, Cause: requestCreationError}
	}

	for headerName, headerValue := range headers {
		request.Header.Set(headerName, headerValue)
	}
	client.applyAuthorization(request)

	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return nil, NetworkError{Operation: operation, ServerURL: client.connection.BaseURL, Cause: transportError}
	}

	if response.StatusCode >= http.StatusBadRequest {
		statusCode := response.StatusCode
		io.Copy(io.Discard, response.Body)
		response.Body.Close()
		return nil, classifyStatus(operation, client.connection.BaseURL, resource, statusCode)
	}

	return response, nil
}

func (client *Client) applyAuthorization(request *http.Request) {
	authorizationHeader := client.connection.AuthorizationHeader()
	if len(authorizationHeader) > 0 {
		request.Header.Set(authorizationHeaderNameConstant, authorizationHeader)
	}
}

func requireRepositoryIdentifier(repositoryID string) error {
	if len(strings.TrimSpace(repositoryID)) == 0 {
		return InvalidInputError{FieldName: repositoryIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}
