package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	unixSchemePrefixConstant           = "unix://"
	tcpSchemePrefixConstant            = "tcp://"
	unixNetworkNameConstant            = "unix"
	engineBaseURLConstant              = "http://docker"
	defaultDockerHostConstant          = "unix:///var/run/docker.sock"
	jsonContentTypeConstant            = "application/json"
	contentTypeHeaderNameConstant      = "Content-Type"
	networkCreateEndpointConstant      = "%s/networks/create"
	volumeCreateEndpointConstant       = "%s/volumes/create"
	volumeRemoveEndpointConstant       = "%s/volumes/%s"
	containerCreateEndpointConstant    = "%s/containers/create?name=%s"
	containerStartEndpointConstant     = "%s/containers/%s/start"
	containerStopEndpointConstant      = "%s/containers/%s/stop"
	containerRemoveEndpointConstant    = "%s/containers/%s?force=%t&v=%t"
	containerInspectEndpointConstant   = "%s/containers/%s/json"
	engineRequestErrorTemplateConstant = "engine request %s failed: %w"
	engineDecodeErrorTemplateConstant  = "unable to decode engine response for %s: %w"
)

// EngineError reports a Docker Engine API failure.
type EngineError struct {
	Operation  string
	StatusCode int
	Message    string
}

// Error describes the failed engine call.
func (engineError EngineError) Error() string {
	return fmt.Sprintf("%s: engine returned status %d: %s", engineError.Operation, engineError.StatusCode, engineError.Message)
}

// IsEngineNotFound reports whether the error is a 404 engine response.
func IsEngineNotFound(candidate error) bool {
	engineError, isEngineError := candidate.(EngineError)
	return isEngineError && engineError.StatusCode == http.StatusNotFound
}

// IsEngineConflict reports whether the error is a 409 engine response.
func IsEngineConflict(candidate error) bool {
	engineError, isEngineError := candidate.(EngineError)
	return isEngineError && engineError.StatusCode == http.StatusConflict
}

// ContainerSpecification describes a container the engine should create.
type ContainerSpecification struct {
	Name          string
	Image         string
	Environment   []string
	NetworkName   string
	VolumeName    string
	VolumeTarget  string
	HostPort      string
	ContainerPort string
}

// ContainerState reports the runtime state of an inspected container.
type ContainerState struct {
	Running bool   `json:"Running"`
	Status  string `json:"Status"`
}

type containerInspectDocument struct {
	ID    string         `json:"Id"`
	State ContainerState `json:"State"`
}

type containerCreateDocument struct {
	ID string `json:"Id"`
}

type engineMessageDocument struct {
	Message string `json:"message"`
}

// EngineClient talks to one Docker Engine over its HTTP API, reachable
// through a unix socket or a TCP host.
type EngineClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewEngineClient builds a client for the given Docker host. A blank host
// selects the default unix socket.
func NewEngineClient(dockerHost string) *EngineClient {
	trimmedHost := strings.TrimSpace(dockerHost)
	if len(trimmedHost) == 0 {
		trimmedHost = defaultDockerHostConstant
	}

	if strings.HasPrefix(trimmedHost, unixSchemePrefixConstant) {
		socketPath := strings.TrimPrefix(trimmedHost, unixSchemePrefixConstant)
		transport := &http.Transport{
			DialContext: func(dialContext context.Context, network string, address string) (net.Conn, error) {
				dialer := net.Dialer{}
				return dialer.DialContext(dialContext, unixNetworkNameConstant, socketPath)
			},
		}
		return &EngineClient{httpClient: &http.Client{Transport: transport}, baseURL: engineBaseURLConstant}
	}

	hostAddress := strings.TrimPrefix(trimmedHost, tcpSchemePrefixConstant)
	return &EngineClient{httpClient: &http.Client{}, baseURL: "http://" + hostAddress}
}

// NewEngineClientWithHTTPClient builds a client for a plain HTTP endpoint
// using the provided HTTP client.
func NewEngineClientWithHTTPClient(baseURL string, httpClient *http.Client) *EngineClient {
	return &EngineClient{httpClient: httpClient, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// CreateNetwork creates a bridge network. An already existing network is not
// an error.
func (client *EngineClient) CreateNetwork(executionContext context.Context, networkName string) error {
	requestBody := map[string]any{"Name": networkName}
	requestURL := fmt.Sprintf(networkCreateEndpointConstant, client.baseURL)
	creationError := client.postJSON(executionContext, "create network", requestURL, requestBody, nil)
	if creationError != nil && !IsEngineConflict(creationError) {
		return creationError
	}
	return nil
}

// CreateVolume creates a named volume. Volume creation is idempotent on the
// engine side.
func (client *EngineClient) CreateVolume(executionContext context.Context, volumeName string) error {
	requestBody := map[string]any{"Name": volumeName}
	requestURL := fmt.Sprintf(volumeCreateEndpointConstant, client.baseURL)
	return client.postJSON(executionContext, "create volume", requestURL, requestBody, nil)
}

// RemoveVolume removes a named volume. The engine answers 409 while a
// container still holds the volume.
func (client *EngineClient) RemoveVolume(executionContext context.Context, volumeName string) error {
	requestURL := fmt.Sprintf(volumeRemoveEndpointConstant, client.baseURL, url.PathEscape(volumeName))
	return client.execute(executionContext, "remove volume", http.MethodDelete, requestURL, nil, nil)
}

// CreateContainer creates a container from the specification and returns the
// engine-assigned container identifier.
func (client *EngineClient) CreateContainer(executionContext context.Context, specification ContainerSpecification) (string, error) {
	containerPort := specification.ContainerPort + "/tcp"
	requestBody := map[string]any{
		"Image":        specification.Image,
		"Env":          specification.Environment,
		"ExposedPorts": map[string]any{containerPort: map[string]any{}},
		"HostConfig": map[string]any{
			"NetworkMode": specification.NetworkName,
			"Binds":       []string{specification.VolumeName + ":" + specification.VolumeTarget},
			"PortBindings": map[string]any{
				containerPort: []map[string]string{{"HostPort": specification.HostPort}},
			},
		},
	}

	requestURL := fmt.Sprintf(containerCreateEndpointConstant, client.baseURL, url.QueryEscape(specification.Name))
	createdContainer := containerCreateDocument{}
	creationError := client.postJSON(executionContext, "create container", requestURL, requestBody, &createdContainer)
	if creationError != nil {
		return "", creationError
	}
	return createdContainer.ID, nil
}

// StartContainer starts a created container. An already running container is
// not an error.
func (client *EngineClient) StartContainer(executionContext context.Context, containerID string) error {
	requestURL := fmt.Sprintf(containerStartEndpointConstant, client.baseURL, url.PathEscape(containerID))
	return client.execute(executionContext, "start container", http.MethodPost, requestURL, nil, nil)
}

// StopContainer stops a running container.
func (client *EngineClient) StopContainer(executionContext context.Context, containerID string) error {
	requestURL := fmt.Sprintf(containerStopEndpointConstant, client.baseURL, url.PathEscape(containerID))
	return client.execute(executionContext, "stop container", http.MethodPost, requestURL, nil, nil)
}

// RemoveContainer force-removes a container without touching named volumes.
func (client *EngineClient) RemoveContainer(executionContext context.Context, containerID string) error {
	requestURL := fmt.Sprintf(containerRemoveEndpointConstant, client.baseURL, url.PathEscape(containerID), true, false)
	return client.execute(executionContext, "remove container", http.MethodDelete, requestURL, nil, nil)
}

// InspectContainer returns the runtime state of a container.
func (client *EngineClient) InspectContainer(executionContext context.Context, containerID string) (ContainerState, error) {
	requestURL := fmt.Sprintf(containerInspectEndpointConstant, client.baseURL, url.PathEscape(containerID))
	inspectedContainer := containerInspectDocument{}
	inspectError := client.execute(executionContext, "inspect container", http.MethodGet, requestURL, nil, &inspectedContainer)
	if inspectError != nil {
		return ContainerState{}, inspectError
	}
	return inspectedContainer.State, nil
}

func (client *EngineClient) postJSON(executionContext context.Context, operation string, requestURL string, requestBody any, responseTarget any) error {
	encodedBody, marshalError := json.Marshal(requestBody)
	if marshalError != nil {
		return fmt.Errorf(engineRequestErrorTemplateConstant, operation, marshalError)
	}
	return client.execute(executionContext, operation, http.MethodPost, requestURL, encodedBody, responseTarget)
}

func (client *EngineClient) execute(executionContext context.Context, operation string, method string, requestURL string, requestBody []byte, responseTarget any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		bodyReader = bytes.NewReader(requestBody)
	}

	request, requestError := http.NewRequestWithContext(executionContext, method, requestURL, bodyReader)
	if requestError != nil {
		return fmt.Errorf(engineRequestErrorTemplateConstant, operation, requestError)
	}
	if requestBody != nil {
		request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		return fmt.Errorf(engineRequestErrorTemplateConstant, operation, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode >= http.StatusBadRequest {
		engineMessage := engineMessageDocument{}
		messageContent, _ := io.ReadAll(response.Body)
		_ = json.Unmarshal(messageContent, &engineMessage)
		return EngineError{Operation: operation, StatusCode: response.StatusCode, Message: engineMessage.Message}
	}

	if responseTarget != nil {
		decodeError := json.NewDecoder(response.Body).Decode(responseTarget)
		if decodeError != nil {
			return fmt.Errorf(engineDecodeErrorTemplateConstant, operation, decodeError)
		}
		return nil
	}

	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}
