package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	universalAuthLoginEndpointConstant = "%s/api/v1/auth/universal-auth/login"
	rawSecretsEndpointConstant         = "%s/api/v3/secrets/raw?%s"
	workspaceQueryParameterConstant    = "workspaceId"
	environmentQueryParameterConstant  = "environment"
	secretPathQueryParameterConstant   = "secretPath"
	defaultSecretPathConstant          = "/"
	jsonContentTypeConstant            = "application/json"
	contentTypeHeaderNameConstant      = "Content-Type"
	authorizationHeaderNameConstant    = "Authorization"
	bearerPrefixConstant               = "Bearer "
	baseURLRequiredMessageConstant     = "secrets service URL required"
	loginFailedTemplateConstant        = "universal-auth login failed with status %d"
	fetchFailedTemplateConstant        = "secret fetch failed with status %d"
	requestErrorTemplateConstant       = "secrets request failed: %w"
	decodeErrorTemplateConstant        = "unable to decode secrets response: %w"
	logMessageSecretsResolvedConstant  = "Secrets resolved"
	logFieldProjectConstant            = "project"
	logFieldEnvironmentConstant        = "environment"
	logFieldSecretCountConstant        = "secrets"
)

var errBaseURLRequired = errors.New(baseURLRequiredMessageConstant)

// MachineIdentity carries the universal-auth client credential pair.
type MachineIdentity struct {
	ClientID     string
	ClientSecret string
}

type loginRequestDocument struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type loginResponseDocument struct {
	AccessToken string `json:"accessToken"`
}

type rawSecretDocument struct {
	SecretKey   string `json:"secretKey"`
	SecretValue string `json:"secretValue"`
}

type rawSecretsResponseDocument struct {
	Secrets []rawSecretDocument `json:"secrets"`
}

// ResolverDependencies describes required collaborators for the resolver.
type ResolverDependencies struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
}

// Resolver fetches flat key/value secrets for one project and environment.
type Resolver struct {
	logger     *zap.Logger
	httpClient *http.Client
	baseURL    string
}

// NewResolver constructs a Resolver with the provided dependencies.
func NewResolver(dependencies ResolverDependencies) (*Resolver, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(dependencies.BaseURL), "/")
	if len(baseURL) == 0 {
		return nil, errBaseURLRequired
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := dependencies.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Resolver{logger: logger, httpClient: httpClient, baseURL: baseURL}, nil
}

// Login exchanges the machine identity for an access token.
func (resolver *Resolver) Login(executionContext context.Context, identity MachineIdentity) (string, error) {
	requestBody, marshalError := json.Marshal(loginRequestDocument{
		ClientID:     identity.ClientID,
		ClientSecret: identity.ClientSecret,
	})
	if marshalError != nil {
		return "", fmt.Errorf(requestErrorTemplateConstant, marshalError)
	}

	loginURL := fmt.Sprintf(universalAuthLoginEndpointConstant, resolver.baseURL)
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodPost, loginURL, bytes.NewReader(requestBody))
	if requestError != nil {
		return "", fmt.Errorf(requestErrorTemplateConstant, requestError)
	}
	request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)

	response, responseError := resolver.httpClient.Do(request)
	if responseError != nil {
		return "", fmt.Errorf(requestErrorTemplateConstant, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return "", fmt.Errorf(loginFailedTemplateConstant, response.StatusCode)
	}

	loginResponse := loginResponseDocument{}
	decodeError := json.NewDecoder(response.Body).Decode(&loginResponse)
	if decodeError != nil {
		return "", fmt.Errorf(decodeErrorTemplateConstant, decodeError)
	}
	return loginResponse.AccessToken, nil
}

// ResolveSecrets logs in with the machine identity and returns every raw
// secret of the project and environment as a flat key/value map.
func (resolver *Resolver) ResolveSecrets(executionContext context.Context, identity MachineIdentity, projectID string, environment string) (map[string]string, error) {
	accessToken, loginError := resolver.Login(executionContext, identity)
	if loginError != nil {
		return nil, loginError
	}

	queryParameters := url.Values{}
	queryParameters.Set(workspaceQueryParameterConstant, projectID)
	queryParameters.Set(environmentQueryParameterConstant, environment)
	queryParameters.Set(secretPathQueryParameterConstant, defaultSecretPathConstant)

	secretsURL := fmt.Sprintf(rawSecretsEndpointConstant, resolver.baseURL, queryParameters.Encode())
	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, secretsURL, nil)
	if requestError != nil {
		return nil, fmt.Errorf(requestErrorTemplateConstant, requestError)
	}
	request.Header.Set(authorizationHeaderNameConstant, bearerPrefixConstant+accessToken)

	response, responseError := resolver.httpClient.Do(request)
	if responseError != nil {
		return nil, fmt.Errorf(requestErrorTemplateConstant, responseError)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil, fmt.Errorf(fetchFailedTemplateConstant, response.StatusCode)
	}

	secretsResponse := rawSecretsResponseDocument{}
	decodeError := json.NewDecoder(response.Body).Decode(&secretsResponse)
	if decodeError != nil {
		return nil, fmt.Errorf(decodeErrorTemplateConstant, decodeError)
	}

	resolvedSecrets := make(map[string]string, len(secretsResponse.Secrets))
	for _, secret := range secretsResponse.Secrets {
		resolvedSecrets[secret.SecretKey] = secret.SecretValue
	}

	resolver.logger.Debug(
		logMessageSecretsResolvedConstant,
		zap.String(logFieldProjectConstant, projectID),
		zap.String(logFieldEnvironmentConstant, environment),
		zap.Int(logFieldSecretCountConstant, len(resolvedSecrets)),
	)
	return resolvedSecrets, nil
}
