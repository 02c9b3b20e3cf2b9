package graphdb

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

const (
	basicAuthorizationTemplateConstant = "Basic %s"
	basicCredentialsTemplateConstant   = "%s:%s"
)

// ServerConnection describes one authenticated HTTP channel to a graph-database server.
// Blank credentials denote anonymous access and produce no authorization header.
type ServerConnection struct {
	BaseURL  string
	Username string
	Password string

	authorizationHeaderOnce  sync.Once
	authorizationHeaderValue string
}

// NewServerConnection constructs a connection for the provided endpoint and credentials.
func NewServerConnection(baseURL string, username string, password string) *ServerConnection {
	return &ServerConnection{
		BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Username: username,
		Password: password,
	}
}

// AuthorizationHeader returns the cached HTTP Basic authorization header value.
// The header is computed on first use; anonymous connections return an empty string.
func (connection *ServerConnection) AuthorizationHeader() string {
	connection.authorizationHeaderOnce.Do(func() {
		if len(connection.Username) == 0 && len(connection.Password) == 0 {
			return
		}
		credentials := fmt.Sprintf(basicCredentialsTemplateConstant, connection.Username, connection.Password)
		encodedCredentials := base64.StdEncoding.EncodeToString([]byte(credentials))
		connection.authorizationHeaderValue = fmt.Sprintf(basicAuthorizationTemplateConstant, encodedCredentials)
	})
	return connection.authorizationHeaderValue
}

// Anonymous reports whether the connection carries no credentials.
func (connection *ServerConnection) Anonymous() bool {
	return len(connection.Username) == 0 && len(connection.Password) == 0
}
