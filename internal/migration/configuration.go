package migration

import "strings"

const (
	defaultArtifactDirectoryConstant = "."
)

// ServerConfiguration captures the location and login of one repository
// server. Each target entry carries its own credential pair.
type ServerConfiguration struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CommandConfiguration captures persisted configuration for migration
// commands.
type CommandConfiguration struct {
	Source            ServerConfiguration   `mapstructure:"source"`
	Targets           []ServerConfiguration `mapstructure:"targets"`
	ArtifactDirectory string                `mapstructure:"artifact_directory"`
	InferenceProfile  string                `mapstructure:"inference_profile"`
	BackupPrefix      string                `mapstructure:"backup_prefix"`
	FleetServers      []ServerConfiguration `mapstructure:"fleet_servers"`
	FleetConcurrency  int                   `mapstructure:"fleet_concurrency"`
}

// DefaultCommandConfiguration returns baseline configuration values for
// migration commands.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		ArtifactDirectory: defaultArtifactDirectoryConstant,
		FleetConcurrency:  defaultFleetConcurrencyConstant,
	}
}

// Sanitize trims configured values and removes entries without a server URL.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.Source = configuration.Source.sanitize()
	sanitized.Targets = sanitizeServerConfigurations(configuration.Targets)
	sanitized.FleetServers = sanitizeServerConfigurations(configuration.FleetServers)
	sanitized.ArtifactDirectory = strings.TrimSpace(configuration.ArtifactDirectory)
	if len(sanitized.ArtifactDirectory) == 0 {
		sanitized.ArtifactDirectory = defaultArtifactDirectoryConstant
	}
	sanitized.InferenceProfile = strings.TrimSpace(configuration.InferenceProfile)
	sanitized.BackupPrefix = strings.TrimSpace(configuration.BackupPrefix)
	if sanitized.FleetConcurrency <= 0 {
		sanitized.FleetConcurrency = defaultFleetConcurrencyConstant
	}
	return sanitized
}

func (configuration ServerConfiguration) sanitize() ServerConfiguration {
	sanitized := configuration
	sanitized.URL = strings.TrimSpace(configuration.URL)
	sanitized.Username = strings.TrimSpace(configuration.Username)
	sanitized.Password = configuration.Password
	return sanitized
}

func sanitizeServerConfigurations(configurations []ServerConfiguration) []ServerConfiguration {
	sanitized := make([]ServerConfiguration, 0, len(configurations))
	for _, configuration := range configurations {
		candidate := configuration.sanitize()
		if len(candidate.URL) == 0 {
			continue
		}
		sanitized = append(sanitized, candidate)
	}
	if len(sanitized) == 0 {
		return nil
	}
	return sanitized
}

// Credentials converts the configuration entry into orchestrator server
// credentials.
func (configuration ServerConfiguration) Credentials() ServerCredentials {
	return ServerCredentials{
		URL:      configuration.URL,
		Username: configuration.Username,
		Password: configuration.Password,
	}
}
