package lifecycle

import "strings"

const (
	defaultImageConstant         = "ontotext/graphdb:10.6.3"
	defaultContainerNameConstant = "graphport-graphdb"
	defaultNetworkNameConstant   = "graphport-net"
	defaultVolumeNameConstant    = "graphport-data"
	defaultVolumeTargetConstant  = "/opt/graphdb/home"
	defaultPortConstant          = "7200"
	defaultHealthURLConstant     = "http://localhost:7200/protocol"
)

// CommandConfiguration captures persisted configuration for instance
// commands.
type CommandConfiguration struct {
	DockerHost    string   `mapstructure:"docker_host"`
	Image         string   `mapstructure:"image"`
	ContainerName string   `mapstructure:"container_name"`
	NetworkName   string   `mapstructure:"network"`
	VolumeName    string   `mapstructure:"volume"`
	VolumeTarget  string   `mapstructure:"volume_target"`
	HostPort      string   `mapstructure:"host_port"`
	ContainerPort string   `mapstructure:"container_port"`
	HealthURL     string   `mapstructure:"health_url"`
	Environment   []string `mapstructure:"environment"`
}

// DefaultCommandConfiguration returns baseline configuration values for
// instance commands.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Image:         defaultImageConstant,
		ContainerName: defaultContainerNameConstant,
		NetworkName:   defaultNetworkNameConstant,
		VolumeName:    defaultVolumeNameConstant,
		VolumeTarget:  defaultVolumeTargetConstant,
		HostPort:      defaultPortConstant,
		ContainerPort: defaultPortConstant,
		HealthURL:     defaultHealthURLConstant,
	}
}

// Sanitize trims configured values and restores defaults for blank entries.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration
	sanitized.DockerHost = strings.TrimSpace(configuration.DockerHost)
	sanitized.Image = orDefault(configuration.Image, defaults.Image)
	sanitized.ContainerName = orDefault(configuration.ContainerName, defaults.ContainerName)
	sanitized.NetworkName = orDefault(configuration.NetworkName, defaults.NetworkName)
	sanitized.VolumeName = orDefault(configuration.VolumeName, defaults.VolumeName)
	sanitized.VolumeTarget = orDefault(configuration.VolumeTarget, defaults.VolumeTarget)
	sanitized.HostPort = orDefault(configuration.HostPort, defaults.HostPort)
	sanitized.ContainerPort = orDefault(configuration.ContainerPort, defaults.ContainerPort)
	sanitized.HealthURL = orDefault(configuration.HealthURL, defaults.HealthURL)
	return sanitized
}

// InstanceSpecification converts the configuration into a manager
// specification.
func (configuration CommandConfiguration) InstanceSpecification() InstanceSpecification {
	return InstanceSpecification{
		ContainerName: configuration.ContainerName,
		Image:         configuration.Image,
		NetworkName:   configuration.NetworkName,
		VolumeName:    configuration.VolumeName,
		VolumeTarget:  configuration.VolumeTarget,
		HostPort:      configuration.HostPort,
		ContainerPort: configuration.ContainerPort,
		HealthURL:     configuration.HealthURL,
		Environment:   configuration.Environment,
	}
}

func orDefault(candidate string, defaultValue string) string {
	trimmedCandidate := strings.TrimSpace(candidate)
	if len(trimmedCandidate) == 0 {
		return defaultValue
	}
	return trimmedCandidate
}
