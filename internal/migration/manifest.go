package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	manifestFileNameSuffixConstant         = "manifest.yaml"
	manifestFileNameSeparatorConstant      = "-"
	manifestMarshalErrorTemplateConstant   = "unable to encode backup manifest: %w"
	manifestWriteErrorTemplateConstant     = "unable to write backup manifest %s: %w"
	manifestReadErrorTemplateConstant      = "unable to read backup manifest %s: %w"
	manifestUnmarshalErrorTemplateConstant = "unable to decode backup manifest %s: %w"
	manifestFilePermissionsConstant        = 0o600
)

// BackupManifest records which repositories a backup run exported and where
// the artifact files live.
type BackupManifest struct {
	Prefix       string                `yaml:"prefix,omitempty"`
	SourceURL    string                `yaml:"source_url"`
	CreatedAt    time.Time             `yaml:"created_at"`
	Repositories []BackupManifestEntry `yaml:"repositories"`
}

// BackupManifestEntry names the artifact files of one backed-up repository.
// Error is populated when the repository export failed and no artifacts
// exist.
type BackupManifestEntry struct {
	RepositoryID string `yaml:"repository_id"`
	ConfigFile   string `yaml:"config_file,omitempty"`
	DataFile     string `yaml:"data_file,omitempty"`
	Error        string `yaml:"error,omitempty"`
}

// ManifestFileName derives the manifest file name for a backup prefix. A
// blank prefix yields the bare manifest name.
func ManifestFileName(prefix string) string {
	trimmedPrefix := strings.TrimSpace(prefix)
	if len(trimmedPrefix) == 0 {
		return manifestFileNameSuffixConstant
	}
	return trimmedPrefix + manifestFileNameSeparatorConstant + manifestFileNameSuffixConstant
}

// WriteBackupManifest encodes the manifest as YAML into the directory and
// returns the full manifest path.
func WriteBackupManifest(directoryPath string, manifest BackupManifest) (string, error) {
	manifestContent, marshalError := yaml.Marshal(manifest)
	if marshalError != nil {
		return "", fmt.Errorf(manifestMarshalErrorTemplateConstant, marshalError)
	}

	manifestPath := filepath.Join(directoryPath, ManifestFileName(manifest.Prefix))
	writeError := os.WriteFile(manifestPath, manifestContent, manifestFilePermissionsConstant)
	if writeError != nil {
		return "", fmt.Errorf(manifestWriteErrorTemplateConstant, manifestPath, writeError)
	}

	return manifestPath, nil
}

// ReadBackupManifest decodes a manifest previously written by a backup run.
func ReadBackupManifest(manifestPath string) (BackupManifest, error) {
	manifestContent, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return BackupManifest{}, fmt.Errorf(manifestReadErrorTemplateConstant, manifestPath, readError)
	}

	manifest := BackupManifest{}
	unmarshalError := yaml.Unmarshal(manifestContent, &manifest)
	if unmarshalError != nil {
		return BackupManifest{}, fmt.Errorf(manifestUnmarshalErrorTemplateConstant, manifestPath, unmarshalError)
	}

	return manifest, nil
}
