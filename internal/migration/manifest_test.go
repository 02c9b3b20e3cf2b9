package migration_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ontofleet/graphport/internal/migration"
)

func TestManifestFileName(testInstance *testing.T) {
	testInstance.Parallel()

	testCases := []struct {
		name             string
		prefix           string
		expectedFileName string
	}{
		{name: "prefixed", prefix: "canto", expectedFileName: "canto-manifest.yaml"},
		{name: "blank_prefix", prefix: "", expectedFileName: "manifest.yaml"},
		{name: "whitespace_prefix", prefix: "  ", expectedFileName: "manifest.yaml"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtestInstance *testing.T) {
			require.Equal(subtestInstance, testCase.expectedFileName, migration.ManifestFileName(testCase.prefix))
		})
	}
}

func TestBackupManifestRoundTrip(testInstance *testing.T) {
	testInstance.Parallel()

	manifestDirectory := testInstance.TempDir()
	manifest := migration.BackupManifest{
		Prefix:    "canto",
		SourceURL: "http://source.internal:7200",
		CreatedAt: time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC),
		Repositories: []migration.BackupManifestEntry{
			{RepositoryID: "canto-alpha", ConfigFile: "/tmp/a.conf.ttl", DataFile: "/tmp/a.brf"},
			{RepositoryID: "canto-broken", Error: "export refused"},
		},
	}

	manifestPath, writeError := migration.WriteBackupManifest(manifestDirectory, manifest)
	require.NoError(testInstance, writeError)
	require.Equal(testInstance, filepath.Join(manifestDirectory, "canto-manifest.yaml"), manifestPath)

	reloadedManifest, readError := migration.ReadBackupManifest(manifestPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, manifest, reloadedManifest)
}

func TestReadBackupManifestMissingFile(testInstance *testing.T) {
	testInstance.Parallel()

	_, readError := migration.ReadBackupManifest(filepath.Join(testInstance.TempDir(), "absent.yaml"))
	require.Error(testInstance, readError)
}
