package migration

import "github.com/ontofleet/graphport/internal/graphdb"

// GraphMigrationState identifies the terminal step a graph transfer reached.
type GraphMigrationState string

// Graph transfer states. Every state is terminal once reported.
const (
	GraphStateExported   GraphMigrationState = "EXPORTED"
	GraphStateImported   GraphMigrationState = "IMPORTED"
	GraphStateVerified   GraphMigrationState = "VERIFIED"
	GraphStateReimported GraphMigrationState = "REIMPORTED"
)

// RepositoryMigrationResult captures the outcome of moving one repository to
// one target server.
type RepositoryMigrationResult struct {
	RepositoryID string
	TargetURL    string
	StatusCode   int
	Err          error
}

// GraphMigrationResult captures the outcome of moving one named graph to one
// target server. Retried reports whether the single re-import ran after the
// verification listing missed the graph.
type GraphMigrationResult struct {
	GraphURI   string
	TargetURL  string
	State      GraphMigrationState
	StatusCode int
	Retried    bool
	Err        error
}

// StatementCountResult compares the statement totals of one repository on
// the source server and one target server.
type StatementCountResult struct {
	RepositoryID string
	TargetURL    string
	SourceCount  int64
	TargetCount  int64
	Match        bool
	Err          error
}

// FleetEntry reports the repository listing of one server during fleet
// enumeration.
type FleetEntry struct {
	ServerURL    string
	Repositories []graphdb.RepositoryDescriptor
	Err          error
}
