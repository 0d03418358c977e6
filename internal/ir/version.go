package ir

// Version constants for the record schema and the manager.
const (
	// SchemaVersion is the record schema version persisted by stores.
	SchemaVersion = "1"

	// ManagerVersion is the temporal lifecycle manager version.
	ManagerVersion = "0.1.0"
)
