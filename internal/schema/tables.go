package schema

// Table names served by the backend.
const (
	TableGoals         = "goals"
	TableSubgoals      = "subgoals"
	TableFolders       = "folders"
	TableNotifications = "notifications"
	TableShares        = "goal_shares"
	TableMeta          = "app_meta"
)

// PublicSchema is the schema name reported in change events.
const PublicSchema = "public"

// Meta is the single always-readable row used for health probes.
type Meta struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SchemaVersion string `json:"schema_version"`
}

// CurrentSchemaVersion is the schema version written by this build of the backend.
const CurrentSchemaVersion = "v1.2.0"
