package models

// ModelsToAutoMigrate lists the tables GORM's AutoMigrate manages
// directly. The core version-store tables (commits, branches,
// resource_versions, proposals, outbox) are owned by the embedded SQL
// migrations in internal/migrate instead. The bookkeeping tables listed
// here (branch_states, version_deltas) are also created by that core
// migration; AutoMigrate reconciles them with the Go structs.
//
// See internal/migrate/migrations/000001_core_schema.up.sql for the
// authoritative core schema.
func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&BranchStateRow{},
		&VersionDelta{},
	}
}
