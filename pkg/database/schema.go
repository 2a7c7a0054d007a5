package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// SchemaValidator verifies the migrated schema before the service starts
// ARCHITECTURAL DISCOVERY: Separate validation component enables deployment
// verification without coupling to the migration tool
type SchemaValidator struct {
	db      *sql.DB
	dialect string
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB, dialect string) *SchemaValidator {
	return &SchemaValidator{db: db, dialect: dialect}
}

var requiredTables = map[string]string{
	"profiles":         "Profile storage",
	"credentials":      "Password hashes",
	"classes":          "Class sessions",
	"enrollments":      "Class enrollments",
	"messages":         "Chat messages",
	"revoked_tokens":   "Signed-out tokens",
	"goose_db_version": "Migration tracking",
}

var requiredIndexes = map[string]string{
	"idx_classes_mentor_start":  "Mentor class listing",
	"idx_classes_status_start":  "Upcoming class listing",
	"idx_enrollments_class":     "Participant listing",
	"idx_messages_class_time":   "Message history retrieval",
	"idx_revoked_tokens_expiry": "Revocation purge",
}

// Validate runs every check
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range sortedKeys(requiredTables) {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, requiredTables[table], err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, requiredTables[table])
		}
	}
	return nil
}

// ValidateIndexes verifies that all performance indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	for _, index := range sortedKeys(requiredIndexes) {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, requiredIndexes[index], err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, requiredIndexes[index])
		}
	}
	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if v.dialect == DriverPostgres {
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
	}
	return v.count(query, tableName)
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?"
	if v.dialect == DriverPostgres {
		query = "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1"
	}
	return v.count(query, indexName)
}

func (v *SchemaValidator) count(query, name string) (bool, error) {
	var count int
	if err := v.db.QueryRow(query, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
