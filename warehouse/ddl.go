package warehouse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Statement builders. All DDL and catalog-query text the engine sends to a
// warehouse is produced here so the grammar lives in exactly one place; the
// emulator parses the same shapes these functions emit.

const msPerDay = 86400000.0

// Canonical dataset option names as they appear in the catalog's
// SCHEMATA_OPTIONS view and in OPTIONS(...) clauses.
const (
	OptionDescription            = "description"
	OptionLabels                 = "labels"
	OptionDefaultTableExpiration = "default_table_expiration_days"
	OptionPartitionExpiration    = "default_partition_expiration_days"
	OptionDefaultReplica         = "default_replica"
)

// quoteIdent backtick-quotes an identifier path segment.
func quoteIdent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "`", "\\`")
	return "`" + s + "`"
}

// quoteString renders a double-quoted string literal.
func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// quoteStringSingle renders a single-quoted string literal for WHERE clauses.
func quoteStringSingle(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return `'` + s + `'`
}

func datasetPath(project, dataset string) string {
	return quoteIdent(project + "." + dataset)
}

// AddReplicaStmt adds a replica of the dataset in the given location.
func AddReplicaStmt(project, dataset, location string) string {
	return fmt.Sprintf("ALTER SCHEMA %s ADD REPLICA %s",
		datasetPath(project, dataset), quoteIdent(location))
}

// DropReplicaStmt removes the dataset replica in the given location.
func DropReplicaStmt(project, dataset, location string) string {
	return fmt.Sprintf("ALTER SCHEMA %s DROP REPLICA %s",
		datasetPath(project, dataset), quoteIdent(location))
}

// SetPrimaryStmt promotes the replica in the given location to primary.
func SetPrimaryStmt(project, dataset, location string) string {
	return fmt.Sprintf("ALTER SCHEMA %s SET OPTIONS (default_replica = %s)",
		datasetPath(project, dataset), quoteIdent(location))
}

// ReplicaCatalogQuery reads the dataset's replica rows from the catalog.
// Rows have columns (replica_location STRING, is_primary_replica BOOL).
func ReplicaCatalogQuery(project, dataset string) string {
	return fmt.Sprintf(
		"SELECT replica_location, is_primary_replica FROM %s.INFORMATION_SCHEMA.SCHEMATA_REPLICAS WHERE schema_name = %s",
		datasetPath(project, dataset), quoteStringSingle(dataset))
}

// DatasetExistsQuery returns a row per matching dataset; zero rows means the
// dataset does not exist.
func DatasetExistsQuery(project, dataset string) string {
	return fmt.Sprintf(
		"SELECT schema_name FROM %s.INFORMATION_SCHEMA.SCHEMATA WHERE schema_name = %s",
		quoteIdent(project), quoteStringSingle(dataset))
}

// DatasetOptionsQuery reads the dataset's option rows from the catalog.
// Rows have columns (option_name STRING, option_value STRING) where
// option_value is a SQL literal.
func DatasetOptionsQuery(project, dataset string) string {
	return fmt.Sprintf(
		"SELECT option_name, option_value FROM %s.INFORMATION_SCHEMA.SCHEMATA_OPTIONS WHERE schema_name = %s",
		quoteIdent(project), quoteStringSingle(dataset))
}

// DatasetOptions carries the configurable properties of a dataset. Zero
// values mean "not configured" and are omitted from generated DDL.
type DatasetOptions struct {
	Location                     string
	Description                  string
	Labels                       map[string]string
	DefaultTableExpirationMS     int64
	DefaultPartitionExpirationMS int64
}

// optionLiteral renders the OPTIONS(...) assignment literal for one option
// name, or "" when the option is not configured.
func (o DatasetOptions) optionLiteral(name string) string {
	switch name {
	case OptionDescription:
		if o.Description == "" {
			return ""
		}
		return quoteString(o.Description)
	case OptionLabels:
		if o.Labels == nil {
			return ""
		}
		return labelsLiteral(o.Labels)
	case OptionDefaultTableExpiration:
		if o.DefaultTableExpirationMS <= 0 {
			return ""
		}
		return daysLiteral(o.DefaultTableExpirationMS)
	case OptionPartitionExpiration:
		if o.DefaultPartitionExpirationMS <= 0 {
			return ""
		}
		return daysLiteral(o.DefaultPartitionExpirationMS)
	}
	return ""
}

// alterableOptions is the set of options that can change after creation,
// in the order they are rendered. Location is create-only.
var alterableOptions = []string{
	OptionDescription,
	OptionLabels,
	OptionDefaultTableExpiration,
	OptionPartitionExpiration,
}

// CreateDatasetStmt creates the dataset if absent, applying any configured
// options.
func CreateDatasetStmt(project, dataset string, opts DatasetOptions) string {
	var assigns []string
	if opts.Location != "" {
		assigns = append(assigns, "location = "+quoteString(opts.Location))
	}
	for _, name := range alterableOptions {
		if lit := opts.optionLiteral(name); lit != "" {
			assigns = append(assigns, name+" = "+lit)
		}
	}

	stmt := "CREATE SCHEMA IF NOT EXISTS " + datasetPath(project, dataset)
	if len(assigns) > 0 {
		stmt += " OPTIONS (" + strings.Join(assigns, ", ") + ")"
	}
	return stmt
}

// AlterDatasetOptionsStmt updates only the named options, which must be
// configured in opts and members of alterableOptions.
func AlterDatasetOptionsStmt(project, dataset string, opts DatasetOptions, names []string) string {
	var assigns []string
	for _, name := range alterableOptions {
		if !contains(names, name) {
			continue
		}
		if lit := opts.optionLiteral(name); lit != "" {
			assigns = append(assigns, name+" = "+lit)
		}
	}
	return fmt.Sprintf("ALTER SCHEMA %s SET OPTIONS (%s)",
		datasetPath(project, dataset), strings.Join(assigns, ", "))
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// labelsLiteral renders a label map as the catalog's array-of-struct
// literal, sorted by key for determinism.
func labelsLiteral(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("STRUCT(%s, %s)", quoteString(k), quoteString(labels[k])))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// daysLiteral converts a millisecond expiration to the fractional-days float
// literal the catalog uses. Full float precision is kept so the value
// round-trips through ParseDatasetOptionRows without drifting.
func daysLiteral(ms int64) string {
	return strconv.FormatFloat(float64(ms)/msPerDay, 'g', -1, 64)
}
