// Package emulator provides an in-memory warehouse backed by SQLite. It
// accepts the exact statement shapes the warehouse package generates and
// reproduces the catalog views and error codes the engine depends on, so
// gateway and provisioning flows can run end-to-end without a real
// BigQuery project.
package emulator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schemaDDL = `
CREATE TABLE datasets (
	project TEXT NOT NULL,
	dataset TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	labels TEXT NOT NULL DEFAULT '{}',
	table_expiration_ms INTEGER NOT NULL DEFAULT 0,
	partition_expiration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project, dataset)
);
CREATE TABLE schemata_replicas (
	project TEXT NOT NULL,
	dataset TEXT NOT NULL,
	location TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (project, dataset, location)
);
`

var (
	reAddReplica = regexp.MustCompile(
		"^ALTER SCHEMA `([^.`]+)\\.([^.`]+)` ADD REPLICA `([^`]+)`$")
	reDropReplica = regexp.MustCompile(
		"^ALTER SCHEMA `([^.`]+)\\.([^.`]+)` DROP REPLICA `([^`]+)`$")
	reSetOptions = regexp.MustCompile(
		"^ALTER SCHEMA `([^.`]+)\\.([^.`]+)` SET OPTIONS \\((.+)\\)$")
	reCreateSchema = regexp.MustCompile(
		"^CREATE SCHEMA IF NOT EXISTS `([^.`]+)\\.([^.`]+)`(?: OPTIONS \\((.+)\\))?$")

	reReplicaCatalog = regexp.MustCompile(
		"^SELECT replica_location, is_primary_replica FROM `([^.`]+)\\.([^.`]+)`\\.INFORMATION_SCHEMA\\.SCHEMATA_REPLICAS WHERE schema_name = '((?:[^'\\\\]|\\\\.)*)'$")
	reSchemata = regexp.MustCompile(
		"^SELECT schema_name FROM `([^`]+)`\\.INFORMATION_SCHEMA\\.SCHEMATA WHERE schema_name = '((?:[^'\\\\]|\\\\.)*)'$")
	reSchemataOptions = regexp.MustCompile(
		"^SELECT option_name, option_value FROM `([^`]+)`\\.INFORMATION_SCHEMA\\.SCHEMATA_OPTIONS WHERE schema_name = '((?:[^'\\\\]|\\\\.)*)'$")
)

type Emulator struct {
	logger *zap.Logger

	lock sync.Mutex
	db   *sql.DB
}

var _ warehouse.Client = (*Emulator)(nil)

func New(logger *zap.Logger) (*Emulator, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}

	// The store is in-memory, so every connection would see its own empty
	// database; pin everything to a single connection.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schemaDDL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
	}

	return &Emulator{
		logger: logger,
		db:     db,
	}, nil
}

func (e *Emulator) Close() error {
	return e.db.Close()
}

func (e *Emulator) Exec(ctx context.Context, stmt string) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.logger.Debug("emulator exec", zap.String("statement", stmt))

	if m := reAddReplica.FindStringSubmatch(stmt); m != nil {
		return e.addReplica(ctx, m[1], m[2], m[3])
	}
	if m := reDropReplica.FindStringSubmatch(stmt); m != nil {
		return e.dropReplica(ctx, m[1], m[2], m[3])
	}
	if m := reSetOptions.FindStringSubmatch(stmt); m != nil {
		return e.alterOptions(ctx, m[1], m[2], m[3])
	}
	if m := reCreateSchema.FindStringSubmatch(stmt); m != nil {
		return e.createDataset(ctx, m[1], m[2], m[3])
	}

	return warehouse.NewStatementError(warehouse.CodeInvalidArgument,
		"unrecognized statement: "+stmt, nil)
}

func (e *Emulator) Query(ctx context.Context, stmt string) ([]warehouse.Row, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.logger.Debug("emulator query", zap.String("statement", stmt))

	if m := reReplicaCatalog.FindStringSubmatch(stmt); m != nil {
		return e.queryReplicas(ctx, m[1], m[2])
	}
	if m := reSchemata.FindStringSubmatch(stmt); m != nil {
		return e.querySchemata(ctx, m[1], unescapeLiteral(m[2]))
	}
	if m := reSchemataOptions.FindStringSubmatch(stmt); m != nil {
		return e.queryOptions(ctx, m[1], unescapeLiteral(m[2]))
	}

	return nil, warehouse.NewStatementError(warehouse.CodeInvalidArgument,
		"unrecognized query: "+stmt, nil)
}

func (e *Emulator) datasetExists(ctx context.Context, project, dataset string) (bool, error) {
	var one int
	err := e.db.QueryRowContext(ctx,
		"SELECT 1 FROM datasets WHERE project = ? AND dataset = ?",
		project, dataset).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, internalError(err)
	}
	return true, nil
}

func (e *Emulator) requireDataset(ctx context.Context, project, dataset string) error {
	exists, err := e.datasetExists(ctx, project, dataset)
	if err != nil {
		return err
	}
	if !exists {
		return warehouse.NewStatementError(warehouse.CodeNotFound,
			fmt.Sprintf("Not found: Dataset %s:%s", project, dataset), nil)
	}
	return nil
}

func (e *Emulator) createDataset(ctx context.Context, project, dataset, optionsExpr string) error {
	exists, err := e.datasetExists(ctx, project, dataset)
	if err != nil {
		return err
	}
	if exists {
		// IF NOT EXISTS semantics.
		return nil
	}

	opts, names, err := parseOptionAssignments(optionsExpr)
	if err != nil {
		return err
	}
	if contains(names, warehouse.OptionDefaultReplica) {
		return warehouse.NewStatementError(warehouse.CodeInvalidArgument,
			"default_replica cannot be set at creation", nil)
	}

	labelsJSON, err := json.Marshal(opts.Labels)
	if err != nil {
		return internalError(err)
	}

	_, err = e.db.ExecContext(ctx,
		`INSERT INTO datasets (project, dataset, location, description, labels,
			table_expiration_ms, partition_expiration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project, dataset, opts.Location, opts.Description, string(labelsJSON),
		opts.DefaultTableExpirationMS, opts.DefaultPartitionExpirationMS)
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (e *Emulator) addReplica(ctx context.Context, project, dataset, location string) error {
	if err := e.requireDataset(ctx, project, dataset); err != nil {
		return err
	}

	var one int
	err := e.db.QueryRowContext(ctx,
		"SELECT 1 FROM schemata_replicas WHERE project = ? AND dataset = ? AND location = ?",
		project, dataset, location).Scan(&one)
	if err == nil {
		return warehouse.NewStatementError(warehouse.CodeAlreadyExists,
			fmt.Sprintf("Already exists: Replica %s of dataset %s:%s", location, project, dataset), nil)
	}
	if err != sql.ErrNoRows {
		return internalError(err)
	}

	_, err = e.db.ExecContext(ctx,
		"INSERT INTO schemata_replicas (project, dataset, location, is_primary) VALUES (?, ?, ?, 0)",
		project, dataset, location)
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (e *Emulator) dropReplica(ctx context.Context, project, dataset, location string) error {
	if err := e.requireDataset(ctx, project, dataset); err != nil {
		return err
	}

	var isPrimary int
	err := e.db.QueryRowContext(ctx,
		"SELECT is_primary FROM schemata_replicas WHERE project = ? AND dataset = ? AND location = ?",
		project, dataset, location).Scan(&isPrimary)
	if err == sql.ErrNoRows {
		return warehouse.NewStatementError(warehouse.CodeNotFound,
			fmt.Sprintf("Not found: Replica %s of dataset %s:%s", location, project, dataset), nil)
	}
	if err != nil {
		return internalError(err)
	}
	if isPrimary != 0 {
		return warehouse.NewStatementError(warehouse.CodeInvalidArgument,
			fmt.Sprintf("Invalid operation: Replica %s is the primary replica of dataset %s:%s and cannot be dropped", location, project, dataset), nil)
	}

	_, err = e.db.ExecContext(ctx,
		"DELETE FROM schemata_replicas WHERE project = ? AND dataset = ? AND location = ?",
		project, dataset, location)
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (e *Emulator) alterOptions(ctx context.Context, project, dataset, optionsExpr string) error {
	if err := e.requireDataset(ctx, project, dataset); err != nil {
		return err
	}

	opts, names, err := parseOptionAssignments(optionsExpr)
	if err != nil {
		return err
	}

	for _, name := range names {
		switch name {
		case warehouse.OptionDefaultReplica:
			if err := e.setPrimary(ctx, project, dataset, opts.primaryReplica); err != nil {
				return err
			}
		case warehouse.OptionDescription:
			_, err = e.db.ExecContext(ctx,
				"UPDATE datasets SET description = ? WHERE project = ? AND dataset = ?",
				opts.Description, project, dataset)
		case warehouse.OptionLabels:
			labelsJSON, jsonErr := json.Marshal(opts.Labels)
			if jsonErr != nil {
				return internalError(jsonErr)
			}
			_, err = e.db.ExecContext(ctx,
				"UPDATE datasets SET labels = ? WHERE project = ? AND dataset = ?",
				string(labelsJSON), project, dataset)
		case warehouse.OptionDefaultTableExpiration:
			_, err = e.db.ExecContext(ctx,
				"UPDATE datasets SET table_expiration_ms = ? WHERE project = ? AND dataset = ?",
				opts.DefaultTableExpirationMS, project, dataset)
		case warehouse.OptionPartitionExpiration:
			_, err = e.db.ExecContext(ctx,
				"UPDATE datasets SET partition_expiration_ms = ? WHERE project = ? AND dataset = ?",
				opts.DefaultPartitionExpirationMS, project, dataset)
		default:
			return warehouse.NewStatementError(warehouse.CodeInvalidArgument,
				"unsupported dataset option: "+name, nil)
		}
		if err != nil {
			return internalError(err)
		}
	}
	return nil
}

func (e *Emulator) setPrimary(ctx context.Context, project, dataset, location string) error {
	var one int
	err := e.db.QueryRowContext(ctx,
		"SELECT 1 FROM schemata_replicas WHERE project = ? AND dataset = ? AND location = ?",
		project, dataset, location).Scan(&one)
	if err == sql.ErrNoRows {
		return warehouse.NewStatementError(warehouse.CodeInvalidArgument,
			fmt.Sprintf("Invalid value: %s is not a replica of dataset %s:%s", location, project, dataset), nil)
	}
	if err != nil {
		return internalError(err)
	}

	_, err = e.db.ExecContext(ctx,
		"UPDATE schemata_replicas SET is_primary = CASE WHEN location = ? THEN 1 ELSE 0 END WHERE project = ? AND dataset = ?",
		location, project, dataset)
	if err != nil {
		return internalError(err)
	}
	return nil
}

func (e *Emulator) queryReplicas(ctx context.Context, project, dataset string) ([]warehouse.Row, error) {
	if err := e.requireDataset(ctx, project, dataset); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx,
		"SELECT location, is_primary FROM schemata_replicas WHERE project = ? AND dataset = ? ORDER BY location",
		project, dataset)
	if err != nil {
		return nil, internalError(err)
	}
	defer rows.Close()

	var result []warehouse.Row
	for rows.Next() {
		var location string
		var isPrimary int
		if err := rows.Scan(&location, &isPrimary); err != nil {
			return nil, internalError(err)
		}
		result = append(result, warehouse.Row{
			"replica_location":   location,
			"is_primary_replica": isPrimary != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, internalError(err)
	}
	return result, nil
}

func (e *Emulator) querySchemata(ctx context.Context, project, dataset string) ([]warehouse.Row, error) {
	exists, err := e.datasetExists(ctx, project, dataset)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return []warehouse.Row{{"schema_name": dataset}}, nil
}

func (e *Emulator) queryOptions(ctx context.Context, project, dataset string) ([]warehouse.Row, error) {
	var opts warehouse.DatasetOptions
	var labelsJSON string
	err := e.db.QueryRowContext(ctx,
		"SELECT location, description, labels, table_expiration_ms, partition_expiration_ms FROM datasets WHERE project = ? AND dataset = ?",
		project, dataset).Scan(&opts.Location, &opts.Description, &labelsJSON,
		&opts.DefaultTableExpirationMS, &opts.DefaultPartitionExpirationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, internalError(err)
	}

	if labelsJSON != "" && labelsJSON != "{}" {
		if err := json.Unmarshal([]byte(labelsJSON), &opts.Labels); err != nil {
			return nil, internalError(err)
		}
	}

	var result []warehouse.Row
	for _, optRow := range warehouse.RenderDatasetOptionRows(opts) {
		result = append(result, warehouse.Row{
			"option_name":  optRow.Name,
			"option_value": optRow.Value,
		})
	}
	return result, nil
}

func internalError(err error) error {
	return warehouse.NewStatementError(warehouse.CodeInternal, "emulator storage failure", err)
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func unescapeLiteral(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
