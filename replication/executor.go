package replication

import (
	"context"

	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
)

// PlanApplier applies a replication plan to a dataset.
type PlanApplier interface {
	Apply(ctx context.Context, id DatasetID, plan Plan) error
}

type ExecutorOptions struct {
	Logger *zap.Logger
	Client warehouse.Client
}

// Executor runs replication plans statement by statement, in plan order.
// Re-running a partially applied plan is safe: add and remove operations
// absorb the warehouse telling them the work is already done.
type Executor struct {
	logger *zap.Logger
	client warehouse.Client
}

var _ PlanApplier = (*Executor)(nil)

func NewExecutor(opts *ExecutorOptions) *Executor {
	return &Executor{
		logger: opts.Logger,
		client: opts.Client,
	}
}

// Apply executes the plan against the dataset. It stops at the first
// non-absorbable failure and reports it as an ApplyError carrying the
// operations that had already succeeded.
func (e *Executor) Apply(ctx context.Context, id DatasetID, plan Plan) error {
	applied := make([]Operation, 0, len(plan))

	for _, op := range plan {
		err := e.applyOne(ctx, id, op)
		if err != nil {
			return &ApplyError{
				Identity: id,
				Applied:  applied,
				Failed:   op,
				Cause:    err,
			}
		}
		applied = append(applied, op)
	}

	return nil
}

func (e *Executor) applyOne(ctx context.Context, id DatasetID, op Operation) error {
	stmt, err := e.statementFor(id, op)
	if err != nil {
		return err
	}

	e.logger.Info("applying replication operation",
		zap.Stringer("dataset", id),
		zap.String("kind", string(op.Kind)),
		zap.String("location", string(op.Location)))

	err = e.client.Exec(ctx, stmt)
	if err != nil {
		if absorbed := e.absorbable(op, err); absorbed {
			e.logger.Debug("replication operation already satisfied",
				zap.Stringer("dataset", id),
				zap.String("kind", string(op.Kind)),
				zap.String("location", string(op.Location)),
				zap.Error(err))
			return nil
		}
		return err
	}

	return nil
}

func (e *Executor) statementFor(id DatasetID, op Operation) (string, error) {
	switch op.Kind {
	case OpAddReplica:
		return warehouse.AddReplicaStmt(id.Project, id.Dataset, string(op.Location)), nil
	case OpRemoveReplica:
		return warehouse.DropReplicaStmt(id.Project, id.Dataset, string(op.Location)), nil
	case OpSetPrimary:
		return warehouse.SetPrimaryStmt(id.Project, id.Dataset, string(op.Location)), nil
	}
	return "", &InvalidConfigurationError{Reason: "unknown operation kind " + string(op.Kind)}
}

// absorbable reports whether the failure means the operation's outcome is
// already in place: adding a replica that already exists or removing one
// that is already gone. SetPrimary failures are never absorbed.
func (e *Executor) absorbable(op Operation, err error) bool {
	switch op.Kind {
	case OpAddReplica:
		return warehouse.CodeOf(err) == warehouse.CodeAlreadyExists
	case OpRemoveReplica:
		return warehouse.CodeOf(err) == warehouse.CodeNotFound
	}
	return false
}
