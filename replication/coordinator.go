package replication

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ReconcileOutcome describes how a reconciliation request was satisfied.
type ReconcileOutcome string

const (
	// OutcomeConverged means a non-empty plan was applied to the warehouse.
	OutcomeConverged ReconcileOutcome = "converged"
	// OutcomeNoop means the observed topology already matched the desired one.
	OutcomeNoop ReconcileOutcome = "noop"
	// OutcomeCached means the session already resolved this dataset and the
	// warehouse was not consulted.
	OutcomeCached ReconcileOutcome = "cached"
)

// ReconcileResult is the resolved topology plus how it was arrived at.
type ReconcileResult struct {
	Topology TopologyDescriptor
	Outcome  ReconcileOutcome
	Applied  Plan
}

type CoordinatorOptions struct {
	Logger   *zap.Logger
	Reader   TopologyReader
	Executor PlanApplier
	Store    *SessionStore
}

// Coordinator serializes reconciliation per dataset. Exactly one caller at a
// time may reconcile a given dataset; concurrent callers for the same
// dataset block until the owner finishes and then reuse its result. The
// first successful configuration wins for the rest of the session. A failed
// attempt releases the dataset so a later caller can retry from scratch.
type Coordinator struct {
	logger   *zap.Logger
	reader   TopologyReader
	executor PlanApplier
	store    *SessionStore

	claimsLock sync.Mutex
	claims     map[DatasetID]*datasetClaim
}

type datasetClaim struct {
	done chan struct{}
}

func NewCoordinator(opts *CoordinatorOptions) *Coordinator {
	return &Coordinator{
		logger:   opts.Logger,
		reader:   opts.Reader,
		executor: opts.Executor,
		store:    opts.Store,
		claims:   make(map[DatasetID]*datasetClaim),
	}
}

// Store exposes the session store backing this coordinator.
func (c *Coordinator) Store() *SessionStore {
	return c.store
}

// EnsureReplication converges the dataset onto the desired topology. It
// validates the descriptor before touching the warehouse, consults the
// session store, and otherwise claims the dataset, reads the observed
// topology, plans, and applies. Blocked callers honor ctx cancellation
// without disturbing the owner's reconciliation.
func (c *Coordinator) EnsureReplication(ctx context.Context, id DatasetID, desired TopologyDescriptor) (*ReconcileResult, error) {
	if !id.IsValid() {
		return nil, &InvalidConfigurationError{Reason: "dataset identity requires project and dataset"}
	}
	if err := desired.Validate(); err != nil {
		return nil, err
	}

	for {
		if entry, ok := c.store.Lookup(id); ok {
			c.logger.Debug("dataset already resolved this session",
				zap.Stringer("dataset", id))
			return &ReconcileResult{
				Topology: entry.Topology,
				Outcome:  OutcomeCached,
			}, nil
		}

		c.claimsLock.Lock()
		claim, claimed := c.claims[id]
		if !claimed {
			claim = &datasetClaim{done: make(chan struct{})}
			c.claims[id] = claim
			c.claimsLock.Unlock()
			return c.reconcileClaimed(ctx, id, desired, claim)
		}
		c.claimsLock.Unlock()

		select {
		case <-claim.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Coordinator) reconcileClaimed(ctx context.Context, id DatasetID, desired TopologyDescriptor, claim *datasetClaim) (*ReconcileResult, error) {
	defer func() {
		c.claimsLock.Lock()
		delete(c.claims, id)
		c.claimsLock.Unlock()
		close(claim.done)
	}()

	result, err := c.reconcile(ctx, id, desired)
	if err != nil {
		c.logger.Warn("reconciliation failed, dataset released for retry",
			zap.Stringer("dataset", id),
			zap.Error(err))
		return nil, err
	}

	c.store.Store(id, result.Topology)
	return result, nil
}

func (c *Coordinator) reconcile(ctx context.Context, id DatasetID, desired TopologyDescriptor) (*ReconcileResult, error) {
	current, err := c.reader.ReadTopology(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrCatalogUnavailable) {
			return nil, err
		}
		current = ObservedTopology{}
	}

	plan := CalcPlan(desired, current)
	if plan.IsEmpty() {
		c.logger.Debug("replication already converged",
			zap.Stringer("dataset", id))
		return &ReconcileResult{Topology: desired, Outcome: OutcomeNoop}, nil
	}

	err = c.executor.Apply(ctx, id, plan)
	if err != nil {
		return nil, err
	}

	c.logger.Info("replication topology converged",
		zap.Stringer("dataset", id),
		zap.Int("numOperations", len(plan)))

	return &ReconcileResult{
		Topology: desired,
		Outcome:  OutcomeConverged,
		Applied:  plan,
	}, nil
}
