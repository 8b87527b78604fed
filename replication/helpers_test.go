package replication

import (
	"context"

	"github.com/warehouselabs/replica-gateway/warehouse"
)

type fakeClient struct {
	queryFn func(ctx context.Context, stmt string) ([]warehouse.Row, error)
	execFn  func(ctx context.Context, stmt string) error
}

var _ warehouse.Client = (*fakeClient)(nil)

func (c *fakeClient) Query(ctx context.Context, stmt string) ([]warehouse.Row, error) {
	if c.queryFn == nil {
		return nil, nil
	}
	return c.queryFn(ctx, stmt)
}

func (c *fakeClient) Exec(ctx context.Context, stmt string) error {
	if c.execFn == nil {
		return nil
	}
	return c.execFn(ctx, stmt)
}

func (c *fakeClient) Close() error {
	return nil
}

type stubReader struct {
	fn func(ctx context.Context, id DatasetID) (ObservedTopology, error)
}

var _ TopologyReader = (*stubReader)(nil)

func (r *stubReader) ReadTopology(ctx context.Context, id DatasetID) (ObservedTopology, error) {
	return r.fn(ctx, id)
}

type stubApplier struct {
	fn func(ctx context.Context, id DatasetID, plan Plan) error
}

var _ PlanApplier = (*stubApplier)(nil)

func (a *stubApplier) Apply(ctx context.Context, id DatasetID, plan Plan) error {
	if a.fn == nil {
		return nil
	}
	return a.fn(ctx, id, plan)
}

func mustDescriptor(replicas []string, primary string) TopologyDescriptor {
	desc, err := NewTopologyDescriptor(replicas, primary)
	if err != nil {
		panic(err)
	}
	return desc
}
