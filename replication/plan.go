package replication

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// OperationKind enumerates the mutating statements the engine can issue
// against a dataset's replication topology.
type OperationKind string

const (
	OpAddReplica    OperationKind = "add"
	OpRemoveReplica OperationKind = "remove"
	OpSetPrimary    OperationKind = "set_primary"
)

// Operation is a single step of a replication plan.
type Operation struct {
	Kind     OperationKind   `json:"kind"`
	Location ReplicaLocation `json:"location"`
}

func (o Operation) String() string {
	return fmt.Sprintf("%s(%s)", o.Kind, o.Location)
}

// Plan is an ordered list of operations that converges an observed topology
// onto a desired one. The order is fixed: replica additions first, then the
// primary change, then replica removals. That guarantees a new primary is
// present before it is promoted and a demoted primary is never dropped while
// it is still primary.
type Plan []Operation

func (p Plan) IsEmpty() bool {
	return len(p) == 0
}

// Locations returns the locations touched by operations of the given kind,
// in plan order.
func (p Plan) Locations(kind OperationKind) []ReplicaLocation {
	var locs []ReplicaLocation
	for _, op := range p {
		if op.Kind == kind {
			locs = append(locs, op.Location)
		}
	}
	return locs
}

// CalcPlan computes the minimal operation sequence that takes current to
// desired. Replicas present on both sides are left untouched. A desired
// topology with no primary preference keeps whatever primary the warehouse
// reports. Calling CalcPlan with the resulting state yields an empty plan.
func CalcPlan(desired TopologyDescriptor, current ObservedTopology) Plan {
	var plan Plan

	var toAdd []ReplicaLocation
	for _, loc := range desired.Replicas {
		if !current.HasReplica(loc) {
			toAdd = append(toAdd, loc)
		}
	}
	slices.Sort(toAdd)
	for _, loc := range toAdd {
		plan = append(plan, Operation{Kind: OpAddReplica, Location: loc})
	}

	if desired.Primary != "" && desired.Primary != current.Primary {
		plan = append(plan, Operation{Kind: OpSetPrimary, Location: desired.Primary})
	}

	var toRemove []ReplicaLocation
	for _, loc := range current.Replicas {
		if !desired.HasReplica(loc) {
			toRemove = append(toRemove, loc)
		}
	}
	slices.Sort(toRemove)
	for _, loc := range toRemove {
		plan = append(plan, Operation{Kind: OpRemoveReplica, Location: loc})
	}

	return plan
}
