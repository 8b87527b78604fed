package replication

import (
	"fmt"
	"strings"

	"github.com/warehouselabs/replica-gateway/utils/sliceutils"
	"golang.org/x/exp/slices"
)

// ReplicaLocation identifies a geographic placement for a dataset replica.
// Locations are case-insensitive; NormalizeLocation produces the canonical
// form used everywhere inside the engine.
type ReplicaLocation string

// NormalizeLocation trims surrounding whitespace and lower-cases a raw
// location string.
func NormalizeLocation(raw string) ReplicaLocation {
	return ReplicaLocation(strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeLocations normalizes a list of raw locations, dropping duplicates
// that collide after normalization and returning them in sorted order.
func NormalizeLocations(raw []string) []ReplicaLocation {
	locs := make([]ReplicaLocation, 0, len(raw))
	for _, r := range raw {
		locs = append(locs, NormalizeLocation(r))
	}
	locs = sliceutils.RemoveDuplicates(locs)
	slices.Sort(locs)
	return locs
}

// DatasetID names a dataset within a warehouse project. Both parts are kept
// verbatim; dataset identifiers are case-sensitive unlike replica locations.
type DatasetID struct {
	Project string
	Dataset string
}

func (id DatasetID) String() string {
	return id.Project + "." + id.Dataset
}

// IsValid checks that both components are present.
func (id DatasetID) IsValid() bool {
	return id.Project != "" && id.Dataset != ""
}

// TopologyDescriptor is the desired replication shape for a dataset. The
// replica set is canonical (normalized, unique, sorted) and Primary, when
// set, is always a member of Replicas. Construct descriptors through
// NewTopologyDescriptor so those invariants hold.
type TopologyDescriptor struct {
	Replicas []ReplicaLocation
	Primary  ReplicaLocation
}

// NewTopologyDescriptor builds a descriptor from raw configuration values.
// An empty primary means no primary preference. A primary naming a location
// outside the replica set is a configuration error.
func NewTopologyDescriptor(replicas []string, primary string) (TopologyDescriptor, error) {
	desc := TopologyDescriptor{
		Replicas: NormalizeLocations(replicas),
		Primary:  NormalizeLocation(primary),
	}

	for _, loc := range desc.Replicas {
		if loc == "" {
			return TopologyDescriptor{}, &InvalidConfigurationError{
				Reason: "replica locations must be non-empty",
			}
		}
	}

	if desc.Primary != "" && !desc.HasReplica(desc.Primary) {
		return TopologyDescriptor{}, &InvalidConfigurationError{
			Reason: fmt.Sprintf("primary location %q is not in the replica set %v",
				desc.Primary, desc.Replicas),
		}
	}

	return desc, nil
}

// Validate re-checks the descriptor invariants. Descriptors built by
// NewTopologyDescriptor always pass.
func (t TopologyDescriptor) Validate() error {
	for _, loc := range t.Replicas {
		if loc != NormalizeLocation(string(loc)) || loc == "" {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("replica location %q is not normalized", loc),
			}
		}
	}
	if !slices.IsSorted(t.Replicas) {
		return &InvalidConfigurationError{Reason: "replica set is not sorted"}
	}
	for i := 1; i < len(t.Replicas); i++ {
		if t.Replicas[i] == t.Replicas[i-1] {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("duplicate replica location %q", t.Replicas[i]),
			}
		}
	}
	if t.Primary != "" && !t.HasReplica(t.Primary) {
		return &InvalidConfigurationError{
			Reason: fmt.Sprintf("primary location %q is not in the replica set %v",
				t.Primary, t.Replicas),
		}
	}
	return nil
}

func (t TopologyDescriptor) HasReplica(loc ReplicaLocation) bool {
	return slices.Contains(t.Replicas, loc)
}

// IsEmpty reports whether the descriptor requests no replicas at all.
func (t TopologyDescriptor) IsEmpty() bool {
	return len(t.Replicas) == 0 && t.Primary == ""
}

func (t TopologyDescriptor) Equal(o TopologyDescriptor) bool {
	return t.Primary == o.Primary && slices.Equal(t.Replicas, o.Replicas)
}

// ObservedTopology is the replication shape reported by the warehouse
// catalog. An empty Primary means the catalog reported no primary replica.
type ObservedTopology struct {
	Replicas []ReplicaLocation
	Primary  ReplicaLocation
}

func (t ObservedTopology) HasReplica(loc ReplicaLocation) bool {
	return slices.Contains(t.Replicas, loc)
}
