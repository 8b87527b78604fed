package server_v1

import (
	"time"

	"github.com/warehouselabs/replica-gateway/replication"
)

type ErrorCode string

const (
	ErrorCodeInvalidArgument    ErrorCode = "InvalidArgument"
	ErrorCodeNotFound           ErrorCode = "NotFound"
	ErrorCodeAccessDenied       ErrorCode = "AccessDenied"
	ErrorCodeCatalogUnavailable ErrorCode = "CatalogUnavailable"
	ErrorCodeCatalogQueryFailed ErrorCode = "CatalogQueryFailed"
	ErrorCodeApplyFailed        ErrorCode = "ApplyFailed"
	ErrorCodeInternal           ErrorCode = "Internal"
)

type TopologyJson struct {
	Replicas []string `json:"replicas"`
	Primary  string   `json:"primary,omitempty"`
}

type OperationJson struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

type ReconcileRequestJson struct {
	Replicas      []string `json:"replicas"`
	Primary       string   `json:"primary,omitempty"`
	CreateDataset bool     `json:"createDataset,omitempty"`
}

type ReconcileResponseJson struct {
	Project           string          `json:"project"`
	Dataset           string          `json:"dataset"`
	Outcome           string          `json:"outcome"`
	Topology          TopologyJson    `json:"topology"`
	CreatedDataset    bool            `json:"createdDataset,omitempty"`
	AppliedOperations []OperationJson `json:"appliedOperations,omitempty"`
}

type PlanRequestJson struct {
	Replicas []string `json:"replicas"`
	Primary  string   `json:"primary,omitempty"`
}

type PlanResponseJson struct {
	Project    string          `json:"project"`
	Dataset    string          `json:"dataset"`
	Operations []OperationJson `json:"operations"`
}

type SessionDatasetJson struct {
	Project    string       `json:"project"`
	Dataset    string       `json:"dataset"`
	Topology   TopologyJson `json:"topology"`
	ResolvedAt time.Time    `json:"resolvedAt"`
}

type SessionResponseJson struct {
	SessionId string               `json:"sessionId"`
	StartedAt time.Time            `json:"startedAt"`
	Datasets  []SessionDatasetJson `json:"datasets"`
}

func topologyJsonFromDescriptor(desc replication.TopologyDescriptor) TopologyJson {
	return TopologyJson{
		Replicas: locationStrings(desc.Replicas),
		Primary:  string(desc.Primary),
	}
}

func topologyJsonFromObserved(observed replication.ObservedTopology) TopologyJson {
	return TopologyJson{
		Replicas: locationStrings(observed.Replicas),
		Primary:  string(observed.Primary),
	}
}

func operationsJson(plan replication.Plan) []OperationJson {
	ops := make([]OperationJson, 0, len(plan))
	for _, op := range plan {
		ops = append(ops, OperationJson{
			Kind:     string(op.Kind),
			Location: string(op.Location),
		})
	}
	return ops
}

func locationStrings(locations []replication.ReplicaLocation) []string {
	out := make([]string, 0, len(locations))
	for _, loc := range locations {
		out = append(out, string(loc))
	}
	return out
}
