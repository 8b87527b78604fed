package server_v1

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/warehouselabs/replica-gateway/datasetcfg"
	"github.com/warehouselabs/replica-gateway/provision"
	"github.com/warehouselabs/replica-gateway/replication"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// Engine bundles the components that share one build session. The gateway
// swaps the bundle atomically when a new datasets-config generation starts.
type Engine struct {
	Provisioner *provision.Provisioner
	Coordinator *replication.Coordinator
	Store       *replication.SessionStore
}

// Runtime provides handlers with the live engine components.
type Runtime interface {
	Engine() *Engine
	Reader() replication.TopologyReader
}

type ReplicationServer struct {
	logger       *zap.Logger
	errorHandler *ErrorHandler
	runtime      Runtime
}

func NewReplicationServer(
	logger *zap.Logger,
	errorHandler *ErrorHandler,
	runtime Runtime,
) *ReplicationServer {
	return &ReplicationServer{
		logger:       logger,
		errorHandler: errorHandler,
		runtime:      runtime,
	}
}

// RegisterRoutes attaches the v1 endpoints to the router.
func (s *ReplicationServer) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/projects/{project}/datasets/{dataset}/replication:plan",
		s.HandlePlan).Methods(http.MethodPost)
	router.HandleFunc("/v1/projects/{project}/datasets/{dataset}/replication",
		s.HandleReconcile).Methods(http.MethodPost)
	router.HandleFunc("/v1/projects/{project}/datasets/{dataset}/replication",
		s.HandleGetTopology).Methods(http.MethodGet)
	router.HandleFunc("/v1/session",
		s.HandleGetSession).Methods(http.MethodGet)
}

// HandleReconcile converges one dataset onto the requested topology within
// the current session.
func (s *ReplicationServer) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	id, errSt := s.datasetFromRequest(r)
	if errSt != nil {
		s.writeStatus(w, errSt)
		return
	}

	var req ReconcileRequestJson
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, s.errorHandler.NewInvalidBodyStatus(err))
		return
	}

	engine := s.runtime.Engine()

	var result *replication.ReconcileResult
	var createdDataset bool
	if req.CreateDataset {
		ensured, err := engine.Provisioner.EnsureDataset(r.Context(), id, datasetcfg.DatasetConfig{
			Replication: &datasetcfg.ReplicationConfig{
				Replicas: req.Replicas,
				Primary:  req.Primary,
			},
		})
		if err != nil {
			s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
			return
		}
		createdDataset = ensured.CreatedDataset
		result = ensured.Replication
	} else {
		desired, err := replication.NewTopologyDescriptor(req.Replicas, req.Primary)
		if err != nil {
			s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
			return
		}

		result, err = engine.Coordinator.EnsureReplication(r.Context(), id, desired)
		if err != nil {
			s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
			return
		}
	}

	s.writeJson(w, http.StatusOK, &ReconcileResponseJson{
		Project:           id.Project,
		Dataset:           id.Dataset,
		Outcome:           string(result.Outcome),
		Topology:          topologyJsonFromDescriptor(result.Topology),
		CreatedDataset:    createdDataset,
		AppliedOperations: operationsJson(result.Applied),
	})
}

// HandleGetTopology returns the observed topology straight from the catalog,
// bypassing the session cache.
func (s *ReplicationServer) HandleGetTopology(w http.ResponseWriter, r *http.Request) {
	id, errSt := s.datasetFromRequest(r)
	if errSt != nil {
		s.writeStatus(w, errSt)
		return
	}

	observed, err := s.runtime.Reader().ReadTopology(r.Context(), id)
	if err != nil {
		s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
		return
	}

	s.writeJson(w, http.StatusOK, topologyJsonFromObserved(observed))
}

// HandlePlan computes the operations that would converge the dataset, without
// applying anything or touching the session.
func (s *ReplicationServer) HandlePlan(w http.ResponseWriter, r *http.Request) {
	id, errSt := s.datasetFromRequest(r)
	if errSt != nil {
		s.writeStatus(w, errSt)
		return
	}

	var req PlanRequestJson
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeStatus(w, s.errorHandler.NewInvalidBodyStatus(err))
		return
	}

	desired, err := replication.NewTopologyDescriptor(req.Replicas, req.Primary)
	if err != nil {
		s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
		return
	}

	observed, err := s.runtime.Reader().ReadTopology(r.Context(), id)
	if err != nil && !errors.Is(err, replication.ErrCatalogUnavailable) {
		s.writeStatus(w, s.errorHandler.NewReconcileErrorStatus(err, id.String()))
		return
	}

	plan := replication.CalcPlan(desired, observed)
	s.writeJson(w, http.StatusOK, &PlanResponseJson{
		Project:    id.Project,
		Dataset:    id.Dataset,
		Operations: operationsJson(plan),
	})
}

// HandleGetSession returns the current session and every topology it has
// resolved so far.
func (s *ReplicationServer) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	store := s.runtime.Engine().Store

	entries := store.Snapshot()
	slices.SortFunc(entries, func(a, b replication.SessionEntry) int {
		return strings.Compare(a.Identity.String(), b.Identity.String())
	})

	datasets := make([]SessionDatasetJson, 0, len(entries))
	for _, entry := range entries {
		datasets = append(datasets, SessionDatasetJson{
			Project:    entry.Identity.Project,
			Dataset:    entry.Identity.Dataset,
			Topology:   topologyJsonFromDescriptor(entry.Topology),
			ResolvedAt: entry.ResolvedAt,
		})
	}

	s.writeJson(w, http.StatusOK, &SessionResponseJson{
		SessionId: store.ID().String(),
		StartedAt: store.StartedAt(),
		Datasets:  datasets,
	})
}

func (s *ReplicationServer) datasetFromRequest(r *http.Request) (replication.DatasetID, *Status) {
	vars := mux.Vars(r)
	id := replication.DatasetID{
		Project: vars["project"],
		Dataset: vars["dataset"],
	}
	if !id.IsValid() {
		return replication.DatasetID{},
			s.errorHandler.NewInvalidPathStatus("Project and dataset must be specified.")
	}
	return id, nil
}

func (s *ReplicationServer) writeStatus(w http.ResponseWriter, st *Status) {
	s.writeJson(w, st.StatusCode, st)
}

func (s *ReplicationServer) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response body", zap.Error(err))
	}
}
