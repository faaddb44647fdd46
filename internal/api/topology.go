package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/RaufunNazin/bnetdiag/internal/auth"
	"github.com/RaufunNazin/bnetdiag/internal/topology"
)

// viewResponse wraps a resolved view.
type viewResponse struct {
	RootID *int64          `json:"root_id"`
	Nodes  []topology.Node `json:"nodes"`
	Count  int             `json:"count"`
}

type insertRequest struct {
	SourceID int64 `json:"source_id"`
	TargetID int64 `json:"target_id"`
	topology.DeviceInput
}

type connectRequest struct {
	SourceID    int64 `json:"source_id"`
	NewParentID int64 `json:"new_parent_id"`
}

type updateRequest struct {
	OriginalName string `json:"original_name"`
	SwID         *int64 `json:"sw_id"`
	topology.Patch
}

type positionRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type resetRequest struct {
	Target topology.ResetTarget `json:"target"`
	ID     int64                `json:"id"`
	Mode   topology.ResetMode   `json:"mode"`
}

// principal is the caller as resolved by authMiddleware.
func principal(r *http.Request) auth.Principal {
	p, _ := principalFrom(r.Context()) //nolint:errcheck // zero principal is denied by the guard
	return p
}

func (s *Server) handleGeneralView(w http.ResponseWriter, r *http.Request) {
	nodes, err := s.topology.GeneralView(r.Context(), principal(r))
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{Nodes: nodes, Count: len(nodes)})
}

func (s *Server) handleSubtreeView(w http.ResponseWriter, r *http.Request) {
	rootID, ok := pathID(w, r, "rootID")
	if !ok {
		return
	}
	nodes, err := s.topology.SubtreeView(r.Context(), principal(r), rootID)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{RootID: &rootID, Nodes: nodes, Count: len(nodes)})
}

func (s *Server) handleListOLTs(w http.ResponseWriter, r *http.Request) {
	olts, err := s.topology.ListOLTs(r.Context(), principal(r))
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"olts": olts, "count": len(olts)})
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var in topology.DeviceInput
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := s.topology.Create(r.Context(), principal(r), in)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleInsertDevice(w http.ResponseWriter, r *http.Request) {
	var req insertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SourceID <= 0 || req.TargetID <= 0 {
		writeValidationError(w, "source_id and target_id are required")
		return
	}
	res, err := s.topology.InsertBetween(r.Context(), principal(r), req.SourceID, req.TargetID, req.DeviceInput)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SourceID <= 0 || req.NewParentID <= 0 {
		writeValidationError(w, "source_id and new_parent_id are required")
		return
	}
	res, err := s.topology.Connect(r.Context(), principal(r), req.SourceID, req.NewParentID)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OriginalName == "" {
		writeValidationError(w, "original_name is required")
		return
	}
	res, err := s.topology.Update(r.Context(), principal(r), req.OriginalName, req.SwID, req.Patch)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeleteDevice removes every record of ?name= within ?sw_id= (absent
// means the records without a group).
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeValidationError(w, "name is required")
		return
	}
	swID, ok := queryOptionalID(w, r, "sw_id")
	if !ok {
		return
	}
	res, err := s.topology.Delete(r.Context(), principal(r), name, swID)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDisconnect detaches the record ?name= from parent ?source_id=.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		writeValidationError(w, "name is required")
		return
	}
	sourceID, err := strconv.ParseInt(q.Get("source_id"), 10, 64)
	if err != nil || sourceID <= 0 {
		writeValidationError(w, "source_id must be a positive integer")
		return
	}
	swID, ok := queryOptionalID(w, r, "sw_id")
	if !ok {
		return
	}
	res, err := s.topology.Disconnect(r.Context(), principal(r), name, sourceID, swID)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req positionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.X == nil || req.Y == nil {
		writeValidationError(w, "x and y are required")
		return
	}
	res, err := s.topology.SetPosition(r.Context(), principal(r), id, *req.X, *req.Y)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResetPositions(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Mode == "" {
		req.Mode = topology.ResetAuto
	}
	res, err := s.topology.ResetPositions(r.Context(), principal(r), req.Target, req.ID, req.Mode)
	if err != nil {
		s.writeTopologyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeValidationError(w, param+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryOptionalID(w http.ResponseWriter, r *http.Request, param string) (*int64, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeValidationError(w, param+" must be an integer")
		return nil, false
	}
	return &id, true
}
