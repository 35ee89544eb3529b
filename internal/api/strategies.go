package api

import (
	"encoding/json"
	"net/http"

	"github.com/thewatergategroups/llama/internal/types"
	"github.com/thewatergategroups/llama/pkg/errors"
)

func (s *Server) handleGetStrategies(w http.ResponseWriter, r *http.Request) {
	if alias := r.URL.Query().Get("alias"); alias != "" {
		stored, err := s.strategies.GetStrategy(r.Context(), alias)
		if err != nil {
			writeError(w, err)

			return
		}
		if stored.IsNone() {
			writeError(w, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %s does not exist", alias))

			return
		}

		writeJSON(w, http.StatusOK, []types.StrategyDefinition{stored.Unwrap()})

		return
	}

	defs, err := s.strategies.ListStrategies(r.Context())
	if err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleGetConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := s.strategies.ListConditions(r.Context())
	if err != nil {
		writeError(w, err)

		return
	}

	if name := r.URL.Query().Get("name"); name != "" {
		filtered := conditions[:0]
		for _, condition := range conditions {
			if condition.Name == name {
				filtered = append(filtered, condition)
			}
		}
		conditions = filtered
	}

	writeJSON(w, http.StatusOK, conditions)
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var def types.StrategyDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}
	if def.Alias == "" {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "strategy alias is required"))

		return
	}

	existing, err := s.strategies.GetStrategy(r.Context(), def.Alias)
	if err != nil {
		writeError(w, err)

		return
	}
	if existing.IsSome() {
		writeError(w, errors.Newf(errors.ErrCodeInvalidParameter, "strategy with alias %s already exists", def.Alias))

		return
	}

	if err := s.strategies.UpsertStrategy(r.Context(), def); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Detail: "success"})
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	alias := r.URL.Query().Get("alias")
	if alias == "" {
		writeError(w, errors.New(errors.ErrCodeMissingParameter, "query parameter alias is required"))

		return
	}

	if err := s.strategies.DeleteStrategy(r.Context(), alias); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Detail: "success"})
}

// PatchStrategyRequest toggles or renames an existing strategy.
type PatchStrategyRequest struct {
	Alias  string  `json:"alias"`
	Name   *string `json:"name,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func (s *Server) handlePatchStrategy(w http.ResponseWriter, r *http.Request) {
	var req PatchStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	stored, err := s.strategies.GetStrategy(r.Context(), req.Alias)
	if err != nil {
		writeError(w, err)

		return
	}
	if stored.IsNone() {
		writeError(w, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %s does not exist", req.Alias))

		return
	}

	def := stored.Unwrap()
	if req.Name != nil {
		def.Name = *req.Name
	}
	if req.Active != nil {
		def.Active = *req.Active
	}

	if err := s.strategies.UpsertStrategy(r.Context(), def); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Detail: "success"})
}

// PatchStrategyConditionRequest adjusts one condition attached to a strategy.
type PatchStrategyConditionRequest struct {
	StrategyAlias string             `json:"strategy_alias"`
	ConditionName string             `json:"condition_name"`
	Active        *bool              `json:"active,omitempty"`
	Variables     map[string]float64 `json:"variables,omitempty"`
}

func (s *Server) handlePatchStrategyCondition(w http.ResponseWriter, r *http.Request) {
	var req PatchStrategyConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid request body", err))

		return
	}

	stored, err := s.strategies.GetStrategy(r.Context(), req.StrategyAlias)
	if err != nil {
		writeError(w, err)

		return
	}
	if stored.IsNone() {
		writeError(w, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy %s does not exist", req.StrategyAlias))

		return
	}

	var spec *types.ConditionSpec
	def := stored.Unwrap()
	for i := range def.Conditions {
		if def.Conditions[i].Name == req.ConditionName {
			spec = &def.Conditions[i]

			break
		}
	}
	if spec == nil {
		writeError(w, errors.Newf(errors.ErrCodeConditionNotFound, "condition %s is not attached to strategy %s", req.ConditionName, req.StrategyAlias))

		return
	}

	if req.Active != nil {
		spec.Active = *req.Active
	}
	if spec.Variables == nil {
		spec.Variables = make(map[string]float64)
	}
	for key, value := range req.Variables {
		spec.Variables[key] = value
	}

	if err := s.strategies.UpsertStrategyCondition(r.Context(), req.StrategyAlias, *spec); err != nil {
		writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Detail: "success"})
}
