package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"cdmutil/internal/config"
	"cdmutil/internal/event"
	"cdmutil/internal/generator"
	"cdmutil/internal/manifest"
	"cdmutil/internal/mapper"
	"cdmutil/internal/model"
	"cdmutil/internal/sqlserver"
)

// overrides reads every known configuration key from the request headers.
// Header lookup is case-insensitive; empty headers are skipped.
func overrides(r *http.Request) map[string]string {
	out := map[string]string{}
	for _, key := range config.Keys {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			out[key] = v
		}
	}
	return out
}

func (s *Server) handleManifestToSQL(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.ManifestToSQL(r.Context(), overrides(r), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewSQLStatements(res.Statements))
}

func (s *Server) handleManifestToSQLDDL(w http.ResponseWriter, r *http.Request) {
	res, err := s.pipeline.ManifestToDDL(r.Context(), overrides(r), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewSQLStatements(res.Statements))
}

func (s *Server) handleCreateManifest(w http.ResponseWriter, r *http.Request) {
	var list model.EntityList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeError(w, badRequest{fmt.Errorf("invalid entity list: %w", err)})
		return
	}

	status, err := s.pipeline.CreateManifest(r.Context(), overrides(r), list)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleManifestDefinition(w http.ResponseWriter, r *http.Request) {
	defs, err := s.pipeline.Definitions(r.Context(), overrides(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

type modelJSONStatus struct {
	Status   bool   `json:"Status"`
	Entities int    `json:"entities"`
	Name     string `json:"name"`
}

func (s *Server) handleModelJSON(w http.ResponseWriter, r *http.Request) {
	m, err := s.pipeline.ModelJSON(r.Context(), overrides(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelJSONStatus{Status: true, Entities: len(m.Entities), Name: m.Name})
}

// handleEvents answers the Event Grid validation handshake, then runs the
// consumption pipeline once per delivered manifest URL, in delivery order.
// Event deliveries carry no configuration headers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, badRequest{err})
		return
	}
	events, err := event.Parse(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if code, ok, err := event.ValidationCode(events); err != nil {
		writeError(w, err)
		return
	} else if ok {
		log.Info().Msg("event subscription validated")
		writeJSON(w, http.StatusOK, event.ValidationResponse{ValidationResponse: code})
		return
	}

	urls, err := event.ManifestURLs(events)
	if err != nil {
		writeError(w, err)
		return
	}

	var out []model.SQLStatements
	for _, u := range urls {
		res, err := s.pipeline.ManifestToSQL(r.Context(), nil, u)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, model.NewSQLStatements(res.Statements))
	}
	writeJSON(w, http.StatusOK, out)
}

// badRequest marks transport-level input errors.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// statusOf maps the pipeline's typed errors onto HTTP status codes.
func statusOf(err error) int {
	var (
		cfgErr     *config.ConfigurationError
		formatErr  *manifest.FormatError
		typeErr    *mapper.UnsupportedTypeError
		genErr     *generator.Error
		payloadErr *event.PayloadError
		badReq     badRequest
		notFound   *manifest.NotFoundError
		execErr    *sqlserver.ExecutionError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &cfgErr), errors.As(err, &formatErr), errors.As(err, &typeErr),
		errors.As(err, &genErr), errors.As(err, &payloadErr), errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &execErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}
