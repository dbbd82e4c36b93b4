package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/gemini"
	"poster-studio/internal/poster"
	"poster-studio/internal/wizard"
)

type apiError struct {
	Error       string   `json:"error"`
	Explanation string   `json:"explanation,omitempty"`
	Problems    []string `json:"problems,omitempty"`
}

type editRequest struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wizard.Catalog())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.wizard.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub, err := readSubmission(w, r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()
	s.respond(w, s.wizard.Submit(ctx, sub))
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.wizard.Back())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.wizard.Reset()
	s.respond(w, nil)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := s.withTimeout(r)
	defer cancel()
	s.respond(w, s.wizard.SelectProposal(ctx, id))
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var cfg poster.GenerationConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}
	s.respond(w, s.wizard.SetConfig(cfg))
}

// handleRegenerate uses the posted config, or the stored one for an empty body.
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	cfg := s.wizard.Snapshot().Config
	if err := decodeJSON(r, &cfg); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()
	s.respond(w, s.wizard.Regenerate(ctx, cfg))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	ctx, cancel := s.withTimeout(r)
	defer cancel()
	s.respond(w, s.wizard.Edit(ctx, req.Instruction))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.withTimeout(r)
	defer cancel()
	s.respond(w, s.wizard.Analyze(ctx))
}

// handleImage streams the current poster; ?download=1 makes it an attachment.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	art, ok := s.wizard.Artifact()
	if !ok {
		writeJSON(w, http.StatusNotFound, apiError{Error: "no poster yet"})
		return
	}

	w.Header().Set("content-type", art.Image.MimeType)
	w.Header().Set("cache-control", "no-store")
	if download, _ := strconv.ParseBool(r.URL.Query().Get("download")); download {
		ext := ".png"
		if m := mimetype.Lookup(art.Image.MimeType); m != nil {
			ext = m.Extension()
		}
		w.Header().Set("content-disposition", fmt.Sprintf(`attachment; filename="poster-v%d%s"`, art.Version, ext))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Image.Data)
}

// respond writes the fresh snapshot on success and the mapped error otherwise.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.wizard.Snapshot())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := apiError{Error: err.Error()}

	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		body.Problems = verr.Problems
	}
	var gerr *gemini.Error
	if errors.As(err, &gerr) {
		body.Explanation = gerr.Explanation
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		s.log.Info().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, dataurl.ErrMalformedEncoding):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrUnknownProposal):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrBusy), errors.Is(err, wizard.ErrWrongStep), errors.Is(err, wizard.ErrStale):
		return http.StatusConflict
	case errors.Is(err, gemini.ErrService),
		errors.Is(err, gemini.ErrSchemaViolation),
		errors.Is(err, gemini.ErrEmptyResult),
		errors.Is(err, gemini.ErrNoImageReturned):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
