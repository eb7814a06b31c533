package api

import (
	"net/http"
	"time"

	"github.com/sells-group/evidence-cli/internal/manifest"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/synthesis"
	"github.com/sells-group/evidence-cli/internal/temporal"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": s.store.Len(),
	})
}

// EvaluateResponse is returned by POST /v1/evaluate.
type EvaluateResponse struct {
	Result   synthesis.QueryResult  `json:"result"`
	Cards    synthesis.DisplayCards `json:"cards"`
	Markdown string                 `json:"markdown"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req synthesis.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.engine.Evaluate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	cards := synthesis.FormatDisplay(result)
	writeJSON(w, http.StatusOK, EvaluateResponse{Result: result, Cards: cards, Markdown: cards.Markdown()})
}

// CheckRequest is the body of POST /v1/manifest/check.
type CheckRequest struct {
	Text        *string  `json:"text"`
	SourceType  string   `json:"source_type"`
	SourceDate  string   `json:"source_date,omitempty"`
	RawTextRef  string   `json:"raw_text_ref,omitempty"`
	Tickers     []string `json:"tickers,omitempty"`
	EntityCount int      `json:"entity_count,omitempty"`
	// DryRun only reports whether the content is known.
	DryRun bool `json:"dry_run,omitempty"`
}

// CheckResponse is returned by POST /v1/manifest/check.
type CheckResponse struct {
	ContentHash string                `json:"content_hash"`
	Duplicate   bool                  `json:"duplicate"`
	Registered  bool                  `json:"registered"`
	Record      *model.ManifestRecord `json:"record,omitempty"`
}

func (s *Server) handleManifestCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Text == nil {
		writeError(w, model.NewInputError("text", "is required"))
		return
	}
	sourceType, err := model.ParseSourceType(req.SourceType)
	if err != nil {
		writeError(w, err)
		return
	}
	sourceDate, _ := temporal.ParseSourceDate(req.SourceDate)
	doc, err := manifest.NewDocument(*req.Text, sourceType, sourceDate, req.RawTextRef, req.Tickers)
	if err != nil {
		writeError(w, err)
		return
	}
	doc.EntityCount = req.EntityCount

	resp := CheckResponse{ContentHash: doc.ContentHash}
	if req.DryRun {
		if rec, ok := s.store.Record(doc.ContentHash); ok {
			resp.Duplicate = true
			resp.Record = &rec
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	dup, rec, err := s.store.CheckAndRegister(r.Context(), doc)
	if err != nil {
		writeError(w, err)
		return
	}
	if !dup && len(doc.Tickers) > 0 {
		if err := s.store.RecordCoverage(r.Context(), doc.ContentHash, doc.Tickers, sourceType); err != nil {
			writeError(w, err)
			return
		}
		if updated, ok := s.store.Record(doc.ContentHash); ok {
			rec = updated
		}
	}
	resp.Duplicate = dup
	resp.Registered = !dup
	resp.Record = &rec

	status := http.StatusOK
	if !dup {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleManifestStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// PortfolioRequest is the body of POST /v1/portfolio.
type PortfolioRequest struct {
	Holdings *[]string `json:"holdings"`
	TakenAt  time.Time `json:"taken_at,omitempty"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Holdings == nil {
		writeError(w, model.NewInputError("holdings", "is required"))
		return
	}
	delta, err := s.store.RecordPortfolioSnapshot(r.Context(), *req.Holdings, req.TakenAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, delta)
}

// GapsRequest is the body of POST /v1/coverage/gaps.
type GapsRequest struct {
	Tickers []string `json:"tickers"`
	// Sources defaults to every source type.
	Sources []string `json:"sources,omitempty"`
}

// GapsResponse is returned by POST /v1/coverage/gaps.
type GapsResponse struct {
	Gaps map[string][]model.SourceType `json:"gaps"`
}

func (s *Server) handleCoverageGaps(w http.ResponseWriter, r *http.Request) {
	var req GapsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	required, err := model.ParseSourceTypes(req.Sources)
	if err != nil {
		writeError(w, err)
		return
	}
	tickers := req.Tickers
	if len(tickers) == 0 {
		tickers = s.store.CurrentHoldings()
	}
	writeJSON(w, http.StatusOK, GapsResponse{Gaps: s.store.CoverageGaps(tickers, required)})
}
