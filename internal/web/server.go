package web

import (
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"heatbatch/internal/batch"
	"heatbatch/internal/engine"
	"heatbatch/internal/model"
)

//go:embed static/*
var staticFS embed.FS

// Options configures the layout used by /api/plan.
type Options struct {
	DataPath   string
	ShotDigits int
	TimeDigits int
	Logger     *zap.Logger
}

// Server exposes one batch file over HTTP. The file is re-read on every
// request so edits show up on refresh.
type Server struct {
	path   string
	parser *batch.Parser
	opts   Options
	mux    *http.ServeMux
}

// NewServer builds the handler for the batch file at path.
func NewServer(path string, parser *batch.Parser, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{path: path, parser: parser, opts: opts, mux: http.NewServeMux()}

	// Serve static files
	subFS, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/", http.FileServer(http.FS(subFS)))

	// API Endpoints
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/plan", s.handlePlan)
	s.mux.HandleFunc("/api/registry", s.handleRegistry)
	s.mux.HandleFunc("/api/file", s.handleFile)
	s.mux.HandleFunc("/api/line-context", s.handleLineContext)
	s.mux.HandleFunc("/api/help", s.handleHelp)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StartServer serves the batch file on addr until the listener fails.
func StartServer(addr string, s *Server) error {
	s.opts.Logger.Info("Starting heatbatch web server",
		zap.String("addr", addr),
		zap.String("batch_file", s.path))
	return http.ListenAndServe(addr, s)
}

type scheduleResponse struct {
	Source      string
	Runs        []model.RunDescriptor
	Diagnostics []model.Diagnostic
	Report      string
	Version     string
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.parser.Parse(s.path)
	if err != nil && !isParseError(err) {
		s.opts.Logger.Error("Failed to read batch file", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := scheduleResponse{
		Source:      s.path,
		Runs:        []model.RunDescriptor{},
		Diagnostics: batch.Diagnostics(err),
		Report:      batch.GenerateReport(sched, err, s.parser.Registry(), r.URL.Query().Get("verbose") == "1"),
		Version:     model.Version,
	}
	if sched != nil {
		resp.Runs = sched.Runs
		resp.Diagnostics = append(resp.Diagnostics, sched.Warnings...)
	}
	writeJSON(w, resp)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	sched, err := s.parser.Parse(s.path)
	if sched == nil {
		status := http.StatusInternalServerError
		if isParseError(err) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	layout := engine.NewLayout(sched, s.opts.DataPath, s.opts.ShotDigits, s.opts.TimeDigits)
	plans := engine.Plan(sched, layout)
	writeJSON(w, struct {
		Plans   []engine.RunPlan
		Missing []model.Diagnostic
	}{
		Plans:   plans,
		Missing: engine.Check(plans),
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.parser.Registry())
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	content, err := os.ReadFile(model.ExpandTilde(s.path))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(content)
}

// maxRadius bounds the context lines returned around one batch row.
const maxRadius = 100

func (s *Server) handleLineContext(w http.ResponseWriter, r *http.Request) {
	lineNum, err := strconv.Atoi(r.URL.Query().Get("line"))
	if err != nil {
		http.Error(w, "invalid line number", http.StatusBadRequest)
		return
	}
	radius := 2
	if v := r.URL.Query().Get("radius"); v != "" {
		radius, err = strconv.Atoi(v)
		if err != nil || radius < 0 || radius > maxRadius {
			http.Error(w, "invalid radius", http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, model.GetLineContext(s.path, lineNum, radius))
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown")
	w.Write([]byte(model.Help()))
}

func isParseError(err error) bool {
	var pe *batch.ParseError
	var list *batch.ErrorList
	return errors.As(err, &pe) || errors.As(err, &list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
