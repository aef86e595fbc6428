// Package server exposes the solvers over HTTP. Jobs are started
// asynchronously, tracked in memory and queried by ID.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/config"
	"github.com/copyleftdev/descent/internal/logging"
	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/accelgrad"
	"github.com/copyleftdev/descent/internal/optimization/bundle"
	"github.com/copyleftdev/descent/internal/optimization/quadratic"
	"github.com/copyleftdev/descent/internal/optimization/steepest"
)

// SolveRequest is the body of POST /api/v1/optimize.
type SolveRequest struct {
	// Solver selects the algorithm: "steepest", "accelgrad" or "bundle".
	Solver string `json:"solver"`
	// Objective selects the problem: "sphere", "rosenbrock", "abssum"
	// or "quadratic".
	Objective string `json:"objective"`
	// Dim sizes the sphere and abssum objectives.
	Dim int `json:"dim,omitempty"`
	// Q and B define the quadratic objective 1/2 x'Qx + b'x. Q is given
	// as its rows.
	Q [][]float64 `json:"q,omitempty"`
	B []float64   `json:"b,omitempty"`
	// X0 overrides the objective's default starting point.
	X0 []float64 `json:"x0,omitempty"`

	Eps      *float64 `json:"eps,omitempty"`
	MaxFEval *int     `json:"max_f_eval,omitempty"`
	AStart   *float64 `json:"a_start,omitempty"`
	M1       *float64 `json:"m1,omitempty"`

	// Formula and Monotone apply to the accelgrad solver.
	Formula  string `json:"formula,omitempty"`
	Monotone bool   `json:"monotone,omitempty"`

	// Mu applies to the bundle solver.
	Mu *float64 `json:"mu,omitempty"`
}

// JobState tracks one optimization job. Access is guarded by the
// server's mutex.
type JobState struct {
	ID          string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	Result      *optimization.Result
	Error       string
	LastUpdated time.Time

	cancelled bool
}

// Server manages optimization jobs and serves the HTTP API.
type Server struct {
	cfg    *config.Config
	logger *logging.Logger

	jobs   map[string]*JobState
	jobsMu sync.RWMutex

	sem chan struct{} // bounds concurrent jobs

	registry     *prometheus.Registry
	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobDuration  prometheus.Histogram

	nextID func() string
}

// NewServer creates a server instance with the given config and logger.
func NewServer(cfg *config.Config, logger *logging.Logger) *Server {
	registry := prometheus.NewRegistry()

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		jobs:     make(map[string]*JobState),
		sem:      make(chan struct{}, cfg.Solver.MaxConcurrent),
		registry: registry,
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "descent_jobs_started_total",
			Help: "Number of optimization jobs accepted.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "descent_jobs_finished_total",
			Help: "Number of optimization jobs finished, by terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "descent_job_duration_seconds",
			Help:    "Wall-clock duration of completed optimization jobs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		nextID: func() string { return fmt.Sprintf("job_%d", time.Now().UnixNano()) },
	}
	registry.MustRegister(s.jobsStarted, s.jobsFinished, s.jobDuration)
	return s
}

// MetricsHandler serves the server's prometheus registry.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/solvers", s.handleSolvers)
		r.Get("/objectives", s.handleObjectives)
	})
}

var solverNames = []string{"accelgrad", "bundle", "steepest"}

var objectiveNames = []string{"abssum", "quadratic", "rosenbrock", "sphere"}

func (s *Server) handleSolvers(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"solvers": solverNames})
}

func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"objectives": objectiveNames})
}

// handleOptimize accepts a job, validates it and starts it in the
// background.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	obj, err := s.buildObjective(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	solver, err := s.buildSolver(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.X0 != nil {
		if want := len(obj.Start()); len(req.X0) != want {
			s.respondError(w, http.StatusBadRequest,
				fmt.Sprintf("x0 has length %d but the objective is %d-dimensional", len(req.X0), want))
			return
		}
	}

	id := s.nextID()
	state := &JobState{
		ID:          id,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}

	s.jobsMu.Lock()
	s.jobs[id] = state
	s.jobsMu.Unlock()
	s.jobsStarted.Inc()

	s.logger.Info("job accepted", map[string]interface{}{
		"job_id":    id,
		"solver":    req.Solver,
		"objective": req.Objective,
	})

	go s.runJob(state, solver, obj, req.X0)

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": id,
		"status": state.Status,
	})
}

// handleStatus reports a job's progress and, once terminal, its result.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	state, exists := s.jobs[id]
	if !exists {
		s.jobsMu.RUnlock()
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]interface{}{
		"job_id":      state.ID,
		"status":      state.Status,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Error != "" {
		resp["error"] = state.Error
	}
	if res := state.Result; res != nil {
		resp["result"] = map[string]interface{}{
			"x":             res.X,
			"f":             res.F,
			"solver_status": res.Status.String(),
			"evaluations":   res.Evaluations,
			"iterations":    res.Iterations,
		}
	}
	s.jobsMu.RUnlock()

	s.respondJSON(w, http.StatusOK, resp)
}

// handleCancel withdraws a job that has not started running yet. A
// running solver cannot be interrupted.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.Lock()
	state, exists := s.jobs[id]
	if !exists {
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	if state.Status != "pending" {
		status := state.Status
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusConflict,
			fmt.Sprintf("cannot cancel job with status %q", status))
		return
	}

	state.cancelled = true
	state.Status = "cancelled"
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	s.jobsMu.Unlock()

	s.jobsFinished.WithLabelValues("cancelled").Inc()
	s.logger.Info("job cancelled", map[string]interface{}{"job_id": id})

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// runJob executes one job, bounded by the concurrency semaphore.
func (s *Server) runJob(state *JobState, solver optimization.Optimizer, obj optimization.Objective, x0 []float64) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	s.jobsMu.Lock()
	if state.cancelled {
		s.jobsMu.Unlock()
		return
	}
	state.Status = "running"
	state.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	start := time.Now()
	var res *optimization.Result
	var runErr error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				runErr = fmt.Errorf("solver panic: %v", rec)
			}
		}()
		res = solver.Minimize(obj, x0)
	}()
	elapsed := time.Since(start)

	s.jobsMu.Lock()
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	if runErr != nil {
		state.Status = "failed"
		state.Error = runErr.Error()
	} else {
		state.Status = "completed"
		state.Result = res
	}
	status := state.Status
	s.jobsMu.Unlock()

	s.jobsFinished.WithLabelValues(status).Inc()
	s.jobDuration.Observe(elapsed.Seconds())

	fields := map[string]interface{}{
		"job_id":     state.ID,
		"status":     status,
		"elapsed_ms": float64(elapsed.Microseconds()) / 1000.0,
	}
	if runErr != nil {
		s.logger.Error("job failed", fields)
		return
	}
	fields["solver_status"] = res.Status.String()
	fields["f"] = res.F
	fields["evaluations"] = res.Evaluations
	s.logger.Info("job finished", fields)
}

// buildObjective constructs the requested objective.
func (s *Server) buildObjective(req *SolveRequest) (optimization.Objective, error) {
	switch req.Objective {
	case "sphere":
		if req.Dim <= 0 {
			return nil, fmt.Errorf("sphere objective requires dim > 0")
		}
		return optimization.Sphere{Dim: req.Dim}, nil
	case "abssum":
		if req.Dim <= 0 {
			return nil, fmt.Errorf("abssum objective requires dim > 0")
		}
		return optimization.AbsSum{Dim: req.Dim}, nil
	case "rosenbrock":
		return optimization.Rosenbrock{}, nil
	case "quadratic":
		return buildQuadratic(req.Q, req.B)
	case "":
		return nil, fmt.Errorf("objective is required")
	default:
		return nil, fmt.Errorf("unknown objective %q", req.Objective)
	}
}

func buildQuadratic(rows [][]float64, b []float64) (optimization.Objective, error) {
	n := len(rows)
	if n == 0 {
		return nil, fmt.Errorf("quadratic objective requires a non-empty q matrix")
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("q must be square: row %d has length %d, want %d", i, len(row), n)
		}
		data = append(data, row...)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if data[i*n+j] != data[j*n+i] {
				return nil, fmt.Errorf("q must be symmetric: q[%d][%d] != q[%d][%d]", i, j, j, i)
			}
		}
	}
	obj, err := quadratic.New(mat.NewSymDense(n, data), b)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// buildSolver constructs the requested solver, filling unset knobs from
// the service defaults. The solvers log through the zap adapter so their
// output lands in the same stream as the server's.
func (s *Server) buildSolver(req *SolveRequest) (optimization.Optimizer, error) {
	zl := logging.NewZapLogger(s.logger)

	eps := s.cfg.Solver.Eps
	if req.Eps != nil {
		eps = *req.Eps
	}
	budget := s.cfg.Solver.MaxFEval
	if req.MaxFEval != nil {
		budget = *req.MaxFEval
	}

	switch req.Solver {
	case "steepest":
		opts := steepest.Defaults()
		opts.Eps = eps
		opts.MaxFEval = budget
		opts.Logger = zl
		if req.AStart != nil {
			opts.AStart = *req.AStart
		}
		if req.M1 != nil {
			opts.M1 = *req.M1
		}
		return steepest.New(opts)
	case "accelgrad":
		opts := accelgrad.Defaults()
		opts.Eps = eps
		opts.MaxFEval = budget
		opts.Logger = zl
		opts.Mon = req.Monotone
		if req.AStart != nil {
			opts.AStart = *req.AStart
		}
		if req.M1 != nil {
			opts.M1 = *req.M1
		}
		switch req.Formula {
		case "", "nesterov":
			opts.WF = accelgrad.FormulaNesterov
		case "fista":
			opts.WF = accelgrad.FormulaFISTA
		case "simple":
			opts.WF = accelgrad.FormulaSimple
		case "accumulated":
			opts.WF = accelgrad.FormulaAccumulated
		default:
			return nil, fmt.Errorf("unknown accelgrad formula %q", req.Formula)
		}
		return accelgrad.New(opts)
	case "bundle":
		opts := bundle.Defaults()
		opts.Eps = eps
		opts.MaxIter = budget
		opts.Logger = zl
		if req.Mu != nil {
			opts.Mu = *req.Mu
		}
		if req.M1 != nil {
			opts.M1 = *req.M1
		}
		return bundle.New(opts)
	case "":
		return nil, fmt.Errorf("solver is required")
	default:
		return nil, fmt.Errorf("unknown solver %q", req.Solver)
	}
}

// PruneJobs drops terminal jobs older than the retention window and
// returns how many were removed.
func (s *Server) PruneJobs() int {
	cutoff := time.Now().Add(-s.cfg.Solver.JobRetention)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	removed := 0
	for id, state := range s.jobs {
		switch state.Status {
		case "completed", "failed", "cancelled":
			if state.LastUpdated.Before(cutoff) {
				delete(s.jobs, id)
				removed++
			}
		}
	}
	return removed
}

// Close marks pending jobs cancelled so queued work does not start
// during shutdown.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, state := range s.jobs {
		if state.Status == "pending" {
			state.cancelled = true
			state.Status = "cancelled"
			now := time.Now()
			state.EndTime = &now
			state.LastUpdated = now
		}
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encoding response failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.logger.Warn("request rejected", map[string]interface{}{
		"status":  status,
		"message": message,
	})
	s.respondJSON(w, status, map[string]string{"error": message})
}
