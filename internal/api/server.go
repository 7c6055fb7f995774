package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/david/opp-radar/internal/auth"
	"github.com/david/opp-radar/internal/cluster"
	"github.com/david/opp-radar/internal/config"
	"github.com/david/opp-radar/internal/db"
	"github.com/david/opp-radar/internal/ingest"
	"github.com/david/opp-radar/internal/scoring"
)

type Server struct {
	Store        *db.Store
	ClusterStore *db.ClusterStore
	AuthService  *auth.Service
	Echo         *echo.Echo
	DB           *pgxpool.Pool

	cfg     config.Config
	intake  *ingest.Intake
	builder *cluster.Builder
	logger  zerolog.Logger
}

func NewServer(pool *pgxpool.Pool, cfg config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	clusterStore := db.NewClusterStore(pool)

	s := &Server{
		DB:           pool,
		Store:        db.NewStore(pool),
		ClusterStore: clusterStore,
		AuthService:  auth.NewService(pool),
		Echo:         e,
		cfg:          cfg,
		intake:       ingest.NewIntake(pool, logger),
		builder:      cluster.NewBuilder(clusterStore, logger),
		logger:       logger,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/opportunities", s.handleListOpportunities)
	api.GET("/opportunities/:id", s.handleGetOpportunity)
	api.GET("/opportunities/:id/cluster", s.handleGetOpportunityCluster)
	api.GET("/clusters/stats", s.handleClusterStats)
	api.POST("/candidates", s.handleSubmitCandidate)

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Admin Routes (rebuild & rescoring)
	admin := api.Group("/admin")
	admin.Use(auth.RequireAuth)
	admin.POST("/clusters/rebuild", s.handleRebuildClusters)
	admin.POST("/opportunities/:id/rescore", s.handleRescoreOpportunity)
	admin.POST("/rescore-all", s.handleRescoreAll)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Email and a password of at least 8 characters are required"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	opps, err := s.Store.ListActive(c.Request().Context(), limit)
	if err != nil {
		c.Logger().Errorf("Failed to list opportunities: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	opp, err := s.Store.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if opp == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, opp)
}

// handleGetOpportunityCluster returns the active-generation cluster the
// record belongs to, or 404 when the record is unclustered.
func (s *Server) handleGetOpportunityCluster(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	detail, err := s.ClusterStore.GetClusterForOpportunity(c.Request().Context(), id)
	if err != nil {
		c.Logger().Errorf("Failed to load cluster: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if detail == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Opportunity is not clustered"})
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleClusterStats(c echo.Context) error {
	stats, err := s.ClusterStore.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// handleSubmitCandidate ingests one candidate record: duplicate check,
// scoring, then insert. Certain duplicates are rejected with the matched
// record attached; possible duplicates are inserted flagged for review.
func (s *Server) handleSubmitCandidate(c echo.Context) error {
	var cand ingest.Candidate
	if err := c.Bind(&cand); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := s.intake.Process(c.Request().Context(), cand)
	if err != nil {
		if errors.Is(err, ingest.ErrMissingTitle) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Title is required"})
		}
		c.Logger().Errorf("Candidate intake failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	if !result.Inserted {
		return c.JSON(http.StatusConflict, result)
	}
	return c.JSON(http.StatusCreated, result)
}

type rebuildRequest struct {
	BatchSize int     `json:"batch_size"`
	Threshold float64 `json:"threshold"`
}

func (s *Server) handleRebuildClusters(c echo.Context) error {
	req := rebuildRequest{
		BatchSize: s.cfg.ClusterBatchSize,
		Threshold: s.cfg.ClusterSimilarityThreshold,
	}
	// Body is optional; defaults come from config.
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		}
	}

	if userID, err := auth.UserIDFromContext(c); err == nil {
		s.logger.Info().
			Str("user_id", userID.String()).
			Int("batch_size", req.BatchSize).
			Float64("threshold", req.Threshold).
			Msg("cluster rebuild requested")
	}

	summary, err := s.builder.Rebuild(c.Request().Context(), req.BatchSize, req.Threshold)
	if err != nil {
		if errors.Is(err, cluster.ErrRebuildInProgress) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "A rebuild is already running"})
		}
		c.Logger().Errorf("Cluster rebuild failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRescoreOpportunity(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid ID"})
	}

	ctx := c.Request().Context()
	opp, err := s.Store.Get(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if opp == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	engine, err := s.loadEngine(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	score, breakdown := engine.Score(*opp, time.Now().UTC())
	if err := s.Store.UpdateScore(ctx, opp.ID, score, breakdown); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	opp.Score = score
	opp.ScoreBreakdown = &breakdown
	return c.JSON(http.StatusOK, opp)
}

// handleRescoreAll recomputes the score of every active record against the
// current rule set.
func (s *Server) handleRescoreAll(c echo.Context) error {
	ctx := c.Request().Context()

	engine, err := s.loadEngine(c)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	opps, err := s.Store.ListActive(ctx, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	now := time.Now().UTC()
	updated := 0
	for _, opp := range opps {
		score, breakdown := engine.Score(opp, now)
		if err := s.Store.UpdateScore(ctx, opp.ID, score, breakdown); err != nil {
			c.Logger().Errorf("Failed to rescore %s: %v", opp.ID, err)
			continue
		}
		updated++
	}

	event := s.logger.Info().Int("updated", updated).Int("total", len(opps))
	if userID, err := auth.UserIDFromContext(c); err == nil {
		event = event.Str("user_id", userID.String())
	}
	event.Msg("bulk rescore finished")
	return c.JSON(http.StatusOK, map[string]int{"updated": updated, "total": len(opps)})
}

func (s *Server) loadEngine(c echo.Context) (*scoring.Engine, error) {
	rules, err := db.NewRuleStore(s.DB).LoadActive(c.Request().Context())
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(rules, s.logger), nil
}
