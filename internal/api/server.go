package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/The-culture-connection/rfpueen/internal/db"
	"github.com/The-culture-connection/rfpueen/internal/match"
	"github.com/The-culture-connection/rfpueen/internal/models"
)

// statsStore is the slice of db.Store the stats endpoint needs.
type statsStore interface {
	CollectionStats(ctx context.Context) (map[string]int, error)
	RecentSyncRuns(ctx context.Context, limit int) ([]db.SyncRun, error)
}

type Server struct {
	Echo *echo.Echo
	DB   *pgxpool.Pool

	engine      *match.Engine
	stats       statsStore
	collections *match.CollectionMap
}

func NewServer(pool *pgxpool.Pool) (*Server, error) {
	collections, err := match.LoadCollectionMap(os.Getenv("COLLECTIONS_CONFIG"))
	if err != nil {
		return nil, err
	}

	store := db.NewStore(pool)
	engine := match.NewEngine(store, store, collections)

	s := newServer(engine, store, collections)
	s.DB = pool
	return s, nil
}

// newServer wires routes over already-built collaborators so tests can
// inject an engine backed by fakes.
func newServer(engine *match.Engine, stats statsStore, collections *match.CollectionMap) *Server {
	e := echo.New()
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
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{
		Echo:        e,
		engine:      engine,
		stats:       stats,
		collections: collections,
	}
	s.routes()
	return s
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.POST("/opportunities/match", s.handleMatch)
	api.POST("/opportunities/winrate", s.handleWinRate)
	api.GET("/collections", s.handleCollections)
	api.GET("/stats", s.handleStats)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// matchRequest is a search profile plus the optional caller identity used
// for applied/saved filtering.
type matchRequest struct {
	models.Profile
	UserID string `json:"userId"`
}

func (s *Server) handleMatch(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	resp, err := s.engine.FindMatches(c.Request().Context(), req.Profile, req.UserID)
	if err != nil {
		if errors.Is(err, match.ErrInvalidRequest) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "fundingTypes is required"})
		}
		c.Logger().Errorf("match failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to find matches"})
	}
	return c.JSON(http.StatusOK, resp)
}

// winRateRequest carries a raw opportunity document so callers can pass a
// listing through unchanged; matchScore defaults to 0 when omitted.
type winRateRequest struct {
	Opportunity map[string]interface{} `json:"opportunity"`
	Profile     models.Profile         `json:"profile"`
	MatchScore  float64                `json:"matchScore"`
}

func (s *Server) handleWinRate(c echo.Context) error {
	var req winRateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if len(req.Opportunity) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "opportunity is required"})
	}

	opp, err := models.DecodeOpportunity(req.Opportunity)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid opportunity document"})
	}

	result := s.engine.WinRate(opp, req.Profile, req.MatchScore)
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"fundingTypes": s.collections.FundingTypes,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := s.stats.CollectionStats(ctx)
	if err != nil {
		c.Logger().Errorf("collection stats failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load stats"})
	}

	runs, err := s.stats.RecentSyncRuns(ctx, 5)
	if err != nil {
		c.Logger().Errorf("recent sync runs failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load stats"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"collections":    counts,
		"recentSyncRuns": runs,
	})
}
