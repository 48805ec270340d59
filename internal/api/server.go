package api

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kamilvitek/oslavu-engine/internal/conflict"
	"github.com/kamilvitek/oslavu-engine/internal/models"
)

// Server exposes the analysis pipeline over HTTP. It carries no state of
// its own; everything lives in the injected analyzer.
type Server struct {
	Echo     *echo.Echo
	analyzer *conflict.Analyzer
}

func NewServer(analyzer *conflict.Analyzer) *Server {
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
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{Echo: e, analyzer: analyzer}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.POST("/api/analyze", s.handleAnalyze)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// AnalyzeRequest is the POST /api/analyze payload.
type AnalyzeRequest struct {
	Event            models.Event `json:"event"`
	StartDate        string       `json:"start_date"` // YYYY-MM-DD
	EndDate          string       `json:"end_date"`   // YYYY-MM-DD
	Region           string       `json:"region,omitempty"`
	AdvancedAnalysis bool         `json:"enable_advanced_analysis"`
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.Event.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event title is required")
	}
	if req.Event.City == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event city is required")
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return echo.NewHTTPError(http.StatusBadRequest, "end_date is before start_date")
	}

	result, err := s.analyzer.AnalyzeConflicts(c.Request().Context(), conflict.Request{
		Event:    req.Event,
		Start:    start,
		End:      end,
		Region:   req.Region,
		Advanced: req.AdvancedAnalysis,
	})
	if err != nil {
		c.Logger().Errorf("analysis failed: %v", err)
		return echo.NewHTTPError(http.StatusBadGateway, "analysis failed")
	}

	return c.JSON(http.StatusOK, result)
}
