// Package transporthttp 暴露掃描、回測與數據管理的 HTTP API。
package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chihung1024/back-test/internal/backtest"
	"github.com/chihung1024/back-test/internal/dataset"
	"github.com/chihung1024/back-test/internal/metric"
	"github.com/chihung1024/back-test/internal/render"
	"github.com/chihung1024/back-test/internal/scan"
)

// Server 聚合各业务服务并提供路由。
type Server struct {
	addr     string
	scan     *scan.Service
	backtest *backtest.Service
	data     *dataset.Service
	metrics  *metric.Registry
	router   *gin.Engine
}

// Config 描述 HTTP Server 的依赖。
type Config struct {
	Addr     string
	Scan     *scan.Service
	Backtest *backtest.Service
	Data     *dataset.Service
	Metrics  *metric.Registry
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Scan == nil || cfg.Backtest == nil || cfg.Data == nil || cfg.Metrics == nil {
		return nil, errors.New("scan/backtest/data/metrics 依賴不能為空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9992"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		scan:     cfg.Scan,
		backtest: cfg.Backtest,
		data:     cfg.Data,
		metrics:  cfg.Metrics,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/scan", s.handleScan)

	bt := api.Group("/backtest")
	bt.POST("/runs", s.handleRunStart)
	bt.GET("/runs", s.handleRunList)
	bt.GET("/runs/:id", s.handleRunDetail)
	bt.GET("/runs/:id/chart", s.handleRunChart)

	data := api.Group("/data")
	data.POST("/fetch", s.handleFetch)
	data.GET("/fetch/:id", s.handleFetchStatus)
	data.GET("/jobs", s.handleJobs)
	data.GET("/manifest", s.handleManifest)
}

type scanRequest struct {
	scan.Request
	// "metrics" 時行為指標、列為股票；預設行為股票。
	Orientation string `json:"orientation"`
}

func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := s.scan.Scan(c.Request.Context(), req.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orientation := render.RowsAreEntities
	if strings.EqualFold(strings.TrimSpace(req.Orientation), "metrics") {
		orientation = render.RowsAreMetrics
	}
	snap := s.metrics.Snapshot()
	grid, err := outcome.Grid(snap.Definitions, snap.Formatters(), orientation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": outcome.Results, "grid": grid})
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req backtest.RunConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.backtest.StartRun(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	// limit 缺省交给服务层取配置默认值。
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	runs, err := s.backtest.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	run, err := s.backtest.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, backtest.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (s *Server) handleRunChart(c *gin.Context) {
	id := c.Param("id")
	format := strings.ToLower(c.DefaultQuery("format", "png"))
	switch format {
	case "html":
		html, err := s.backtest.ChartHTML(id)
		if err != nil {
			s.chartError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", html)
	case "png":
		png, err := s.backtest.ChartPNG(c.Request.Context(), id)
		if err != nil {
			s.chartError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/png", png)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format 僅支持 png/html"})
	}
}

func (s *Server) chartError(c *gin.Context, err error) {
	if errors.Is(err, backtest.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleFetch(c *gin.Context) {
	var req struct {
		Ticker string `json:"ticker" binding:"required"`
		Start  string `json:"start"`
		End    string `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.data.SubmitFetch(dataset.FetchParams{
		Ticker: req.Ticker,
		Start:  req.Start,
		End:    req.End,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) handleFetchStatus(c *gin.Context) {
	job, ok := s.data.JobSnapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

func (s *Server) handleJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.data.JobsSnapshot()})
}

func (s *Server) handleManifest(c *gin.Context) {
	ticker := c.Query("ticker")
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker 必填"})
		return
	}
	info, err := s.data.ManifestInfo(c.Request.Context(), ticker)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
