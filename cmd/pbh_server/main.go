// Backtest service: serves PBH strategy runs over gRPC and HTTP, reads
// bars from ClickHouse, and exposes Prometheus metrics.
package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"pbh-backtest/proto"
	"pbh-backtest/services/clickhouse"
	"pbh-backtest/services/config"
	"pbh-backtest/services/engine"
	"pbh-backtest/services/monitoring"
	"pbh-backtest/strategies"
)

const engineVersion = "pbh-backtest/1.0"

type server struct {
	proto.UnimplementedStrategyServiceServer

	cfg     *config.Config
	ch      *clickhouse.Client
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

type symbolJob struct {
	symbol string
	req    *proto.RunRequest
}

type symbolOutcome struct {
	result *proto.SymbolResult
	err    error
}

// ExecuteRun backtests every requested symbol, fanning the work out to
// a bounded pool so a wide universe does not serialize on one core.
func (s *server) ExecuteRun(ctx context.Context, req *proto.RunRequest) (*proto.RunResponse, error) {
	jobID := uuid.New().String()
	started := time.Now()

	symbols := req.Symbols
	if len(symbols) == 0 {
		var err error
		symbols, err = s.ch.Symbols(ctx, req.Interval)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
	}
	s.logger.Info("run accepted",
		zap.String("job_id", jobID),
		zap.Int("symbols", len(symbols)),
		zap.String("interval", req.Interval),
	)

	workers := s.cfg.Engine.MaxWorkers
	if workers <= 0 || workers > len(symbols) {
		workers = len(symbols)
	}

	jobChan := make(chan symbolJob, len(symbols))
	outChan := make(chan symbolOutcome, len(symbols))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				res, err := s.runSymbol(ctx, job)
				outChan <- symbolOutcome{result: res, err: err}
			}
		}()
	}
	for _, sym := range symbols {
		jobChan <- symbolJob{symbol: sym, req: req}
	}
	close(jobChan)
	wg.Wait()
	close(outChan)

	resp := &proto.RunResponse{
		JobId: jobID,
		Manifest: &proto.RunManifest{
			JobId:         jobID,
			EngineVersion: engineVersion,
			ConfigDigest:  configDigest(req.ConfigPath),
			CreatedAt:     started.UnixMilli(),
		},
	}
	var firstErr error
	for out := range outChan {
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		resp.SymbolResults = append(resp.SymbolResults, out.result)
	}
	resp.ExecutionTimeMs = time.Since(started).Milliseconds()
	if firstErr != nil && len(resp.SymbolResults) == 0 {
		return nil, firstErr
	}
	return resp, nil
}

func (s *server) runSymbol(ctx context.Context, job symbolJob) (*proto.SymbolResult, error) {
	started := time.Now()

	bars, err := s.ch.QueryBars(ctx, job.symbol, job.req.Interval, job.req.StartTime, job.req.EndTime)
	if err != nil {
		s.metrics.ObserveRun(time.Since(started), 0, 0, err)
		return nil, fmt.Errorf("%s: query bars: %w", job.symbol, err)
	}
	if _, err := strategies.CheckFeed(bars, s.logger); err != nil {
		s.metrics.ObserveRun(time.Since(started), len(bars), 0, err)
		return nil, fmt.Errorf("%s: %w", job.symbol, err)
	}

	cfg := strategies.DefaultPBHConfig()
	if job.req.ConfigPath != "" {
		cfg, err = strategies.LoadPBHConfig(job.req.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("%s: strategy config: %w", job.symbol, err)
		}
	}
	cfg.Symbol = job.symbol

	strat, err := strategies.NewPBHStrategy(cfg, engine.NewSimBroker(), s.logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", job.symbol, err)
	}
	res, err := strat.Run(bars)
	if err != nil {
		s.metrics.ObserveRun(time.Since(started), len(bars), 0, err)
		return nil, fmt.Errorf("%s: run: %w", job.symbol, err)
	}
	s.metrics.ObserveRun(time.Since(started), len(bars), len(res.Trades), nil)
	s.metrics.OrdersSubmitted.Add(float64(res.Summary.EntriesPlacedTotal))
	s.metrics.OrdersRejected.Add(float64(res.Summary.RejectedOrderCount))
	return toSymbolResult(res), nil
}

// configDigest hashes the strategy parameter file so a manifest pins
// the exact configuration a run used. "defaults" means no file.
func configDigest(path string) string {
	if path == "" {
		return "defaults"
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "unreadable"
	}
	return fmt.Sprintf("sha256:%x", sha256.Sum256(b))
}

func toSymbolResult(res *strategies.RunResult) *proto.SymbolResult {
	out := &proto.SymbolResult{
		Symbol: res.Symbol,
		Summary: &proto.Summary{
			TotalTrades:        int32(res.Summary.TotalTrades),
			Wins:               int32(res.Summary.Wins),
			Losses:             int32(res.Summary.Losses),
			WinRate:            res.Summary.WinRate.String(),
			NetPnlUsd:          res.Summary.NetPnlUsd.String(),
			ProfitFactor:       res.Summary.ProfitFactor.String(),
			Expectancy:         res.Summary.Expectancy.String(),
			MaxDrawdown:        res.Summary.MaxDrawdown.String(),
			AvgRMultiple:       res.Summary.AvgRMultiple.String(),
			EntriesPlacedTotal: int32(res.Summary.EntriesPlacedTotal),
			EntriesFilledTotal: int32(res.Summary.EntriesFilledTotal),
		},
	}
	for _, t := range res.Trades {
		out.Trades = append(out.Trades, &proto.TradeRecord{
			Symbol:     t.Symbol,
			Side:       t.Side.String(),
			EntryTime:  t.EntryTime,
			EntryPrice: t.EntryPrice.String(),
			ExitTime:   t.ExitTime,
			ExitPrice:  t.ExitPrice.String(),
			ExitReason: t.ExitReason,
			Quantity:   t.Quantity.String(),
			PnlUsd:     t.PnlUsd.String(),
			RMultiple:  t.RMultiple.String(),
			BarsHeld:   int32(t.BarsHeld),
		})
	}
	for _, p := range res.Equity {
		out.EquityCurve = append(out.EquityCurve, &proto.EquityPoint{
			Timestamp: p.Timestamp,
			Equity:    p.Equity.String(),
			Drawdown:  p.Drawdown.String(),
		})
	}
	return out
}

func (s *server) httpRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "engine": engineVersion})
	})
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/symbols", func(c *gin.Context) {
		symbols, err := s.ch.Symbols(c.Request.Context(), c.DefaultQuery("interval", "5m"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"symbols": symbols})
	})
	router.POST("/run", func(c *gin.Context) {
		var req proto.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp, err := s.ExecuteRun(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	})
	return router
}

func main() {
	cfgPath := flag.String("config", "", "Service YAML config path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
	if err != nil {
		logger.Fatal("clickhouse", zap.Error(err))
	}
	defer ch.Close()

	srv := &server{cfg: cfg, ch: ch, metrics: monitoring.NewMetrics(), logger: logger}

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		logger.Fatal("grpc listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	proto.RegisterStrategyServiceServer(grpcServer, srv)
	reflection.Register(grpcServer)

	go func() {
		logger.Info("grpc listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: srv.httpRouter(),
	}
	go func() {
		logger.Info("http listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}
