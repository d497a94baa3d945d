package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"web/denscan/cluster"
	"web/denscan/runner"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const scanSaveDir = "data/scans"

const maxLiveScans = 16

type createScanRequest struct {
	NumPoints int             `json:"numPoints"`
	Points    []cluster.Point `json:"points"`
	Epsilon   float64         `json:"epsilon"`
	MinPoints int             `json:"minPoints"`
	Seed      int64           `json:"seed"`
	UseIndex  bool            `json:"useIndex"`
	Bounds    *cluster.Bounds `json:"bounds"`
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	scans, err := runner.NewScanRunner(maxLiveScans, scanSaveDir, log)
	if err != nil {
		log.Fatal("failed to initialize scan runner", zap.Error(err))
	}

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Create a new scan from explicit points or generated test data
	r.POST("/api/scans", func(c *gin.Context) {
		var req createScanRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}

		points := req.Points
		if len(points) == 0 {
			if req.NumPoints <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Provide points or a positive numPoints"})
				return
			}
			bounds := cluster.Bounds{MinX: -100, MinY: -100, MaxX: 100, MaxY: 100}
			if req.Bounds != nil {
				bounds = *req.Bounds
			}
			points = cluster.GenerateTestPoints(req.NumPoints, bounds, req.Seed)
		}

		id, err := scans.CreateScan(points, cluster.ScanOptions{
			Epsilon:   req.Epsilon,
			MinPoints: req.MinPoints,
			Seed:      req.Seed,
			UseIndex:  req.UseIndex,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": id, "numPoints": len(points)})
	})

	// Latest snapshot as GeoJSON
	r.GET("/api/scans/:id", func(c *gin.Context) {
		it, done, err := scans.Current(c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, runner.ErrScanNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if it == nil {
			c.JSON(http.StatusOK, gin.H{"order": 0, "done": false,
				"geojson": cluster.FeatureCollection{Type: "FeatureCollection"}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":   it.Order,
			"done":    done,
			"geojson": it.ToGeoJSON(),
		})
	})

	// Advance one iteration
	r.POST("/api/scans/:id/step", func(c *gin.Context) {
		it, done, err := scans.Step(c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, runner.ErrScanNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":   iterationOrder(it),
			"done":    done,
			"geojson": iterationGeoJSON(it),
		})
	})

	// Drive to completion
	r.POST("/api/scans/:id/run", func(c *gin.Context) {
		it, err := scans.Run(c.Param("id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, runner.ErrScanNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"order":   iterationOrder(it),
			"done":    true,
			"geojson": iterationGeoJSON(it),
		})
	})

	// Partition statistics for the latest snapshot
	r.GET("/api/scans/:id/summary", func(c *gin.Context) {
		summary, err := scans.Summary(c.Param("id"))
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, runner.ErrScanNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	// List saved scan files
	r.GET("/api/scans/list", func(c *gin.Context) {
		infos, err := scans.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, infos)
	})

	// Persist a live scan
	r.POST("/api/scans/:id/save", func(c *gin.Context) {
		path, err := scans.Save(c.Param("id"))
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, runner.ErrScanNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Scan saved", "path": path})
	})

	// Restore a saved scan under a fresh live ID
	r.POST("/api/scans/load/:id", func(c *gin.Context) {
		id, err := scans.Load(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Scan loaded", "id": id})
	})

	// Create a channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server on :8000")
		if err := r.Run(":8000"); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	<-quit
	log.Info("shutting down server")
}

func iterationOrder(it *cluster.Iteration) int {
	if it == nil {
		return 0
	}
	return it.Order
}

func iterationGeoJSON(it *cluster.Iteration) *cluster.FeatureCollection {
	if it == nil {
		return &cluster.FeatureCollection{Type: "FeatureCollection"}
	}
	return it.ToGeoJSON()
}
