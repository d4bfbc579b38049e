// api/handlers/dataset_handlers.go
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shoplens/api/engine"
	"shoplens/api/loader"
	"shoplens/api/metrics"
	"shoplens/api/models"
	"shoplens/api/store"
)

const dateLayout = "2006-01-02"

type DatasetHandlers struct {
	Store          *store.DatasetStore
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MaxUploadBytes int64
}

func NewDatasetHandlers(s *store.DatasetStore, logger *zap.Logger, m *metrics.Metrics, maxUploadBytes int64) *DatasetHandlers {
	return &DatasetHandlers{
		Store:          s,
		Logger:         logger,
		Metrics:        m,
		MaxUploadBytes: maxUploadBytes,
	}
}

// Upload accepts a multipart "file" zip archive, loads it into a new
// immutable dataset and returns its id plus headline statistics.
func (h *DatasetHandlers) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart 'file' field is required"})
		return
	}
	if fileHeader.Size > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "archive exceeds the upload size limit"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		h.Logger.Error("opening uploaded archive", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		h.Logger.Error("reading uploaded archive", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	if int64(len(data)) > h.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "archive exceeds the upload size limit"})
		return
	}

	start := time.Now()
	events, err := loader.LoadBytes(data)
	if err != nil {
		var formatErr *loader.FormatError
		var dataErr *loader.DataError
		switch {
		case errors.As(err, &formatErr):
			h.Metrics.RecordLoad("format_error", 0, 0)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &dataErr):
			h.Metrics.RecordLoad("data_error", 0, 0)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.Logger.Error("loading dataset", zap.String("file", fileHeader.Filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load dataset"})
		}
		return
	}

	ds := engine.NewDataset(events)
	info := h.Store.Put(fileHeader.Filename, ds)
	h.Metrics.RecordLoad("loaded", ds.Len(), time.Since(start))
	h.Metrics.SetActiveDatasets(h.Store.Count())

	h.Logger.Info("dataset loaded",
		zap.String("dataset_id", info.ID),
		zap.String("file", fileHeader.Filename),
		zap.Int("rows", info.Rows),
		zap.Duration("duration", time.Since(start)),
	)

	c.JSON(http.StatusCreated, gin.H{
		"dataset": info,
		"summary": ds.Summary(),
	})
}

// List returns metadata for every loaded dataset, oldest first.
func (h *DatasetHandlers) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.List())
}

// Delete drops a loaded dataset.
func (h *DatasetHandlers) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.Store.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return
	}
	h.Metrics.SetActiveDatasets(h.Store.Count())
	h.Logger.Info("dataset deleted", zap.String("dataset_id", id))
	c.Status(http.StatusNoContent)
}

func (h *DatasetHandlers) Summary(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	start := time.Now()
	stats := ds.Summary()
	h.Metrics.RecordQuery("summary", time.Since(start))
	c.JSON(http.StatusOK, stats)
}

func (h *DatasetHandlers) MonthlyTotals(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	start := time.Now()
	totals := ds.MonthlyTotals()
	h.Metrics.RecordQuery("monthly_totals", time.Since(start))
	c.JSON(http.StatusOK, totals)
}

// TopCategories serves the category leaderboard. The defaults mirror the
// dashboard's "top 5 categories with most purchases" widget.
func (h *DatasetHandlers) TopCategories(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}

	metric, ok := h.metricParam(c, "top_categories")
	if !ok {
		return
	}

	limit := 5
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil {
			h.Metrics.RecordQueryError("top_categories")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter, must be a positive integer"})
			return
		}
		limit = parsed
	}

	start := time.Now()
	totals, err := ds.TopCategories(metric, limit)
	if err != nil {
		h.rejectQuery(c, "top_categories", err)
		return
	}
	h.Metrics.RecordQuery("top_categories", time.Since(start))
	c.JSON(http.StatusOK, totals)
}

func (h *DatasetHandlers) AtRiskProducts(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}

	threshold := engine.DefaultRiskThreshold
	if thresholdParam := c.Query("threshold"); thresholdParam != "" {
		parsed, err := strconv.ParseFloat(thresholdParam, 64)
		if err != nil || parsed < 0 {
			h.Metrics.RecordQueryError("at_risk")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'threshold' parameter, must be a non-negative number"})
			return
		}
		threshold = parsed
	}

	start := time.Now()
	risks := ds.AtRiskProducts(threshold)
	h.Metrics.RecordQuery("at_risk", time.Since(start))
	c.JSON(http.StatusOK, risks)
}

func (h *DatasetHandlers) DailyPurchases(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	start := time.Now()
	totals := ds.DailyPurchases()
	h.Metrics.RecordQuery("daily_purchases", time.Since(start))
	c.JSON(http.StatusOK, totals)
}

func (h *DatasetHandlers) UserDailyPurchases(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	userID := c.Param("userID")

	start := time.Now()
	series := ds.UserDailyPurchases(userID)
	h.Metrics.RecordQuery("user_daily_purchases", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"series": series,
	})
}

// MainCategories serves the distinct top-level categories the frontend uses
// to populate its filter controls.
func (h *DatasetHandlers) MainCategories(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}
	start := time.Now()
	cats := ds.MainCategories()
	h.Metrics.RecordQuery("main_categories", time.Since(start))
	c.JSON(http.StatusOK, cats)
}

// CrossTab serves the filtered overview table. start/end default to the
// dataset's own first and last day, matching the dashboard's date pickers.
func (h *DatasetHandlers) CrossTab(c *gin.Context) {
	ds, ok := h.dataset(c)
	if !ok {
		return
	}

	metric, ok := h.metricParam(c, "crosstab")
	if !ok {
		return
	}

	first, last, hasBounds := ds.TimeBounds()
	filter := models.CrossTabFilter{Start: first, End: last, Metric: metric}

	if startParam := c.Query("start"); startParam != "" {
		t, err := time.Parse(dateLayout, startParam)
		if err != nil {
			h.Metrics.RecordQueryError("crosstab")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'start' date, use YYYY-MM-DD"})
			return
		}
		filter.Start = t
	}
	if endParam := c.Query("end"); endParam != "" {
		t, err := time.Parse(dateLayout, endParam)
		if err != nil {
			h.Metrics.RecordQueryError("crosstab")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'end' date, use YYYY-MM-DD"})
			return
		}
		filter.End = t
	}
	if !hasBounds && (c.Query("start") == "" || c.Query("end") == "") {
		// Empty table and no explicit range: nothing can match.
		c.JSON(http.StatusOK, []models.CrossTabRow{})
		return
	}

	if categoriesParam := c.Query("categories"); categoriesParam != "" {
		for _, cat := range strings.Split(categoriesParam, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				filter.MainCategories = append(filter.MainCategories, cat)
			}
		}
	}

	start := time.Now()
	rows, err := ds.CrossTab(filter)
	if err != nil {
		h.rejectQuery(c, "crosstab", err)
		return
	}
	h.Metrics.RecordQuery("crosstab", time.Since(start))
	c.JSON(http.StatusOK, rows)
}

// dataset resolves the :id path parameter; on failure it writes the 404
// response itself.
func (h *DatasetHandlers) dataset(c *gin.Context) (*engine.Dataset, bool) {
	id := c.Param("id")
	ds, ok := h.Store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "dataset not found"})
		return nil, false
	}
	return ds, true
}

// metricParam parses the metric selector, defaulting to purchase like the
// dashboard's display toggle.
func (h *DatasetHandlers) metricParam(c *gin.Context, operation string) (models.Metric, bool) {
	metricParam := c.DefaultQuery("metric", string(models.MetricPurchase))
	metric, err := models.ParseMetric(metricParam)
	if err != nil {
		h.Metrics.RecordQueryError(operation)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return metric, true
}

// rejectQuery maps engine errors to HTTP responses.
func (h *DatasetHandlers) rejectQuery(c *gin.Context, operation string, err error) {
	h.Metrics.RecordQueryError(operation)
	var rangeErr *engine.RangeError
	if errors.As(err, &rangeErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Logger.Error("aggregation query failed", zap.String("operation", operation), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute statistics"})
}
