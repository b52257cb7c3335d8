package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/product-comb/app/database"
	"github.com/lysyi3m/product-comb/app/queue"
	"github.com/lysyi3m/product-comb/app/tables"
)

func NewHandler(configCache *tables.ConfigCache, queues Queues, pages database.Pages,
	products database.Products, classifications database.Classifications,
	deadLetters database.DeadLetters) *Handler {
	return &Handler{
		configCache:     configCache,
		queues:          queues,
		pages:           pages,
		products:        products,
		classifications: classifications,
		deadLetters:     deadLetters,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if productCount, err := h.products.GetProductCount(c.Request.Context()); err == nil {
		health["products"] = productCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	queueStats, err := h.queues.Stats(ctx)
	if err != nil {
		slog.Error("Broker error", "operation", "queue_stats", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Broker unavailable"})
		return
	}

	deadLetters, err := h.deadLetters.CountDeadLetters(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_dead_letters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	queues := make([]map[string]interface{}, 0, len(queueStats))
	for _, s := range queueStats {
		queues = append(queues, map[string]interface{}{
			"queue":        s.Queue,
			"depth":        s.Depth,
			"in_flight":    s.InFlight,
			"dead_letters": deadLetters[string(s.Queue)],
		})
	}

	stats := map[string]interface{}{
		"queues": queues,
	}

	if pageStats, err := h.pages.GetPageStats(ctx); err == nil {
		stats["pages"] = pageStats
	}
	if productCount, err := h.products.GetProductCount(ctx); err == nil {
		stats["products"] = productCount
	}
	if decisions, err := h.classifications.GetDecisionCounts(ctx); err == nil {
		stats["classifications"] = decisions
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListTables(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	list := make([]map[string]interface{}, 0, len(configs))
	for _, name := range h.configCache.Names() {
		cfg := configs[name]
		list = append(list, tableInfo(cfg))
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"tables": list,
		"total":  len(list),
	})
}

func tableInfo(cfg *tables.Config) map[string]interface{} {
	return map[string]interface{}{
		"name":      cfg.Name,
		"source":    cfg.Source,
		"country":   cfg.Country,
		"merchant":  cfg.Merchant,
		"extractor": cfg.Extractor,
		"enabled":   cfg.Enabled,
		"schedule":  cfg.Schedule,
		"seeds":     len(cfg.Seeds),
		"feeds":     len(cfg.Feeds),
		"max_depth": cfg.MaxDepth,
		"rate_limit": map[string]interface{}{
			"threshold":           cfg.RateLimit.Threshold,
			"cooldown":            cfg.RateLimit.CooldownDuration().String(),
			"requests_per_second": cfg.RateLimit.RequestsPerSecond,
		},
	}
}

func (h *Handler) APIGetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
		return
	}

	ctx := c.Request.Context()
	rec, err := h.products.GetProduct(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_product", "product_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	classifications, err := h.classifications.GetClassifications(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_classifications", "product_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"product":         rec,
		"classifications": classifications,
	})
}

func (h *Handler) APIListDeadLetters(c *gin.Context) {
	queueName := c.Query("queue")
	if queueName != "" {
		if _, err := queue.ParseName(queueName); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	letters, err := h.deadLetters.ListDeadLetters(c.Request.Context(), queueName, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_dead_letters", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"dead_letters": letters,
		"total":        len(letters),
	})
}

// APIRequeueDeadLetter publishes the stored payload as a new job and removes
// the dead letter.
func (h *Handler) APIRequeueDeadLetter(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dead letter id"})
		return
	}

	ctx := c.Request.Context()
	letter, err := h.deadLetters.GetDeadLetter(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dead letter not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_dead_letter", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	name, err := queue.ParseName(letter.Queue)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	job, err := h.queues.Requeue(ctx, name, letter.Payload)
	if err != nil {
		slog.Error("Error requeueing dead letter", "id", id, "queue", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue job",
			"details": err.Error(),
		})
		return
	}

	if err := h.deadLetters.DeleteDeadLetter(ctx, id); err != nil {
		slog.Error("Database error", "operation", "delete_dead_letter", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Dead letter requeued", "id", id, "queue", name, "old_job_id", letter.JobID, "job_id", job.ID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job": gin.H{
			"id":    job.ID,
			"queue": job.Queue,
		},
	})
}
