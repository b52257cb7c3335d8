package predict

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/product-comb/app/product"
	"github.com/lysyi3m/product-comb/app/threshold"
)

// Thresholds supplies the current threshold engine.
type Thresholds interface {
	Engine() *threshold.Engine
}

type server struct {
	model      Model
	thresholds Thresholds
}

// NewServer serves model over the prediction HTTP surface.
func NewServer(model Model, thresholds Thresholds) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %d %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.StatusCode,
				param.Latency,
			)
		},
		SkipPaths: []string{"/test"},
	}))
	r.Use(gin.Recovery())

	s := &server{model: model, thresholds: thresholds}
	r.GET("/test", s.test)
	r.POST("/", s.predict)
	r.POST("/with_thresholds", s.predictWithThresholds)
	r.POST("/apply_thresholds", s.applyThresholds)

	return r
}

func (s *server) test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "model": s.model.Name()})
}

func (s *server) run(products []Features) []Prediction {
	out := make([]Prediction, 0, len(products))
	for _, f := range products {
		probabilities := s.model.Predict(f)
		category, confidence := ArgMax(probabilities)
		out = append(out, Prediction{
			ID:                f.ID,
			ModelName:         s.model.Name(),
			PredictedCategory: category,
			Confidence:        confidence,
			Probabilities:     probabilities,
		})
	}
	return out
}

func (s *server) threshold(p Prediction, f Features) ThresholdedPrediction {
	c := s.thresholds.Engine().Apply(product.Classification{
		ModelName:         p.ModelName,
		PredictedCategory: p.PredictedCategory,
		Confidence:        p.Confidence,
	}, &threshold.Context{Source: f.Source, Merchant: f.Merchant})

	return ThresholdedPrediction{
		Prediction:          p,
		Threshold:           c.ThresholdUsed,
		CategoryThresholded: c.CategoryAfterThreshold,
	}
}

func (s *server) predict(c *gin.Context) {
	var products []Features
	if err := c.ShouldBindJSON(&products); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.run(products))
}

func (s *server) predictWithThresholds(c *gin.Context) {
	var products []Features
	if err := c.ShouldBindJSON(&products); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	predictions := s.run(products)
	out := make([]ThresholdedPrediction, 0, len(predictions))
	for i, p := range predictions {
		out = append(out, s.threshold(p, products[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) applyThresholds(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	byID := make(map[int64]Features, len(req.ProductData))
	for _, f := range req.ProductData {
		byID[f.ID] = f
	}

	out := make([]ThresholdedPrediction, 0, len(req.ClassificationData))
	for _, p := range req.ClassificationData {
		f, ok := byID[p.ID]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("no product data for id %d", p.ID)})
			return
		}
		out = append(out, s.threshold(p, f))
	}
	c.JSON(http.StatusOK, out)
}
