package predict

import (
	"errors"
	"sort"
)

// ErrUnavailable is returned when the prediction service cannot be reached
// or fails on its side.
var ErrUnavailable = errors.New("prediction service unavailable")

// Features are the text features of one product.
type Features struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Brand             string `json:"brand,omitempty"`
	Source            string `json:"source,omitempty"`
	Merchant          string `json:"merchant,omitempty"`
	Category          string `json:"category,omitempty"`
	Gender            string `json:"gender,omitempty"`
	ConsumerLifestage string `json:"consumer_lifestage,omitempty"`
}

type Prediction struct {
	ID                int64              `json:"id"`
	ModelName         string             `json:"model_name"`
	PredictedCategory string             `json:"predicted_category"`
	Confidence        float64            `json:"confidence"`
	Probabilities     map[string]float64 `json:"all_predicted_probabilities"`
}

type ThresholdedPrediction struct {
	Prediction
	Threshold           float64 `json:"threshold"`
	CategoryThresholded string  `json:"category_thresholded"`
}

// ApplyRequest is the body of POST /apply_thresholds.
type ApplyRequest struct {
	ProductData        []Features   `json:"product_data"`
	ClassificationData []Prediction `json:"classification_data"`
}

// ArgMax returns the most probable label and its probability. Ties go to
// the lexicographically smallest label.
func ArgMax(probabilities map[string]float64) (string, float64) {
	labels := make([]string, 0, len(probabilities))
	for label := range probabilities {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	best, bestP := "", -1.0
	for _, label := range labels {
		if p := probabilities[label]; p > bestP {
			best, bestP = label, p
		}
	}
	if best == "" {
		return "", 0
	}
	return best, bestP
}
