package model

// Performance holds the metrics from analyzing one extraction, either
// against ground truth or by self-evaluation when none exists.
//
// All ratio fields are in [0,1]. When a denominator is zero the metric is
// 0.0, never NaN.
type Performance struct {
	Accuracy      float64  `json:"accuracy"`
	Coverage      float64  `json:"coverage"`
	Precision     float64  `json:"precision"`
	Recall        float64  `json:"recall"`
	F1Score       float64  `json:"f1_score"`
	Errors        []string `json:"errors,omitempty"`
	MissingFields []string `json:"missing_fields,omitempty"`
}
