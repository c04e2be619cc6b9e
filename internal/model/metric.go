package model

import "time"

type MetricEvent struct {
	Time       time.Time         `json:"time"`
	MetricName string            `json:"metric_name"`
	Unit       string            `json:"unit"`
	Tags       map[string]string `json:"tags"`
}
