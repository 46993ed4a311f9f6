package models

import "time"

// Response status constants
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// BaseResponse represents common response fields for non-chat endpoints
type BaseResponse struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
