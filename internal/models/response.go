package models

import "time"

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CaseRequest is the body of POST /api/v1/cases and PUT /api/v1/cases/{caseId}
type CaseRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	CaseType    *string `json:"caseType,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// CaseCreatedResponse is returned by POST /api/v1/cases
type CaseCreatedResponse struct {
	Success bool   `json:"success"`
	CaseID  string `json:"caseId"`
	Message string `json:"message"`
}

// CaseResultResponse is returned by PUT and DELETE /api/v1/cases/{caseId}
type CaseResultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CaseSearchResponse is returned by GET /api/v1/cases/search
type CaseSearchResponse struct {
	Success bool    `json:"success"`
	Cases   []Value `json:"cases"`
	Count   int     `json:"count"`
}
