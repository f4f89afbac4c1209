package http

import (
	"github.com/fyrsmithlabs/tracelog/internal/stats"
	"github.com/fyrsmithlabs/tracelog/pkg/diff"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Telemetry string `json:"telemetry,omitempty"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Methods      []stats.MethodStats `json:"methods"`
	SinkFailures uint64              `json:"sink_failures"`
}

// SettingsResponse is the response body for GET /api/v1/settings.
type SettingsResponse struct {
	MinLevel           string `json:"min_level"`
	Environment        string `json:"environment"`
	LogParameters      bool   `json:"log_parameters"`
	LogReturnValues    bool   `json:"log_return_values"`
	LogExecutionTime   bool   `json:"log_execution_time"`
	TrackDataChanges   bool   `json:"track_data_changes"`
	MaxComparisonDepth int    `json:"max_comparison_depth"`
	MaxObjectDepth     int    `json:"max_object_depth"`
	MaxStringLength    int    `json:"max_string_length"`
	MaxCollectionItems int    `json:"max_collection_items"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string         `json:"content"`
	FindingsCount int            `json:"findings_count"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// RenderRequest is the request body for POST /api/v1/render. Name, when set,
// is matched against the redaction policy like a parameter name.
type RenderRequest struct {
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// RenderResponse is the response body for POST /api/v1/render.
type RenderResponse struct {
	Value rendered.Value `json:"value"`
	Text  string         `json:"text"`
}

// DiffRequest is the request body for POST /api/v1/diff. A zero Depth uses
// the configured comparison depth.
type DiffRequest struct {
	Before any `json:"before"`
	After  any `json:"after"`
	Depth  int `json:"depth,omitempty"`
}

// DiffResponse is the response body for POST /api/v1/diff.
type DiffResponse struct {
	Changes []diff.ChangeRecord `json:"changes"`
}
