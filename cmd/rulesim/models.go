package main

import (
	"github.com/liamcoop/rulesim/rules"
)

// API request and response models.

// InitializeRequest selects the source set to initialize the engine with.
type InitializeRequest struct {
	SourceSet string `json:"sourceSet"`
}

// SimulateRequest runs a rule against one source set file.
type SimulateRequest struct {
	Rule     *rules.Rule `json:"rule"`
	FileName string      `json:"fileName"`
}

// SimulateContentRequest runs a rule against inline content.
type SimulateContentRequest struct {
	Rule     *rules.Rule `json:"rule"`
	FileName string      `json:"fileName"`
	Content  string      `json:"content"`
}

// SimulateGlobalRequest runs a rule against the aggregate corpus view,
// optionally with injected files layered on top.
type SimulateGlobalRequest struct {
	Rule            *rules.Rule       `json:"rule"`
	AdditionalFiles map[string]string `json:"additionalFiles,omitempty"`
}

// FilesResponse lists the loaded corpus files.
type FilesResponse struct {
	Files []string `json:"files"`
}

// HealthResponse reports the engine lifecycle state.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}
