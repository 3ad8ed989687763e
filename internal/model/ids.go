// Package model defines the durable entities persisted in the Gobby
// database (projects, sessions, tasks, workflow state, pipeline
// executions, cron jobs, memories, prompts) along with their invariants.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID mints a UUIDv4 string identifier, used for every entity except the
// prefixed ones below.
func NewID() string {
	return uuid.NewString()
}

// NewPipelineExecutionID mints a "pe-" prefixed identifier.
func NewPipelineExecutionID() string {
	return fmt.Sprintf("pe-%s", uuid.NewString())
}

// NewCronJobID mints a "cj-" prefixed identifier.
func NewCronJobID() string {
	return fmt.Sprintf("cj-%s", uuid.NewString())
}

// NewCronRunID mints a "cr-" prefixed identifier.
func NewCronRunID() string {
	return fmt.Sprintf("cr-%s", uuid.NewString())
}

// NewRunID mints a "run-" prefixed identifier for a spawned agent run.
func NewRunID() string {
	return fmt.Sprintf("run-%s", uuid.NewString())
}

// NewToolMetricsID mints a "tm-" prefixed identifier for an MCP tool
// metrics row.
func NewToolMetricsID() string {
	return fmt.Sprintf("tm-%s", uuid.NewString())
}
