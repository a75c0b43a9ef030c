// Package cron schedules recurring and one-shot jobs. A job either
// feeds a prompt to the agent or runs a single tool directly; the
// owner decides via the OnJob handler.
package cron

import (
	"time"

	"github.com/google/uuid"
)

// Schedule kinds.
const (
	KindCron  = "cron"  // seconds-field cron expression
	KindEvery = "every" // fixed interval
	KindAt    = "at"    // one shot at a wall-clock time
)

// Schedule describes when a job fires.
type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	AtMs    int64  `json:"atMs,omitempty"`
}

// Payload is what the job does when it fires. Message runs through
// the agent loop; Tool+Params bypass the model and execute directly.
// Channel and ChatID route the result to a chat surface when set.
type Payload struct {
	Message string         `json:"message,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Channel string         `json:"channel,omitempty"`
	ChatID  string         `json:"chatId,omitempty"`
}

// JobState tracks the last run outcome.
type JobState struct {
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

type CronJob struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"deleteAfterRun,omitempty"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
}

func NewCronJob(name string, schedule Schedule, payload Payload) CronJob {
	return CronJob{
		ID:          uuid.NewString(),
		Name:        name,
		Enabled:     true,
		Schedule:    schedule,
		Payload:     payload,
		CreatedAtMs: time.Now().UnixMilli(),
	}
}
