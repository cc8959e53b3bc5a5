// Package cron runs the periodic background work of a parserdesk server:
// reaping idle design sessions and autosaving the ones bound to a saved
// parser.
package cron

import "context"

// Job is a unit of periodic work, such as session_cleanup or autosave.
type Job interface {
	// Name identifies the job in logs and metrics. Names are unique per
	// scheduler.
	Name() string

	// Schedule is a standard 5-field cron expression or a descriptor
	// such as "@every 5m".
	Schedule() string

	// Run does one pass. The scheduler never overlaps runs of the same
	// job, and ctx is cancelled on shutdown.
	Run(ctx context.Context) error
}
