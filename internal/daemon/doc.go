// Package daemon runs the long-lived hackercast process.
//
// It enforces single-instance execution with a file lock, schedules the
// daily batch through cron, and exposes the queue maintenance operations the
// IPC layer serves to the CLI. Stage logic lives in the workflow manager;
// the daemon owns startup, shutdown, and the operator surface around a run.
package daemon
