// Package scheduler triggers named jobs on cron or interval schedules and
// keeps a job from overlapping with itself.
package scheduler
