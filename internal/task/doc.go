// Package task runs canvas generation jobs in the background.
//
// Jobs are never handed to workers directly. Each slot of the WorkerPool
// polls the job store for claimable work, claims one job with a
// compare-and-swap, runs it through the Executor and writes the outcome back
// with another compare-and-swap. A Reaper recovers jobs whose worker stopped
// renewing its lease, and a RetentionSweeper removes old terminal jobs on a
// cron schedule. Runner starts and stops all three together.
package task
