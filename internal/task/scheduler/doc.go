// Package scheduler triggers named jobs on cron or interval schedules.
//
// It is the host clock for schedbot: the app registers one minute-cadence
// "tick" job that runs the schedule runner for every configured account.
package scheduler
