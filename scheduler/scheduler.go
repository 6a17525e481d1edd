// Package scheduler runs the hub's periodic maintenance on gocron:
//   - hot cache sweep
//   - durable cache purge
//   - post-close history refresh for watched symbols
//   - realtime hub status log
//   - API rate limiter cleanup
//
// The jobs are registered in jobs.go.
package scheduler
