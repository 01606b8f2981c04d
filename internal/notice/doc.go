// Package notice keeps the notices the UI shows for failed or degraded work.
package notice
