// Package engine schedules queued tasks onto a bounded pool of download
// workers. Each worker resolves the task's stable reference into a fresh
// direct link, streams the payload through the transfer package, optionally
// unpacks archives, and lands the result in the download directory. Failures
// are classified through the services markers: retryable ones park the task
// as waiting with exponential backoff, terminal ones fail it.
package engine
