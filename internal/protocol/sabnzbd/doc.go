// Package sabnzbd presents the task queue as a SABnzbd download client.
// Tools that drive SABnzbd get the mode-selected JSON API they expect:
// version probe, addurl/addid, queue and history listings, per-item and
// global pause/resume, and delete. Every operation maps onto the engine's
// own task operations, so the façade cannot bypass transition rules.
package sabnzbd
