// Package transfer downloads direct URLs into the incomplete directory
// using segmented range requests.
//
// A transfer probes the URL once to learn the payload size and whether
// the server honors ranges, splits the payload into per-segment part
// files, and fetches the segments concurrently. Part files survive
// failed attempts, so a retry resumes from the bytes already on disk
// instead of starting over. When every segment lands the parts are
// concatenated in order and verified against the probed size.
package transfer
