// Command parallelcam is the operator CLI for Parallel Camera. It works
// directly against the local record store, the configured history mirror and
// the capability gateway; it does not need a running parallelcamd.
package main
