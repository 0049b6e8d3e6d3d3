// Package stage defines the collaborator contracts the workflow drives:
// a Downloader that produces a local file and an Uploader that delivers it.
// It also hosts the target folder naming rule shared by uploaders.
package stage
