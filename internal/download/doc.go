// Package download resolves a task's media URL from its source page and
// transfers the file into the download directory.
//
// Transfers write to a ".part" sibling and resume it with a byte-range
// request on the next attempt. The final name only appears once the body
// has been fully received, so an existing final file is always complete.
package download
