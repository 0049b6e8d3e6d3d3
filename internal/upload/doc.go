// Package upload delivers downloaded files into the remote store.
//
// Two backends exist: Filesystem writes into a mounted share and HTTP talks
// to a WebDAV-style server. Both place files under stage.TargetFolderFor
// and report stage.Duplicate when a non-empty file with the same name is
// already present.
package upload
