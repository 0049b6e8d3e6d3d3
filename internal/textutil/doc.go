// Package textutil normalizes listing titles into content identifiers and
// filesystem-safe names.
package textutil
