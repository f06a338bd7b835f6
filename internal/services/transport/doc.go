// Package transport copies published artifacts to a remote host over SSH,
// preferring rsync with an scp fallback and size-verified pushes.
package transport
