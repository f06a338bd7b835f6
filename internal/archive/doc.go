// Package archive packs processed frame directories into tar archives with
// a free-space gate and post-write verification.
package archive
