// Package webp wraps the cwebp binary for lossy frame compression with an
// aspect-preserving maximum edge cap.
package webp
