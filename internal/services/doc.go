// Package services holds the shared error taxonomy and context annotations
// for external tool collaborators, plus the CLI client subpackages that wrap
// them (modelscope, ffmpeg, webp, transport).
package services
