// Package ffmpeg wraps the ffmpeg and ffprobe binaries for AV1/MKV
// encoding, scene-change detection, and per-scene frame extraction.
package ffmpeg
