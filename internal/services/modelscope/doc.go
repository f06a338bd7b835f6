// Package modelscope wraps the modelscope CLI for dataset repository access:
// manifest-based listing, per-file downloads, and artifact uploads.
package modelscope
