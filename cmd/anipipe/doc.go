// Command anipipe discovers animation videos on a dataset repository and
// drives them through download, AV1/MKV encoding, scene-frame extraction,
// WebP archiving, and upload.
package main
