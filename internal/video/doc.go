// Package video connects the lane pipeline to the outside world: ffmpeg
// decoding and encoding, directories of still frames, the live display
// window and the quit key.
//
// ffmpeg and ffprobe must be on PATH for the ffmpeg-backed types.
package video
