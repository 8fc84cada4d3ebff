// Package transcode wraps the ffmpeg command line so workers can produce
// derived audio formats from a stored original.
//
// It exposes a Client interface and a CLI implementation that shells out to
// ffmpeg with per-format codec arguments, a configurable mp3 bitrate, and an
// optional per-invocation timeout. Tests swap the command constructor to
// avoid executing the real encoder.
package transcode
