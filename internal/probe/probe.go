// Package probe extracts container/stream metadata from an uploaded asset
// ahead of transcoding. It is a thin, direct descendant of the teacher's
// probe.go - narrowed to exactly this one responsibility, since the rest of
// that package's ffmpeg-invocation machinery has been replaced by
// internal/runner and internal/synth.
package probe

import (
	"fmt"
	"strconv"

	"github.com/floostack/transcoder/ffmpeg"
)

// Config mirrors the subset of ffmpeg.Configuration the prober needs.
type Config struct {
	FfmpegBinPath  string
	FfprobeBinPath string
}

type StreamInfo struct {
	CodecType string
	CodecName string
	Width     int
	Height    int
}

// MediaInfo is the probe result returned by Prober.Probe and served by the
// /api/file-info handler.
type MediaInfo struct {
	FormatName      string
	DurationSeconds float64
	Streams         []StreamInfo
}

func (m *MediaInfo) HasVideoStream() bool {
	for _, s := range m.Streams {
		if s.CodecType == "video" {
			return true
		}
	}
	return false
}

func (m *MediaInfo) HasAudioStream() bool {
	for _, s := range m.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

type Prober struct {
	cfg ffmpeg.Configuration
}

func New(cfg Config) *Prober {
	return &Prober{cfg: &ffmpeg.Config{
		FfmpegBinPath:  cfg.FfmpegBinPath,
		FfprobeBinPath: cfg.FfprobeBinPath,
	}}
}

// Probe extracts duration, format and per-stream metadata for the file at
// path using ffprobe.
func (p *Prober) Probe(path string) (*MediaInfo, error) {
	transcoder := ffmpeg.New(p.cfg)
	if err := transcoder.Initialize(path, ""); err != nil {
		return nil, fmt.Errorf("failed to initialize prober for %s: %w", path, err)
	}

	metadata, err := transcoder.GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", path, err)
	}

	durationSeconds, _ := strconv.ParseFloat(metadata.GetFormat().GetDuration(), 64)

	info := &MediaInfo{
		FormatName:      metadata.GetFormat().GetFormatName(),
		DurationSeconds: durationSeconds,
	}

	for _, stream := range metadata.GetStreams() {
		info.Streams = append(info.Streams, StreamInfo{
			CodecType: stream.GetCodecType(),
			CodecName: stream.GetCodecName(),
			Width:     stream.GetWidth(),
			Height:    stream.GetHeight(),
		})
	}

	return info, nil
}
