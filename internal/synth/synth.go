// Package synth turns a declarative transcode request into an ffmpeg
// argument vector. It is grounded on the original Python service's
// process.py (construct_ffmpeg_command) for the compatibility-correction,
// hardware-substitution and trim/keyframe rules, and on the teacher's
// internal/ffmpeg/target.go for the idea of building an ordered flag list
// from a fixed request shape - generalized here into explicit code since
// this request shape is fixed and doesn't need target.go's reflection-based
// struct-tag walk.
package synth

import (
	"fmt"
	"time"

	"github.com/arcflux/reeltime/internal/capability"
)

// Resolution requests a target frame size. When KeepAspectRatio is true,
// Height is computed by ffmpeg (-2) to preserve the source aspect ratio.
type Resolution struct {
	Width           int
	Height          int
	KeepAspectRatio bool
}

// Request describes the transcode a caller wants performed. VideoCodec,
// AudioCodec and AudioOnly may all be corrected by Reconcile if the
// container requested can't carry them - that correction never fails and
// changes Container only when the requested name isn't recognised at all.
type Request struct {
	SourcePath              string
	VideoCodec              string // "h264", "hevc", "av1", "vp8", "vp9", or "copy"
	AudioCodec              string // "aac", "mp3", "ac3", "opus", "flac", "vorbis", "pcm", or "copy"
	Container               string // "mp4", "mkv", "mov", "webm", "mp3", "flac", "wav", "aac", "ogg"
	Preset                  string // "fast", "balanced", "quality"
	AudioOnly               bool
	TrimStart               *time.Duration
	TrimEnd                 *time.Duration
	VideoBitrate            string // e.g. "2M"; empty means let the encoder choose
	AudioBitrate            string // e.g. "192k"
	Resolution              *Resolution
	UseHardwareAcceleration bool
}

// containerProfile is one row of the container/codec compatibility tables:
// which codecs a container can carry unchanged, and what to substitute
// in-place when the requested one can't be carried. audioOnly containers
// have no videoCodecs entry at all - any video track is dropped.
type containerProfile struct {
	audioOnly     bool
	videoCodecs   []string
	videoFallback string
	audioCodecs   []string
	audioFallback string
}

var containerProfiles = map[string]containerProfile{
	"mp4": {
		videoCodecs:   []string{"h264", "hevc", "av1", "copy"},
		videoFallback: "h264",
		audioCodecs:   []string{"aac", "mp3", "copy"},
		audioFallback: "aac",
	},
	"mkv": {
		videoCodecs:   []string{"h264", "hevc", "av1", "vp9", "copy"},
		videoFallback: "h264",
		audioCodecs:   []string{"aac", "mp3", "opus", "flac", "copy"},
		audioFallback: "aac",
	},
	"mov": {
		videoCodecs:   []string{"h264", "hevc", "copy"},
		videoFallback: "h264",
		audioCodecs:   []string{"aac", "mp3", "copy"},
		audioFallback: "aac",
	},
	// webm isn't in spec.md's container table - kept as a supplementary
	// container alongside the spec-mandated ones, following the same
	// replace-in-place rule.
	"webm": {
		videoCodecs:   []string{"vp8", "vp9", "av1", "copy"},
		videoFallback: "vp9",
		audioCodecs:   []string{"opus", "vorbis", "copy"},
		audioFallback: "opus",
	},
	// The remaining containers carry audio only; each forces a single
	// encoder regardless of what was requested, "copy" aside.
	"mp3":  {audioOnly: true, audioCodecs: []string{"copy"}, audioFallback: "mp3"},
	"flac": {audioOnly: true, audioCodecs: []string{"copy"}, audioFallback: "flac"},
	"aac":  {audioOnly: true, audioCodecs: []string{"copy"}, audioFallback: "aac"},
	"wav":  {audioOnly: true, audioCodecs: []string{"copy"}, audioFallback: "pcm"},
	// ogg has no forced codec in spec.md's table; treated as a Vorbis/Opus
	// carrier like webm's audio side since ffmpeg's ogg muxer supports both.
	"ogg": {audioOnly: true, audioCodecs: []string{"opus", "vorbis", "copy"}, audioFallback: "vorbis"},
}

// fallbackContainer is used only when the requested container name isn't
// one synth recognises at all - a malformed request, not an incompatible
// codec pairing. A recognised container's codec is always corrected
// in-place; only this case ever reassigns Container.
const fallbackContainer = "mp4"

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Reconcile corrects an incompatible codec for req.Container rather than
// rejecting the request - it always returns a request ffmpeg can satisfy.
// The container is only ever replaced when it isn't recognised at all;
// an incompatible codec is replaced in place, never the container.
func Reconcile(req Request) Request {
	profile, ok := containerProfiles[req.Container]
	if !ok {
		req.Container = fallbackContainer
		profile = containerProfiles[req.Container]
	}

	req.AudioOnly = profile.audioOnly

	if !req.AudioOnly && req.VideoCodec != "" && !contains(profile.videoCodecs, req.VideoCodec) {
		req.VideoCodec = profile.videoFallback
	}

	if !contains(profile.audioCodecs, req.AudioCodec) {
		req.AudioCodec = profile.audioFallback
	}

	return req
}

type presetTokens struct {
	fast, balanced, quality string
}

// presetMap carries the vendor-specific preset token for each of the three
// quality tiers this service exposes. Vendors absent from this map (vaapi,
// apple) don't take a -preset flag at all.
var presetMap = map[capability.Vendor]presetTokens{
	capability.VendorNone:   {fast: "veryfast", balanced: "medium", quality: "slow"},
	capability.VendorNvidia: {fast: "p1", balanced: "p4", quality: "p7"},
	capability.VendorIntel:  {fast: "veryfast", balanced: "medium", quality: "veryslow"},
	capability.VendorAMD:    {fast: "speed", balanced: "balanced", quality: "quality"},
}

func presetToken(vendor capability.Vendor, preset string) (string, bool) {
	tokens, ok := presetMap[vendor]
	if !ok {
		return "", false
	}
	switch preset {
	case "fast":
		return tokens.fast, true
	case "quality":
		return tokens.quality, true
	default:
		return tokens.balanced, true
	}
}

func softwareEncoderFor(codec string) string {
	switch codec {
	case "h264":
		return "libx264"
	case "hevc", "h265":
		return "libx265"
	case "av1":
		return "libaom-av1"
	case "vp8":
		return "libvpx"
	case "vp9":
		return "libvpx-vp9"
	default:
		return codec
	}
}

// audioEncoderFor maps an abstract audio codec token - the vocabulary
// Reconcile's containerProfiles forces codecs into - to the ffmpeg encoder
// name that actually implements it.
func audioEncoderFor(codec string) string {
	switch codec {
	case "mp3":
		return "libmp3lame"
	case "opus":
		return "libopus"
	case "vorbis":
		return "libvorbis"
	case "pcm":
		return "pcm_s16le"
	default:
		return codec
	}
}

func formatTimestamp(d time.Duration) string {
	total := d.Seconds()
	hours := int(total) / 3600
	minutes := (int(total) % 3600) / 60
	seconds := total - float64(hours*3600+minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, seconds)
}

// BuildArgv builds the ffmpeg argument vector for req, writing to
// outputPath. req should already have been passed through Reconcile;
// BuildArgv does not re-correct the container/codec pairing.
func BuildArgv(req Request, profile capability.Profile, outputPath string) ([]string, error) {
	if req.SourcePath == "" {
		return nil, fmt.Errorf("synth: source path is required")
	}
	if outputPath == "" {
		return nil, fmt.Errorf("synth: output path is required")
	}

	argv := []string{"-y", "-hide_banner"}

	videoCodec := req.VideoCodec
	usingHWAccel := false
	if !req.AudioOnly && videoCodec != "copy" {
		if hwEncoder, ok := profile.EncoderFor(videoCodec); req.UseHardwareAcceleration && ok {
			videoCodec = hwEncoder
			usingHWAccel = true
		} else {
			videoCodec = softwareEncoderFor(videoCodec)
		}
	}

	if usingHWAccel && profile.Encoders.HWAccel != "" {
		argv = append(argv, "-hwaccel", profile.Encoders.HWAccel)
		if profile.Encoders.HWAccelOutputFormat != "" {
			argv = append(argv, "-hwaccel_output_format", profile.Encoders.HWAccelOutputFormat)
		}
	}

	if req.TrimStart != nil {
		argv = append(argv, "-ss", formatTimestamp(*req.TrimStart))
	}

	argv = append(argv, "-i", req.SourcePath)

	if req.TrimEnd != nil {
		start := time.Duration(0)
		if req.TrimStart != nil {
			start = *req.TrimStart
		}
		if duration := *req.TrimEnd - start; duration > 0 {
			argv = append(argv, "-t", formatTimestamp(duration))
		}
	}

	if req.AudioOnly {
		argv = append(argv, "-vn")
	} else {
		argv = append(argv, "-map", "0:v?", "-map", "0:a?", "-fflags", "+genpts")
		argv = append(argv, "-c:v", videoCodec)
		// Only a re-encode needs a keyframe forced at the start; "copy"
		// just remuxes the existing GOP structure untouched.
		if videoCodec != "copy" {
			argv = append(argv, "-force_key_frames", "expr:eq(n,0)")
			if token, ok := presetToken(profile.Vendor, req.Preset); ok {
				argv = append(argv, "-preset", token)
			}
			if req.VideoBitrate != "" {
				argv = append(argv, "-b:v", req.VideoBitrate)
			}
			if req.Resolution != nil {
				argv = append(argv, "-vf", scaleFilter(*req.Resolution))
			}
		}
	}

	audioCodec := req.AudioCodec
	if audioCodec != "copy" {
		audioCodec = audioEncoderFor(audioCodec)
	}
	argv = append(argv, "-c:a", audioCodec)
	if req.AudioBitrate != "" && audioCodec != "copy" {
		argv = append(argv, "-b:a", req.AudioBitrate)
	}
	argv = append(argv, outputPath)

	return argv, nil
}

func scaleFilter(r Resolution) string {
	if r.KeepAspectRatio {
		return fmt.Sprintf("scale=%d:-2", r.Width)
	}
	return fmt.Sprintf("scale=%d:%d", r.Width, r.Height)
}
