package synth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcflux/reeltime/internal/capability"
)

func TestReconcileReplacesIncompatibleVideoCodecInPlace(t *testing.T) {
	req := Reconcile(Request{Container: "mp4", VideoCodec: "vp9", AudioCodec: "aac"})

	assert.Equal(t, "mp4", req.Container)
	assert.Equal(t, "h264", req.VideoCodec)
}

func TestReconcileLeavesCompatibleVideoCodecUntouched(t *testing.T) {
	req := Reconcile(Request{Container: "mkv", VideoCodec: "vp9", AudioCodec: "aac"})

	assert.Equal(t, "mkv", req.Container)
	assert.Equal(t, "vp9", req.VideoCodec)
}

func TestReconcileReplacesIncompatibleAudioCodecInPlace(t *testing.T) {
	req := Reconcile(Request{Container: "mp4", VideoCodec: "h264", AudioCodec: "opus"})

	assert.Equal(t, "mp4", req.Container)
	assert.Equal(t, "aac", req.AudioCodec)
}

func TestReconcileForcesAudioOnlyContainerCodec(t *testing.T) {
	req := Reconcile(Request{Container: "mp3", VideoCodec: "h264", AudioCodec: "aac"})

	assert.True(t, req.AudioOnly)
	assert.Equal(t, "mp3", req.Container)
	assert.Equal(t, "mp3", req.AudioCodec)
}

func TestReconcilePreservesCopyThroughBothTables(t *testing.T) {
	req := Reconcile(Request{Container: "wav", VideoCodec: "h264", AudioCodec: "copy"})

	assert.Equal(t, "copy", req.AudioCodec)
}

func TestReconcileDefaultsUnknownContainer(t *testing.T) {
	req := Reconcile(Request{Container: "avi", VideoCodec: "h264", AudioCodec: "aac"})

	assert.Equal(t, fallbackContainer, req.Container)
}

func TestReconcileLeavesValidRequestUntouched(t *testing.T) {
	req := Reconcile(Request{Container: "mp4", VideoCodec: "h264", AudioCodec: "aac"})

	assert.Equal(t, "mp4", req.Container)
	assert.Equal(t, "aac", req.AudioCodec)
}

func TestBuildArgvUsesHardwareEncoderWhenAvailable(t *testing.T) {
	profile := capability.Profile{
		Vendor: capability.VendorNvidia,
		Encoders: capability.EncoderSet{
			H264:                "h264_nvenc",
			HWAccel:             "cuda",
			HWAccelOutputFormat: "cuda",
		},
	}

	req := Request{SourcePath: "in.mov", VideoCodec: "h264", AudioCodec: "aac", Preset: "fast", UseHardwareAcceleration: true}
	argv, err := BuildArgv(req, profile, "out.mp4")

	require.NoError(t, err)
	assert.Contains(t, argv, "h264_nvenc")
	assert.Contains(t, argv, "cuda")
	assert.Contains(t, argv, "-force_key_frames")
}

func TestBuildArgvSkipsKeyframeForceOnCopy(t *testing.T) {
	req := Request{SourcePath: "in.mov", VideoCodec: "copy", AudioCodec: "copy"}
	argv, err := BuildArgv(req, capability.Profile{}, "out.mp4")

	require.NoError(t, err)
	assert.NotContains(t, argv, "-force_key_frames")
	assert.Contains(t, argv, "copy")
}

func TestBuildArgvHandlesAudioOnly(t *testing.T) {
	req := Request{SourcePath: "in.mov", AudioOnly: true, AudioCodec: "aac"}
	argv, err := BuildArgv(req, capability.Profile{}, "out.m4a")

	require.NoError(t, err)
	assert.Contains(t, argv, "-vn")
	assert.NotContains(t, argv, "-map")
}

func TestBuildArgvTranslatesAudioCodecToken(t *testing.T) {
	req := Request{SourcePath: "in.wav", AudioOnly: true, AudioCodec: "pcm"}
	argv, err := BuildArgv(req, capability.Profile{}, "out.wav")

	require.NoError(t, err)
	assert.Contains(t, argv, "pcm_s16le")
}

func TestBuildArgvAppliesTrimWindow(t *testing.T) {
	start := 5 * time.Second
	end := 15 * time.Second
	req := Request{SourcePath: "in.mov", VideoCodec: "copy", AudioCodec: "copy", TrimStart: &start, TrimEnd: &end}

	argv, err := BuildArgv(req, capability.Profile{}, "out.mp4")

	require.NoError(t, err)
	assert.Contains(t, argv, "-ss")
	assert.Contains(t, argv, "00:00:05.000")
	assert.Contains(t, argv, "-t")
	assert.Contains(t, argv, "00:00:10.000")
}

func TestBuildArgvIgnoresHardwareEncoderWhenDisabled(t *testing.T) {
	profile := capability.Profile{
		Vendor:   capability.VendorNvidia,
		Encoders: capability.EncoderSet{H264: "h264_nvenc", HWAccel: "cuda"},
	}

	req := Request{SourcePath: "in.mov", VideoCodec: "h264", AudioCodec: "aac", UseHardwareAcceleration: false}
	argv, err := BuildArgv(req, profile, "out.mp4")

	require.NoError(t, err)
	assert.Contains(t, argv, "libx264")
	assert.NotContains(t, argv, "h264_nvenc")
	assert.NotContains(t, argv, "-hwaccel")
}

func TestBuildArgvAppliesBitrateAndResolution(t *testing.T) {
	req := Request{
		SourcePath:   "in.mov",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		VideoBitrate: "2M",
		AudioBitrate: "192k",
		Resolution:   &Resolution{Width: 1280, KeepAspectRatio: true},
	}

	argv, err := BuildArgv(req, capability.Profile{}, "out.mp4")

	require.NoError(t, err)
	assert.Contains(t, argv, "-b:v")
	assert.Contains(t, argv, "2M")
	assert.Contains(t, argv, "-b:a")
	assert.Contains(t, argv, "192k")
	assert.Contains(t, argv, "scale=1280:-2")
}

func TestBuildArgvRejectsMissingSource(t *testing.T) {
	_, err := BuildArgv(Request{}, capability.Profile{}, "out.mp4")
	require.Error(t, err)
}
