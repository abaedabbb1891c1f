package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	output string
	err    error
}

func (s *stubProber) ListEncoders(ctx context.Context) (string, error) {
	return s.output, s.err
}

func TestDetectPicksHighestPriorityVendorPresent(t *testing.T) {
	d := New("ffmpeg", "").WithProber(&stubProber{output: "h264_qsv\nh264_vaapi\nh264_nvenc\n"})

	profile, err := d.Detect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, VendorNvidia, profile.Vendor)
}

func TestDetectFallsBackToNoneWhenNothingMatches(t *testing.T) {
	d := New("ffmpeg", "").WithProber(&stubProber{output: "libx264\nlibx265\n"})

	profile, err := d.Detect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, VendorNone, profile.Vendor)
}

func TestDetectCachesResultAcrossCalls(t *testing.T) {
	prober := &stubProber{output: "h264_vaapi\n"}
	d := New("ffmpeg", "").WithProber(prober)

	first, err := d.Detect(context.Background())
	require.NoError(t, err)

	prober.output = "h264_nvenc\n"
	second, err := d.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Vendor, second.Vendor)
	assert.Equal(t, VendorVAAPI, second.Vendor)
}

func TestDetectHonoursOverride(t *testing.T) {
	d := New("ffmpeg", "amd")

	profile, err := d.Detect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, VendorAMD, profile.Vendor)
	assert.Equal(t, "h264_amf", profile.Encoders.H264)
}

func TestDetectOverrideNoneDisablesHardware(t *testing.T) {
	d := New("ffmpeg", "none")

	profile, err := d.Detect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, VendorNone, profile.Vendor)
}

func TestEncoderForUnsupportedCodecOnVendor(t *testing.T) {
	profile := Profile{Vendor: VendorVAAPI, Encoders: encoderMap[VendorVAAPI]}

	_, ok := profile.EncoderFor("av1")

	assert.False(t, ok)
}
