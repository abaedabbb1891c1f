// Package capability detects which hardware video encoder, if any, is
// usable on the host running reeltime. It is grounded on the original
// Python service's hw_accel.py vendor/encoder table, with a vaapi entry
// added and its own vendor priority order (see vendorPriority). Detection is
// a single cached probe: the locally installed ffmpeg's encoder list is
// searched for each vendor's encoder names in priority order. The host's
// GPUs are not enumerated, so a vendor is reported whenever ffmpeg was
// built with its encoders, whether or not that hardware is present.
package capability

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

type Vendor string

const (
	VendorNvidia Vendor = "nvidia"
	VendorAMD    Vendor = "amd"
	VendorIntel  Vendor = "intel"
	VendorVAAPI  Vendor = "vaapi"
	VendorApple  Vendor = "apple"
	VendorNone   Vendor = "none"
)

// vendorPriority is authoritative: nvidia beats amd beats intel beats vaapi
// beats apple, matching the order the spec mandates (wider than the
// original Python table, which had no vaapi entry at all).
var vendorPriority = []Vendor{VendorNvidia, VendorAMD, VendorIntel, VendorVAAPI, VendorApple}

// EncoderSet names the vendor-specific encoder for each codec this service
// supports, plus the hwaccel flags needed to drive it. An empty Codec field
// means that vendor has no hardware encoder for it and software must be used
// instead.
type EncoderSet struct {
	H264                string
	HEVC                string
	AV1                 string
	HWAccel             string
	HWAccelOutputFormat string
}

var encoderMap = map[Vendor]EncoderSet{
	VendorNvidia: {H264: "h264_nvenc", HEVC: "hevc_nvenc", AV1: "av1_nvenc", HWAccel: "cuda", HWAccelOutputFormat: "cuda"},
	VendorAMD:    {H264: "h264_amf", HEVC: "hevc_amf", HWAccel: "d3d11va"},
	VendorIntel:  {H264: "h264_qsv", HEVC: "hevc_qsv", AV1: "av1_qsv", HWAccel: "qsv", HWAccelOutputFormat: "qsv"},
	// vaapi has no native AV1 encoder and no output-format substitute;
	// see DESIGN.md's Open Question decision on this vendor.
	VendorVAAPI: {H264: "h264_vaapi", HEVC: "hevc_vaapi", HWAccel: "vaapi"},
	VendorApple: {H264: "h264_videotoolbox", HEVC: "hevc_videotoolbox", HWAccel: "videotoolbox"},
}

type Profile struct {
	Vendor   Vendor
	Encoders EncoderSet
}

// EncoderFor returns the vendor encoder name for codec ("h264", "hevc" or
// "av1"), and whether the profile's vendor supports it at all.
func (p Profile) EncoderFor(codec string) (string, bool) {
	switch codec {
	case "h264":
		return p.Encoders.H264, p.Encoders.H264 != ""
	case "hevc", "h265":
		return p.Encoders.HEVC, p.Encoders.HEVC != ""
	case "av1":
		return p.Encoders.AV1, p.Encoders.AV1 != ""
	default:
		return "", false
	}
}

// Prober lists the encoders a transcoder binary supports. Implemented by
// execProber for real use and stubbed in tests.
type Prober interface {
	ListEncoders(ctx context.Context) (string, error)
}

type execProber struct {
	binaryPath string
}

func (e *execProber) ListEncoders(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath, "-hide_banner", "-encoders")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to list encoders from %s: %w", e.binaryPath, err)
	}
	return out.String(), nil
}

// Detector caches its detection result for the lifetime of the process - the
// host's hardware doesn't change between requests.
type Detector struct {
	binaryPath string
	override   Vendor
	prober     Prober

	once    sync.Once
	profile Profile
	err     error
}

// New builds a Detector for the given ffmpeg binary. override, if non-empty,
// forces a specific vendor (or "none") and skips probing entirely - this is
// CAPABILITY_VENDOR_OVERRIDE from configuration. An override naming no known
// vendor yields vendor "none".
func New(binaryPath string, override string) *Detector {
	return &Detector{binaryPath: binaryPath, override: Vendor(override)}
}

// WithProber replaces the exec-based encoder listing, for tests.
func (d *Detector) WithProber(p Prober) *Detector {
	d.prober = p
	return d
}

// Detect returns the capability profile for this host, probing at most once.
func (d *Detector) Detect(ctx context.Context) (Profile, error) {
	d.once.Do(func() {
		d.profile, d.err = d.detect(ctx)
	})
	return d.profile, d.err
}

func (d *Detector) detect(ctx context.Context) (Profile, error) {
	if d.override != "" {
		if d.override == VendorNone {
			return Profile{Vendor: VendorNone}, nil
		}
		set, ok := encoderMap[d.override]
		if !ok {
			// An unrecognised override selects no vendor, as absent
			// hardware does; callers fall back to software encoding.
			return Profile{Vendor: VendorNone}, nil
		}
		return Profile{Vendor: d.override, Encoders: set}, nil
	}

	prober := d.prober
	if prober == nil {
		prober = &execProber{binaryPath: d.binaryPath}
	}

	output, err := prober.ListEncoders(ctx)
	if err != nil {
		// No usable transcoder binary to probe; callers fall back to
		// software encoding.
		return Profile{Vendor: VendorNone}, nil
	}

	for _, vendor := range vendorPriority {
		set := encoderMap[vendor]
		if (set.H264 != "" && strings.Contains(output, set.H264)) ||
			(set.HEVC != "" && strings.Contains(output, set.HEVC)) {
			return Profile{Vendor: vendor, Encoders: set}, nil
		}
	}

	return Profile{Vendor: VendorNone}, nil
}
