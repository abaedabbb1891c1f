package coordinator

import "testing"

func TestExtensionForVideo(t *testing.T) {
	if got := extensionFor("mp4"); got != ".mp4" {
		t.Fatalf("expected .mp4, got %s", got)
	}
}

func TestExtensionForAudioOnlyContainer(t *testing.T) {
	if got := extensionFor("mp3"); got != ".mp3" {
		t.Fatalf("expected .mp3, got %s", got)
	}
}

func TestProcessedDisplayNameReplacesExtension(t *testing.T) {
	if got := processedDisplayName("clip.mp4", "mp4"); got != "clip_processed.mp4" {
		t.Fatalf("expected clip_processed.mp4, got %s", got)
	}
}

func TestProcessedDisplayNameUsesNewContainer(t *testing.T) {
	if got := processedDisplayName("clip.mov", "mp4"); got != "clip_processed.mp4" {
		t.Fatalf("expected clip_processed.mp4, got %s", got)
	}
}
