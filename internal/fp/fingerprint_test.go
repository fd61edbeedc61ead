package fp

import "testing"

func TestNormalizeAndFingerprint(t *testing.T) {
	src := "  https://www.youtube.com/watch?v=dQw4w9WgXcQ  "
	ns := NormalizeSource(src)
	if ns != "https://www.youtube.com/watch?v=dQw4w9WgXcQ" {
		t.Fatalf("NormalizeSource: %q", ns)
	}

	fp1 := Fingerprint(src, "mp4", " 720P ")
	fp2 := Fingerprint(ns, "mp4", "720p")
	if fp1 != fp2 {
		t.Fatalf("fingerprints differ: %s vs %s", fp1, fp2)
	}
	if len(fp1) != 64 { // hex-encoded sha256
		t.Fatalf("unexpected fp length: %d", len(fp1))
	}

	if Fingerprint(ns, "mp4", "1080p") == fp1 {
		t.Fatalf("quality must change the fingerprint")
	}
	if Fingerprint(ns, "mp3", "") == fp1 {
		t.Fatalf("format must change the fingerprint")
	}
	if Fingerprint(ns, "mp3", "720p") != Fingerprint(ns, "mp3", "") {
		t.Fatalf("quality must be ignored for mp3")
	}
}
