package automation

import "testing"

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		raw      string
		mime     string
		data     string
		wantFail bool
	}{
		{raw: DataURL("image/webp", []byte("abc")), mime: "image/webp", data: "abc"},
		{raw: "data:;base64,YWJj", mime: "image/png", data: "abc"},
		{raw: "data:text/plain,hello%20world", mime: "text/plain", data: "hello world"},
		{raw: "data:image/png;base64,@@@", wantFail: true},
		{raw: "data:image/png;base64", wantFail: true},
		{raw: "https://example.com/a.png", wantFail: true},
	}

	for _, tt := range tests {
		mimeType, data, err := decodeDataURL(tt.raw)
		if tt.wantFail {
			if err == nil {
				t.Errorf("decodeDataURL(%q) succeeded", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("decodeDataURL(%q): %v", tt.raw, err)
			continue
		}
		if mimeType != tt.mime || string(data) != tt.data {
			t.Errorf("decodeDataURL(%q) = %q %q", tt.raw, mimeType, data)
		}
	}
}

func TestInlineImageName(t *testing.T) {
	if got := inlineImageName("Résumé: l'IA en 2026", "image/jpeg"); got != "resume-l-ia-en-2026.jpg" {
		t.Errorf("inlineImageName = %q", got)
	}
	if got := inlineImageName("!!!", "image/png"); got != defaultImageName {
		t.Errorf("empty slug = %q", got)
	}
	if got := inlineImageName("Chart", "image/tiff"); got != "chart.png" {
		t.Errorf("unknown mime = %q", got)
	}
}

func TestTooShort(t *testing.T) {
	if !tooShort("", "hello") {
		t.Error("empty editor should be too short")
	}
	if tooShort("héllo", "héllo wor") {
		t.Error("more than half should pass")
	}
}
