package imgproxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/cavelog/cavelog/internal/config"
)

func TestParsePresets(t *testing.T) {
	presets, err := ParsePresets("thumb=300:200:fill, big=1600:0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p := presets["thumb"]; p.Width != 300 || p.Height != 200 || p.Resize != "fill" {
		t.Fatalf("unexpected thumb preset %+v", p)
	}
	if p := presets["big"]; p.Resize != "fit" || p.Options() != "rs:fit:1600:0" {
		t.Fatalf("unexpected big preset %+v", p)
	}
	for _, bad := range []string{"thumb", "thumb=a:b", "=1:2", "x=1:2:3:4"} {
		if _, err := ParsePresets(bad); err == nil {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}

func TestURL_Signed(t *testing.T) {
	cfg := config.ImgproxyConfig{URL: "https://img.example.com/", Key: "6b6579", Salt: "73616c74", Presets: "thumb=300:300:fill"}
	b, err := New(cfg, func(key string) string { return "s3://photos/" + key })
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got := b.URL("p/a/b/c.jpg", "thumb")
	path := "/rs:fill:300:300/" + base64.RawURLEncoding.EncodeToString([]byte("s3://photos/p/a/b/c.jpg"))
	mac := hmac.New(sha256.New, []byte("key"))
	mac.Write([]byte("salt" + path))
	want := "https://img.example.com/" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)) + path
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if raw := b.URL("p/a/b/c.jpg", "missing"); !strings.Contains(raw, "/raw:1/") {
		t.Fatalf("expected raw options for unknown preset, got %s", raw)
	}
}

func TestURL_Fallbacks(t *testing.T) {
	insecure, _ := New(config.ImgproxyConfig{URL: "https://img.example.com"}, nil)
	if got := insecure.URL("k.jpg", "thumb"); !strings.HasPrefix(got, "https://img.example.com/insecure/rs:fill:400:400/") {
		t.Fatalf("expected insecure default preset url, got %s", got)
	}
	direct, _ := New(config.ImgproxyConfig{}, func(key string) string { return "https://cdn.example.com/" + key })
	if got := direct.URL("k.jpg", "thumb"); got != "https://cdn.example.com/k.jpg" {
		t.Fatalf("expected source url without imgproxy, got %s", got)
	}
	if _, err := New(config.ImgproxyConfig{Key: "zz"}, nil); err == nil {
		t.Fatalf("expected invalid hex key rejected")
	}
}
