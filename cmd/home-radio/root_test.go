package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestImportCommandRequiresURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"import"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an argument error")
	}
}

func TestImportCommandDownloads(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("mp3 bytes"))
	}))
	defer upstream.Close()

	dir := t.TempDir()
	t.Setenv("RADIO_AUDIO_DIR", dir)
	t.Setenv("RADIO_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", filepath.Join(dir, "missing.env"), "import", upstream.URL + "/Band%20-%20Song.mp3"})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(out.String(), "Band - Song.mp3") {
		t.Fatalf("unexpected output %q", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "Band - Song.mp3")); err != nil {
		t.Fatalf("expected imported file: %v", err)
	}
}

func TestServeRejectsArguments(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected an argument error")
	}
}
