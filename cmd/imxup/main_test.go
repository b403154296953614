package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"imxup/internal/ipc"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
staging_dir = %q
socket_path = %q

[primary]
username = "tester"
password = "secret"
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "staging"),
		filepath.Join(base, "imxup.sock"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.HasPrefix(out, "imxup ") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestAddRejectsMissingFolder(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCommand(t, "add", filepath.Join(t.TempDir(), "absent"), "--config", cfg)
	if err == nil {
		t.Fatal("expected error for missing folder")
	}
}

func TestAddValidatesThumbSize(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCommand(t, "add", t.TempDir(), "--config", cfg, "--thumb-size", "9")
	if err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected thumb size range error, got %v", err)
	}
}

func TestGalleryIDValidation(t *testing.T) {
	for _, arg := range []string{"zero", "0", "-4"} {
		if _, err := parseGalleryID(arg); err == nil {
			t.Fatalf("expected error for id %q", arg)
		}
	}
	id, err := parseGalleryID("17")
	if err != nil || id != 17 {
		t.Fatalf("parseGalleryID(17) = %d, %v", id, err)
	}
}

func TestBuildQueueStatusRowsOrdersStates(t *testing.T) {
	rows := buildQueueStatusRows(map[string]int{
		"completed": 2,
		"queued":    5,
		"failed":    1,
		"scanning":  0,
	})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	order := []string{rows[0][0], rows[1][0], rows[2][0]}
	want := []string{"queued", "completed", "failed"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("row order %v, want %v", order, want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := humanBytes(512); got != "512 B" {
		t.Fatalf("humanBytes(512) = %q", got)
	}
	if got := humanBytes(1536); got != "1.5 KiB" {
		t.Fatalf("humanBytes(1536) = %q", got)
	}
	if got := formatProgress(0, 0); got != "" {
		t.Fatalf("formatProgress(0,0) = %q", got)
	}
	if got := formatProgress(512, 1024); !strings.Contains(got, "50%") {
		t.Fatalf("formatProgress(512,1024) = %q", got)
	}
	if got := formatSpeed(2048); got != "2.0 KiB/s" {
		t.Fatalf("formatSpeed(2048) = %q", got)
	}
}

func TestBuildQueueListRows(t *testing.T) {
	items := []ipc.GalleryItem{
		{
			ID:         7,
			Name:       "Sample",
			State:      "queued",
			FileCount:  12,
			TotalBytes: 1024,
			DoneBytes:  256,
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	rows := buildQueueListRows(items)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0][0] != "7" || rows[0][1] != "Sample" || rows[0][2] != "queued" || rows[0][3] != "12" {
		t.Fatalf("unexpected row: %v", rows[0])
	}
}

func TestRenderTableIncludesHeadersAndRows(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Name"},
		[][]string{{"1", "First"}, {"2", "Second"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	for _, want := range []string{"ID", "Name", "First", "Second"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}
