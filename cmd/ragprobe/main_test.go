package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/ragprobe/internal/experiment"
)

// newOllama fakes the generate endpoint: structured requests get a question, others an answer.
func newOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := "True"
		if req["format"] != nil {
			resp = `{"question":"Does the fox jump over the dog?","answer":"True"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req["model"], "response": resp, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeWorkspace creates a config, a knowledge directory with one document, and returns the config path.
func writeWorkspace(t *testing.T, llmURL string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0755); err != nil {
		t.Fatal(err)
	}
	doc := "The quick brown fox jumps over the lazy dog."
	if err := os.WriteFile(filepath.Join(dir, "data", "fox.txt"), []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf(`
data:
  dir: "./data"
storage:
  tracker_path: "./db/tracker.db"
  index_path: "./db/vectors.bin"
  keyword_index_path: "./db/keyword.bleve"
llm:
  provider: ollama
  model: llama3
  base_url: %q
embedding:
  cache: none
`, llmURL)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := buildRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRun_endToEnd(t *testing.T) {
	cfgPath := writeWorkspace(t, newOllama(t).URL)
	out, progress, err := execute(t, "run", "-c", cfgPath, "--embedding", "mock", "--experiments", "2", "--output", "json")
	if err != nil {
		t.Fatalf("run failed: %v\nstderr: %s", err, progress)
	}
	var summary experiment.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("stdout is not a JSON summary: %v\n%s", err, out)
	}
	if summary.TotalExperiments != 2 || summary.Successes != 2 || summary.SuccessRate != 100 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Model != "mock-embedding" {
		t.Errorf("model = %q", summary.Model)
	}
	if !strings.Contains(progress, "Iteration 2 took") {
		t.Errorf("progress lines should go to stderr in json mode:\n%s", progress)
	}
}

func TestRun_textSummary(t *testing.T) {
	cfgPath := writeWorkspace(t, newOllama(t).URL)
	out, _, err := execute(t, "run", "-c", cfgPath, "--embedding", "MOCK", "--experiments", "1")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Iteration 1 took", "passed test: Does the fox jump over the dog?", "Test Results Summary", "| Success Rate (%)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// The generated question is persisted and shown by doc id.
	out, _, err = execute(t, "question", "show", "-c", cfgPath, "doc: fox.txt page:0:0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Does the fox jump over the dog?") {
		t.Errorf("question show output:\n%s", out)
	}
}

func TestRun_usageErrors(t *testing.T) {
	cfgPath := writeWorkspace(t, "http://127.0.0.1:1")
	tests := []struct {
		name string
		args []string
	}{
		{"unknown embedding", []string{"run", "-c", cfgPath, "--embedding", "WORD2VEC"}},
		{"zero experiments", []string{"run", "-c", cfgPath, "--embedding", "MOCK", "--experiments", "0"}},
		{"negative experiments", []string{"run", "-c", cfgPath, "--embedding", "MOCK", "--experiments", "-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if !errors.Is(err, errUsage) {
				t.Errorf("error = %v, want usage error", err)
			}
		})
	}
}

func TestRun_missingEmbeddingFlag(t *testing.T) {
	cfgPath := writeWorkspace(t, "http://127.0.0.1:1")
	if _, _, err := execute(t, "run", "-c", cfgPath); err == nil {
		t.Error("expected error when --embedding is missing")
	}
}

func TestIngestStatusSample(t *testing.T) {
	cfgPath := writeWorkspace(t, "http://127.0.0.1:1")
	out, _, err := execute(t, "ingest", "-c", cfgPath, "--embedding", "MOCK")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Indexed 1 chunk(s)") {
		t.Errorf("ingest output: %s", out)
	}
	out, _, err = execute(t, "ingest", "-c", cfgPath, "--embedding", "MOCK", "--repair")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Indexed 0 chunk(s)") {
		t.Errorf("second ingest should be a no-op: %s", out)
	}

	out, _, err = execute(t, "status", "-c", cfgPath, "--embedding", "MOCK", "--output", "json")
	if err != nil {
		t.Fatal(err)
	}
	var status statusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("status output: %v\n%s", err, out)
	}
	if status.Documents != 1 || status.Chunks == nil || *status.Chunks != 1 {
		t.Errorf("status = %+v", status)
	}
	if status.DiskUsageBytes == nil || *status.DiskUsageBytes < 1 {
		t.Error("expected disk usage")
	}

	out, _, err = execute(t, "sample", "-c", cfgPath, "--embedding", "MOCK", "-n", "1")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "doc: fox.txt page:0:0" {
		t.Errorf("sample = %q", out)
	}
	out, _, err = execute(t, "sample", "-c", cfgPath, "--embedding", "MOCK", "--tracked")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "fox.txt" {
		t.Errorf("tracked sample = %q", out)
	}

	out, _, err = execute(t, "tracked", "list", "-c", cfgPath, "--embedding", "MOCK")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "fox.txt" {
		t.Errorf("tracked list = %q", out)
	}
	if _, _, err := execute(t, "tracked", "remove", "-c", cfgPath, "--embedding", "MOCK", "fox.txt"); err != nil {
		t.Fatal(err)
	}
	out, _, _ = execute(t, "tracked", "list", "-c", cfgPath, "--embedding", "MOCK")
	if strings.TrimSpace(out) != "" {
		t.Errorf("tracked list after remove = %q", out)
	}
}

func TestQuestionShow_notFound(t *testing.T) {
	cfgPath := writeWorkspace(t, "http://127.0.0.1:1")
	if _, _, err := execute(t, "question", "show", "-c", cfgPath, "doc: none page:0:0"); err == nil {
		t.Error("expected not found error")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "ragprobe version dev\n" {
		t.Errorf("version output = %q", out)
	}
}

func TestBuildRootCmd_commands(t *testing.T) {
	root := buildRootCmd()
	want := []string{"run", "ingest", "tracked", "question", "sample", "serve", "watch", "status", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_defaultsWithoutFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	dir := t.TempDir()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty for built-in defaults", resolved)
	}
	if cfg.Experiment.Count != 10 {
		t.Errorf("experiment count = %d", cfg.Experiment.Count)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}
