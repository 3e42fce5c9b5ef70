package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/event"
	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/sync"
	"github.com/schaermu/prezsyncd/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// resetFlags restores the package-level flag variables after a test
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct {
		cfgFile, manifest, endpoint, incomparable, catIRI, catOut, loadOut string
		dryRun, noUR, noUL, noAR, noAL                                     bool
	}{cfgFile, manifestFlag, endpointFlag, incomparable, catalogueIRI, catalogueOutput, loadOutput,
		dryRun, noUpdateRemote, noUpdateLocal, noAddRemote, noAddLocal}
	t.Cleanup(func() {
		cfgFile, manifestFlag, endpointFlag, incomparable = orig.cfgFile, orig.manifest, orig.endpoint, orig.incomparable
		catalogueIRI, catalogueOutput, loadOutput = orig.catIRI, orig.catOut, orig.loadOut
		dryRun, noUpdateRemote, noUpdateLocal, noAddRemote, noAddLocal = orig.dryRun, orig.noUR, orig.noUL, orig.noAR, orig.noAL
	})
}

func writeDemo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, afero.NewOsFs(), testutil.DemoFiles(dir))
	return filepath.Join(dir, "manifest.ttl")
}

func TestSetupLogger(t *testing.T) {
	// Save original globals.
	origLevel := logLevel
	origFormat := logFormat
	t.Cleanup(func() {
		logLevel = origLevel
		logFormat = origFormat
	})

	for _, tc := range []struct {
		name      string
		logLevel  string
		logFormat string
	}{
		{name: "debug/text", logLevel: "debug", logFormat: "text"},
		{name: "info/json", logLevel: "info", logFormat: "json"},
		{name: "warn/text", logLevel: "warn", logFormat: "text"},
		{name: "error/text", logLevel: "error", logFormat: "text"},
		{name: "unknown/text", logLevel: "unknown", logFormat: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.logLevel
			logFormat = tc.logFormat

			logger := setupLogger()
			if logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

func TestLoadConfig_WithExplicitPath(t *testing.T) {
	resetFlags(t)

	tmpDir := t.TempDir()
	stateDir := filepath.Join(tmpDir, "state")

	configContent := []byte(`manifest: "vocabs/manifest.ttl"
endpoint:
  url: "http://localhost:3030/ds"
repo:
  url: "git@github.com:test/vocabs.git"
  ref: "refs/heads/main"
paths:
  state_dir: "` + stateDir + `"
sync:
  incomparable: "same"
`)
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, configContent, 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfgFile = cfgPath
	cfg, err := loadConfig(quietLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Sync.Incomparable != config.IncomparableSame {
		t.Errorf("expected incomparable policy 'same', got %q", cfg.Sync.Incomparable)
	}
	if want := filepath.Join(stateDir, "repo", "vocabs", "manifest.ttl"); cfg.ManifestPath() != want {
		t.Errorf("expected manifest path %s, got %s", want, cfg.ManifestPath())
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	resetFlags(t)

	cfgFile = filepath.Join(t.TempDir(), "nonexistent.yaml")
	if _, err := loadConfig(quietLogger()); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

func TestLoadConfig_DefaultPath(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())

	cfgFile = ""
	_, err := loadConfig(quietLogger())
	// Expect error because neither a config file nor flags name a manifest
	if err == nil {
		t.Error("expected error when default config file doesn't exist")
	}
}

func TestLoadConfig_FlagsOnly(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())

	cfgFile = ""
	manifestFlag = "/data/manifest.ttl"
	endpointFlag = "http://localhost:3030/ds"
	noAddLocal = true
	incomparable = "download"

	cfg, err := loadConfig(quietLogger())
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Manifest != manifestFlag || cfg.Endpoint.URL != endpointFlag {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if config.Flag(cfg.Sync.AddLocal) {
		t.Error("expected add_local to be disabled by --no-add-local")
	}
	if !config.Flag(cfg.Sync.UpdateRemote) {
		t.Error("expected update_remote to default to true")
	}
	if cfg.Sync.Incomparable != config.IncomparableDownload {
		t.Errorf("expected incomparable policy 'download', got %q", cfg.Sync.Incomparable)
	}
}

func TestManifestArg(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())
	cfgFile = ""

	if got, err := manifestArg([]string{"a.ttl"}); err != nil || got != "a.ttl" {
		t.Errorf("manifestArg(args) = %q, %v", got, err)
	}

	manifestFlag = "b.ttl"
	if got, err := manifestArg(nil); err != nil || got != "b.ttl" {
		t.Errorf("manifestArg(flag) = %q, %v", got, err)
	}

	manifestFlag = ""
	if _, err := manifestArg(nil); err == nil {
		t.Error("expected error without any manifest")
	}
}

func TestNewPublisher(t *testing.T) {
	var out bytes.Buffer
	logger := quietLogger()

	tests := []struct {
		name      string
		cfg       config.ChangelogConfig
		printOnly bool
		check     func(event.Publisher) bool
	}{
		{
			name:      "print only",
			cfg:       config.ChangelogConfig{Publisher: config.PublisherDelta},
			printOnly: true,
			check:     func(p event.Publisher) bool { _, ok := p.(*event.Writer); return ok },
		},
		{
			name:  "delta",
			cfg:   config.ChangelogConfig{Publisher: config.PublisherDelta, Delta: config.DeltaConfig{URL: "http://localhost:1066", Datasource: "prez"}},
			check: func(p event.Publisher) bool { _, ok := p.(*event.Delta); return ok },
		},
		{
			name:  "file",
			cfg:   config.ChangelogConfig{Publisher: config.PublisherFile, File: config.FileConfig{Path: filepath.Join(t.TempDir(), "patches.rdfp")}},
			check: func(p event.Publisher) bool { _, ok := p.(*event.File); return ok },
		},
		{
			name:  "file on stdout",
			cfg:   config.ChangelogConfig{Publisher: config.PublisherFile, File: config.FileConfig{Path: "-"}},
			check: func(p event.Publisher) bool { _, ok := p.(*event.Writer); return ok },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Changelog: tt.cfg}
			p, closer, err := newPublisher(cfg, tt.printOnly, &out, logger)
			if err != nil {
				t.Fatalf("newPublisher() failed: %v", err)
			}
			defer closer()
			if !tt.check(p) {
				t.Errorf("unexpected publisher type %T", p)
			}
		})
	}

	if _, _, err := newPublisher(&config.Config{Changelog: config.ChangelogConfig{Publisher: "kafka"}}, false, &out, logger); err == nil {
		t.Error("expected error for unknown publisher")
	}
}

func TestPrintReport(t *testing.T) {
	origNoColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = origNoColor })

	report := sync.Report{
		"vocabs/b.ttl":               {MainEntity: "http://example.com/vocab/b", Direction: sync.DirectionSame, Sync: true},
		"vocabs/a.ttl":               {MainEntity: "http://example.com/vocab/a", Direction: sync.DirectionUpload, Sync: true},
		"http://example.com/vocab/c": {MainEntity: "http://example.com/vocab/c", Direction: sync.DirectionAddLocally, Sync: false},
	}

	var buf bytes.Buffer
	printReport(&buf, report)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	want := []string{
		"skipped      http://example.com/vocab/c",
		"upload       vocabs/a.ttl http://example.com/vocab/a",
		"same         vocabs/b.ttl http://example.com/vocab/b",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestRunValidate(t *testing.T) {
	resetFlags(t)
	color.NoColor = true

	path := writeDemo(t)
	var buf bytes.Buffer
	validateCmd.SetOut(&buf)
	t.Cleanup(func() { validateCmd.SetOut(nil) })

	if err := runValidate(validateCmd, []string{path}); err != nil {
		t.Fatalf("runValidate() failed: %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "ok "+path) {
		t.Errorf("expected ok line, got:\n%s", buf.String())
	}

	// a missing artifact is a violation
	if err := os.Remove(filepath.Join(filepath.Dir(path), "labels.ttl")); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	if err := runValidate(validateCmd, []string{path}); err == nil {
		t.Errorf("expected validation failure, got:\n%s", buf.String())
	}
}

func TestRunCatalogue(t *testing.T) {
	resetFlags(t)

	path := writeDemo(t)
	catalogueIRI = "http://example.com/generated"
	catalogueOutput = "-"

	var buf bytes.Buffer
	catalogueCmd.SetOut(&buf)
	t.Cleanup(func() { catalogueCmd.SetOut(nil) })

	if err := runCatalogue(catalogueCmd, []string{path}); err != nil {
		t.Fatalf("runCatalogue() failed: %v", err)
	}
	g, err := rdf.ParseGraph(strings.NewReader(buf.String()), rdf.FormatTurtle)
	if err != nil {
		t.Fatalf("catalogue output is not Turtle: %v\n%s", err, buf.String())
	}
	cat, err := manifest.NewCatalogue("-", g)
	if err != nil {
		t.Fatalf("no catalogue in output: %v\n%s", err, buf.String())
	}
	if cat.IRI != catalogueIRI {
		t.Errorf("catalogue IRI = %s, want %s", cat.IRI, catalogueIRI)
	}
	for _, iri := range []string{testutil.DemoVocabA, testutil.DemoVocabB} {
		if !cat.HasPart(iri) {
			t.Errorf("expected %s in catalogue:\n%s", iri, buf.String())
		}
	}
}

func TestRunSyncAgainstStore(t *testing.T) {
	resetFlags(t)
	color.NoColor = true
	t.Setenv("HOME", t.TempDir())

	store := testutil.NewFakeStore(t)
	cfgFile = ""
	manifestFlag = writeDemo(t)
	endpointFlag = store.URL()

	var buf bytes.Buffer
	syncCmd.SetOut(&buf)
	t.Cleanup(func() { syncCmd.SetOut(nil) })

	if err := runSync(syncCmd, nil); err != nil {
		t.Fatalf("runSync() failed: %v", err)
	}
	if !strings.Contains(buf.String(), "add-remotely") || !strings.Contains(buf.String(), "vocabs/a.ttl") {
		t.Errorf("unexpected report:\n%s", buf.String())
	}
	if store.Graph(testutil.DemoVocabA).Len() == 0 {
		t.Error("expected vocab a to be uploaded")
	}
}

func TestLoadOutput(t *testing.T) {
	resetFlags(t)

	path := writeDemo(t)
	loadOutput = filepath.Join(t.TempDir(), "dataset.nq")

	if err := runLoad(loadCmd, []string{path}); err != nil {
		t.Fatalf("runLoad() failed: %v", err)
	}
	data, err := os.ReadFile(loadOutput)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<"+testutil.DemoVocabA+">") {
		t.Errorf("expected vocab a graph in output")
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	t.Helper()
	// versionCmd.Run simply prints version info; should not panic.
	versionCmd.Run(versionCmd, []string{})
}
