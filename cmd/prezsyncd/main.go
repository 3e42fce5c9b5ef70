package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/schaermu/prezsyncd/internal/activation"
	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/git"
	"github.com/schaermu/prezsyncd/internal/loader"
	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/pipeline"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/watch"
	"github.com/schaermu/prezsyncd/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile      string
	logLevel     string
	logFormat    string
	manifestFlag string
	endpointFlag string
	dryRun       bool

	// Sync command flags
	noUpdateRemote bool
	noUpdateLocal  bool
	noAddRemote    bool
	noAddLocal     bool
	incomparable   string

	// Load and catalogue command flags
	loadOutput      string
	catalogueOutput string
	catalogueIRI    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prezsyncd",
	Short: "Synchronize prezmanifest artifacts with a SPARQL triple store",
	Long: `prezsyncd keeps the RDF artifacts listed in a prezmanifest in step with
a remote SPARQL triple store, and publishes RDF patches describing how the
manifest's content changed between git commits.

It can run oneshot (via systemd timer), watch a local manifest directory, or
run as a long-lived webhook daemon responding to GitHub push events.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize manifest artifacts with the remote store",
	Long: `Sync resolves every artifact of the manifest, compares local and remote
version indicators and uploads, downloads or adds artifacts accordingly.
The remote catalogue is rebuilt after artifacts were added remotely.

Each write phase can be disabled with the --no-* flags.`,
	RunE: runSync,
}

var loadCmd = &cobra.Command{
	Use:   "load [manifest]",
	Short: "Load the manifest's content into a dataset",
	Long: `Load builds the dataset described by the manifest: one named graph per
artifact, the catalogue graph, the background labels graph and the system
graph entries of the virtual graph.

With --output the dataset is written as N-Quads ("-" for stdout); otherwise
every graph is uploaded to the configured endpoint.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Publish an RDF patch for the manifest's latest commit",
	Long: `Changelog compares the manifest content at HEAD with the commit recorded
in the remote system graph and publishes the resulting RDF patch. Without a
recorded commit an add-only patch of the whole dataset is published.

With --dry-run the patch is printed instead of published.`,
	RunE: runChangelog,
}

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Check the structure of a manifest",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var catalogueCmd = &cobra.Command{
	Use:   "catalogue [manifest]",
	Short: "Create a catalogue listing the manifest's resources",
	Long: `Catalogue resolves the manifest's ResourceData artifacts and writes a
schema:DataCatalog with one schema:hasPart per main entity.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalogue,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub webhook events
and re-runs sync and change log when the configured repository is updated.

Supports systemd socket activation.`,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run sync when local manifest files change",
	RunE:  runWatch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("prezsyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/prezsyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&manifestFlag, "manifest", "", "manifest file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "SPARQL endpoint URL (overrides config)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")
	syncCmd.Flags().BoolVar(&noUpdateRemote, "no-update-remote", false, "do not upload newer local artifacts")
	syncCmd.Flags().BoolVar(&noUpdateLocal, "no-update-local", false, "do not download newer remote artifacts")
	syncCmd.Flags().BoolVar(&noAddRemote, "no-add-remote", false, "do not add local-only artifacts to the remote store")
	syncCmd.Flags().BoolVar(&noAddLocal, "no-add-local", false, "do not add remote-only resources to the manifest")
	syncCmd.Flags().StringVar(&incomparable, "incomparable", "", "direction for artifacts without comparable versions (upload, download, same)")

	changelogCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the patch instead of publishing it")

	loadCmd.Flags().StringVarP(&loadOutput, "output", "o", "", "write N-Quads to this file instead of uploading (- for stdout)")

	catalogueCmd.Flags().StringVar(&catalogueIRI, "iri", "", "IRI of the catalogue (required)")
	catalogueCmd.Flags().StringVarP(&catalogueOutput, "output", "o", "-", "catalogue file to write (- for stdout)")
	_ = catalogueCmd.MarkFlagRequired("iri")

	// Add commands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogueCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	// Setup logger
	logger := setupLogger()

	// Load configuration
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Create dependencies
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	// Run sync
	logger.Info("starting sync operation")
	report, err := a.syncEngine(dryRun).Run(ctx)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		logger.Error("sync failed", "error", err, "errors", len(multierr.Errors(err)))
		return err
	}

	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	path, err := manifestArg(args)
	if err != nil {
		return err
	}

	local := newLocal(logger)
	ds, err := loader.New(local.store, local.resolver, logger).LoadPath(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	logger.Info("dataset loaded", "graphs", len(ds.Names()), "quads", ds.Len())

	if loadOutput != "" {
		if loadOutput == "-" {
			return loader.Export(cmd.OutOrStdout(), ds)
		}
		f, err := os.Create(loadOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if err := loader.Export(f, ds); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write dataset: %w", err)
		}
		return f.Close()
	}

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	return loader.Upload(ctx, a.remote, ds, logger)
}

func runChangelog(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	gitClient := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	engine, closePublisher, err := a.changelogEngine(gitClient, dryRun || !cfg.Changelog.Enabled)
	if err != nil {
		return err
	}
	defer closePublisher()

	res, err := engine.Run(ctx, cfg.ManifestPath())
	if err != nil {
		return fmt.Errorf("changelog failed: %w", err)
	}
	if res.Patch == nil {
		logger.Info("nothing to publish", "commit", res.Commit)
		return nil
	}
	logger.Info("patch published",
		"kind", res.Kind,
		"patch_id", res.Patch.ID,
		"commit", res.Commit,
		"previous_commit", res.PreviousCommit,
		"additions", res.Patch.Adds,
		"removals", res.Patch.Removes)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	path, err := manifestArg(args)
	if err != nil {
		return err
	}

	local := newLocal(logger)
	m, err := local.store.Load(path)
	if err != nil {
		return err
	}

	rep, err := manifest.NewStructuralValidator(local.fs).Validate(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to validate manifest: %w", err)
	}
	printDiagnostics(cmd.OutOrStdout(), path, rep)
	if !rep.Conforms() {
		return errors.New("manifest does not conform")
	}
	return nil
}

func runCatalogue(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	path, err := manifestArg(args)
	if err != nil {
		return err
	}

	local := newLocal(logger)
	m, err := local.store.Load(path)
	if err != nil {
		return err
	}

	descs, err := local.resolver.Resolve(ctx, m)
	for _, e := range multierr.Errors(err) {
		logger.Warn("skipping artifact", "error", e)
	}

	if catalogueOutput == "-" {
		c := manifest.BuildCatalogue(catalogueIRI, "", descs, time.Now())
		return rdf.WriteTurtle(cmd.OutOrStdout(), c.Graph())
	}

	target, err := filepath.Abs(catalogueOutput)
	if err != nil {
		return err
	}
	c := manifest.BuildCatalogue(catalogueIRI, target, descs, time.Now())
	if err := local.store.CommitCatalogue(c); err != nil {
		return err
	}
	logger.Info("catalogue written", "path", target, "parts", len(c.Parts()))
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		return errors.New("serve is not enabled in the configuration (serve.enabled)")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	gitClient := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	cl, closePublisher, err := a.pipelineChangelog(gitClient)
	if err != nil {
		return err
	}
	defer closePublisher()

	p := pipeline.New(cfg, gitClient, a.syncEngine(false), cl, logger)

	server, err := webhook.NewServer(cfg, p, a.metrics.Handler(), logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	ln, activated, err := activation.Listen(cfg.Serve.ListenAddr, cfg.Serve.SocketName)
	if err != nil {
		return err
	}
	if activated {
		logger.Info("using systemd socket activation", "addr", ln.Addr().String())
	}

	return server.Start(ctx, ln)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	gitClient := git.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	cl, closePublisher, err := a.pipelineChangelog(gitClient)
	if err != nil {
		return err
	}
	defer closePublisher()

	// The manifest is watched in place; no checkout happens
	p := pipeline.New(cfg, nil, a.syncEngine(false), cl, logger)
	root := filepath.Dir(cfg.ManifestPath())
	return watch.New(root, cfg.Watch.Debounce, p, logger).Run(ctx)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format. Logs go to stderr so that --output -
	// and patch dry-runs keep stdout clean.
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "prezsyncd", "config.yaml"), nil
}

// loadConfig reads the config file, applies command-line overrides and
// validates the result. Without --config a missing default file is not an
// error, so that --manifest and --endpoint alone are enough.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	cfg := &config.Config{}
	if _, statErr := os.Stat(configPath); cfgFile != "" || statErr == nil {
		logger.Info("loading configuration", "path", configPath)
		c, err := config.Read(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		logger.Debug("no configuration file, using flags only", "path", configPath)
	}

	applyOverrides(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"manifest", cfg.ManifestPath(),
		"endpoint", cfg.Endpoint.URL,
		"repo", cfg.Repo.URL,
		"changelog", cfg.Changelog.Enabled,
		"publisher", cfg.Changelog.Publisher)

	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if manifestFlag != "" {
		cfg.Manifest = manifestFlag
	}
	if endpointFlag != "" {
		cfg.Endpoint.URL = endpointFlag
	}
	if incomparable != "" {
		cfg.Sync.Incomparable = config.IncomparablePolicy(incomparable)
	}
	for _, o := range []struct {
		off  bool
		flag **bool
	}{
		{noUpdateRemote, &cfg.Sync.UpdateRemote},
		{noUpdateLocal, &cfg.Sync.UpdateLocal},
		{noAddRemote, &cfg.Sync.AddRemote},
		{noAddLocal, &cfg.Sync.AddLocal},
	} {
		if o.off {
			v := false
			*o.flag = &v
		}
	}
}

// manifestArg picks the manifest for commands that work without an
// endpoint: the positional argument, then --manifest, then the config file.
func manifestArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if manifestFlag != "" {
		return manifestFlag, nil
	}
	configPath := cfgFile
	if configPath == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return "", err
		}
		configPath = p
	}
	if cfg, err := config.Read(configPath); err == nil && cfg.Manifest != "" {
		return cfg.ManifestPath(), nil
	}
	return "", errors.New("no manifest given: pass it as an argument, with --manifest or in the config file")
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
