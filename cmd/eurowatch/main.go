package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/eurowatch/eurowatch/internal/analytics"
	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/fetch"
	"github.com/eurowatch/eurowatch/internal/meps"
	"github.com/eurowatch/eurowatch/internal/pipeline"
	"github.com/eurowatch/eurowatch/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eurowatch",
	Short:   "European Parliament plenary speech analytics",
	Long:    "Eurowatch discovers, fetches, splits, and classifies European Parliament plenary verbatim reports into a per-speech analytics database.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		// API keys may live in a local .env rather than the shell env.
		_ = godotenv.Load()

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(warmCacheCmd)
	rootCmd.AddCommand(mepsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("eurowatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/eurowatch/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the classifier model and API key.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Sittings:")
		fmt.Printf("  Discovered: %d\n", stats.Sittings)
		fmt.Printf("  With content: %d\n", stats.SittingsWithContent)
		fmt.Println("\nSpeeches:")
		fmt.Printf("  Total: %d\n", stats.Speeches)
		fmt.Printf("  With agenda topic: %d\n", stats.SpeechesWithTopic)
		fmt.Printf("  With language: %d\n", stats.SpeechesWithLang)
		fmt.Printf("  Classified: %d\n", stats.SpeechesClassified)
		fmt.Println("\nMEPs:")
		fmt.Printf("  Directory: %d\n", stats.MEPs)
		fmt.Printf("  Historic: %d\n", stats.HistoricMEPs)

		cs, err := db.GetCacheStatus()
		if err != nil {
			return fmt.Errorf("getting cache status: %w", err)
		}
		fmt.Println("\nAnalytics cache:")
		if cs == nil || cs.RefreshedAt == nil {
			fmt.Println("  Never built")
		} else {
			t := time.UnixMilli(*cs.RefreshedAt).UTC()
			fmt.Printf("  Last built: %s (%d speeches)\n", t.Format(time.RFC3339), cs.SpeechCount)
		}
		return nil
	},
}

// --- discover command ---

var (
	discoverFrom     string
	discoverMaxPages int
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover sitting dates from the Parliament open data API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		from, err := time.Parse("2006-01-02", discoverFrom)
		if err != nil {
			return fmt.Errorf("invalid --from date %q: use YYYY-MM-DD", discoverFrom)
		}

		d := fetch.NewDiscoverer(db, cfg)
		dates, err := d.DiscoverDates(context.Background(), from, discoverMaxPages)
		if err != nil {
			return err
		}

		fmt.Printf("Discovered %d sitting dates since %s\n", len(dates), discoverFrom)
		for _, date := range dates {
			fmt.Printf("  %s\n", date)
		}
		return nil
	},
}

func init() {
	defaultFrom := time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	discoverCmd.Flags().StringVar(&discoverFrom, "from", defaultFrom, "Earliest activity date (YYYY-MM-DD)")
	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "Stop after N API pages (0 = no limit)")
}

// --- single-stage commands ---

var (
	stageDate       string
	stageAll        bool
	stageFromID     int64
	stageLimit      int
	stageRefetch    bool
	stageApply      bool
	overwriteLegacy bool
)

func stageOptions() pipeline.Options {
	return pipeline.Options{
		Date:            stageDate,
		FromID:          stageFromID,
		Limit:           stageLimit,
		Refetch:         stageRefetch,
		OverwriteLegacy: overwriteLegacy,
	}
}

// requireScope enforces that sitting-scoped stages name their target
// explicitly instead of silently processing the whole corpus.
func requireScope() error {
	if stageDate == "" && !stageAll {
		return fmt.Errorf("either --date or --all is required")
	}
	if stageDate != "" && stageAll {
		return fmt.Errorf("--date and --all are mutually exclusive")
	}
	return nil
}

func printStep(step pipeline.StepResult) error {
	if step.Err != nil {
		return fmt.Errorf("%s: %w", step.Name, step.Err)
	}
	fmt.Println(step.Summary)
	return nil
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch verbatim report HTML for discovered sittings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).Fetch(context.Background(), stageOptions()))
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Split stored verbatim reports into individual speeches",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireScope(); err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).Split(stageOptions()))
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Map agenda section topics onto speeches",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).MapTopics(stageOptions()))
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Normalize raw political group strings",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		// The legacy rewrite is a migration; preview it unless --apply is set.
		if overwriteLegacy && !stageApply {
			speeches, err := db.GetSpeechesWithGroupRaw(stageFromID, stageLimit)
			if err != nil {
				return err
			}
			fmt.Printf("Would re-normalize %d speeches; pass --apply to write\n", len(speeches))
			return nil
		}

		return printStep(pipeline.New(cfg, db).NormalizeGroups(stageOptions()))
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the language of each speech",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).DetectLanguages(stageOptions()))
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify speeches into macro topics with the configured LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).Classify(context.Background(), stageOptions()))
	},
}

var warmCacheCmd = &cobra.Command{
	Use:   "warm-cache",
	Short: "Rebuild the analytics cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return printStep(pipeline.New(cfg, db).WarmCache())
	},
}

func init() {
	for _, c := range []*cobra.Command{fetchCmd, parseCmd} {
		c.Flags().StringVar(&stageDate, "date", "", "Single sitting date (YYYY-MM-DD)")
		c.Flags().BoolVar(&stageAll, "all", false, "Process every pending sitting")
	}
	fetchCmd.Flags().BoolVar(&stageRefetch, "refetch", false, "Overwrite already stored content")
	groupsCmd.Flags().BoolVar(&overwriteLegacy, "overwrite-legacy", false, "Re-normalize speeches that already carry a standardized group")
	groupsCmd.Flags().BoolVar(&stageApply, "apply", false, "Write the legacy re-normalization instead of previewing it")
	topicsCmd.Flags().StringVar(&stageDate, "date", "", "Limit to one sitting date (YYYY-MM-DD)")
	for _, c := range []*cobra.Command{groupsCmd, detectCmd, classifyCmd} {
		c.Flags().Int64Var(&stageFromID, "from-id", 0, "Lowest speech id to process")
		c.Flags().IntVar(&stageLimit, "limit", 0, "Maximum speeches to process (0 = no cap)")
	}
}

// --- meps command ---

var mepsCmd = &cobra.Command{
	Use:   "meps",
	Short: "Manage the MEP directory",
}

var mepsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the current MEP directory from the open data API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := meps.NewImporter(db, cfg).ImportCurrent(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d MEPs (%d record errors)\n", result.Imported, result.Errors)
		return nil
	},
}

var mepsRelinkCmd = &cobra.Command{
	Use:   "relink",
	Short: "Link speeches to MEP directory entries by speaker name",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := meps.NewImporter(db, cfg).Relink()
		if err != nil {
			return err
		}
		fmt.Printf("Linked %d speeches (%d historic MEPs created)\n", result.Linked, result.Historic)
		return nil
	},
}

func init() {
	mepsCmd.AddCommand(mepsImportCmd)
	mepsCmd.AddCommand(mepsRelinkCmd)
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch -> parse -> topics -> groups -> detect -> classify -> warm-cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe := pipeline.New(cfg, db)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(stageOptions())
		} else {
			result = pipe.Run(context.Background(), stageOptions())
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if result.Failed() {
			return fmt.Errorf("pipeline finished with errors")
		}
		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'eurowatch serve' to query the analytics API.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().StringVar(&stageDate, "date", "", "Limit fetch and parse to one sitting date")
	runCmd.Flags().Int64Var(&stageFromID, "from-id", 0, "Lowest speech id for the per-speech stages")
	runCmd.Flags().IntVar(&stageLimit, "limit", 0, "Cap per per-speech stage (0 = no cap)")
	runCmd.Flags().BoolVar(&stageRefetch, "refetch", false, "Overwrite already stored content")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local analytics API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		cache := analytics.NewCache(db)
		go func() {
			if err := cache.Warm(); err != nil {
				log.Printf("Initial cache warm failed: %v", err)
			}
		}()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cache, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- export command ---

var (
	exportFields string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the speech table as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		fields, err := server.ExportFields(exportFields)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if err := server.ExportCSV(db, out, fields); err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		if exportOut != "" {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFields, "fields", "", "Comma-separated column list (default standard set)")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default stdout)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "eurowatch.db")
	return database.Open(dbPath)
}
