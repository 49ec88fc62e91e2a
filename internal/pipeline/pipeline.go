// Package pipeline orchestrates the processing stages over the speech
// database. Stages run in strict order and every stage is independently
// re-runnable: each one skips rows a previous run already handled.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eurowatch/eurowatch/internal/agenda"
	"github.com/eurowatch/eurowatch/internal/analytics"
	"github.com/eurowatch/eurowatch/internal/classify"
	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/fetch"
	"github.com/eurowatch/eurowatch/internal/groups"
	"github.com/eurowatch/eurowatch/internal/language"
	"github.com/eurowatch/eurowatch/internal/llm"
	"github.com/eurowatch/eurowatch/internal/progress"
	"github.com/eurowatch/eurowatch/internal/splitter"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step errored.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Options selects what a run operates on.
type Options struct {
	Date            string // single sitting date (YYYY-MM-DD); empty means all
	FromID          int64  // lowest speech id for the incremental stages
	Limit           int    // cap per incremental stage; 0 means no cap
	Refetch         bool   // overwrite stored content
	OverwriteLegacy bool   // re-normalize groups already carrying a std value
}

// Pipeline runs the seven processing stages in order.
type Pipeline struct {
	cfg *config.Config
	db  *database.DB
}

// New creates a pipeline.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, db: db}
}

// Run executes all stages. A failed fetch or split aborts the run since
// the later stages would have nothing new to work on; failures in the
// annotation stages are reported but do not stop the remaining stages.
func (p *Pipeline) Run(ctx context.Context, opts Options) *Result {
	r := &Result{}

	step := p.runFetch(ctx, opts)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	step = p.runSplit(opts)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	r.Steps = append(r.Steps, p.runMapTopics(opts))
	r.Steps = append(r.Steps, p.runGroups(opts))
	r.Steps = append(r.Steps, p.runDetect(opts))
	r.Steps = append(r.Steps, p.runClassify(ctx, opts))
	r.Steps = append(r.Steps, p.runWarmCache())
	return r
}

// DryRun reports what each stage would do without writing anything.
func (p *Pipeline) DryRun(opts Options) *Result {
	r := &Result{}

	needFetch, _ := p.db.GetSittingsNeedingFetch()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("[dry-run] %d sittings need content", len(needFetch)),
	})

	unparsed, _ := p.db.GetUnparsedSittings()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Split",
		Summary: fmt.Sprintf("[dry-run] %d sittings need parsing", len(unparsed)),
	})

	parsed, _ := p.db.GetSittingsWithContent()
	r.Steps = append(r.Steps, StepResult{
		Name:    "MapTopics",
		Summary: fmt.Sprintf("[dry-run] %d sittings to map", len(parsed)),
	})

	needGroup, _ := p.db.GetSpeechesNeedingGroup(opts.FromID, opts.Limit)
	r.Steps = append(r.Steps, StepResult{
		Name:    "NormalizeGroups",
		Summary: fmt.Sprintf("[dry-run] %d speeches need group normalization", len(needGroup)),
	})

	needLang, _ := p.db.GetSpeechesNeedingLanguage(opts.FromID, opts.Limit)
	r.Steps = append(r.Steps, StepResult{
		Name:    "DetectLanguage",
		Summary: fmt.Sprintf("[dry-run] %d speeches need language detection", len(needLang)),
	})

	needClass, _ := p.db.GetSpeechesNeedingClassification(opts.FromID, opts.Limit)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Classify",
		Summary: fmt.Sprintf("[dry-run] %d speeches need classification (%s mode)", len(needClass), p.cfg.Classifier.Mode),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "WarmCache",
		Summary: "[dry-run] would rebuild the analytics cache",
	})
	return r
}

// Single-stage entry points for the per-stage CLI commands.

func (p *Pipeline) Fetch(ctx context.Context, opts Options) StepResult {
	return p.runFetch(ctx, opts)
}

func (p *Pipeline) Split(opts Options) StepResult { return p.runSplit(opts) }

func (p *Pipeline) MapTopics(opts Options) StepResult { return p.runMapTopics(opts) }

func (p *Pipeline) NormalizeGroups(opts Options) StepResult { return p.runGroups(opts) }

func (p *Pipeline) DetectLanguages(opts Options) StepResult { return p.runDetect(opts) }

func (p *Pipeline) Classify(ctx context.Context, opts Options) StepResult {
	return p.runClassify(ctx, opts)
}

func (p *Pipeline) WarmCache() StepResult { return p.runWarmCache() }

func (p *Pipeline) runFetch(ctx context.Context, opts Options) StepResult {
	log.Println("Step 1/7: Fetching verbatim documents...")
	f := fetch.New(p.db, p.cfg)

	if opts.Date != "" {
		date, err := time.Parse("2006-01-02", opts.Date)
		if err != nil {
			return StepResult{Name: "Fetch", Err: fmt.Errorf("bad date %q: %w", opts.Date, err)}
		}
		state, err := f.FetchDate(ctx, date, opts.Refetch)
		if err != nil {
			return StepResult{Name: "Fetch", Err: err}
		}
		return StepResult{Name: "Fetch", Summary: fmt.Sprintf("%s: %s", opts.Date, state)}
	}

	sittings, err := p.db.GetSittingsNeedingFetch()
	if err != nil {
		return StepResult{Name: "Fetch", Err: err}
	}
	result := &fetch.Result{}
	for _, s := range sittings {
		date, err := time.Parse("2006-01-02", s.ActivityDate)
		if err != nil {
			continue
		}
		state, err := f.FetchDate(ctx, date, opts.Refetch)
		if err != nil {
			log.Printf("Fetch %s failed: %v", s.ActivityDate, err)
			result.Failed++
			continue
		}
		switch state {
		case fetch.StateStored:
			result.Stored++
		case fetch.StateMissing:
			result.Missing++
		default:
			result.Skipped++
		}
	}
	return StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("%d stored, %d missing, %d skipped, %d failed", result.Stored, result.Missing, result.Skipped, result.Failed),
	}
}

func (p *Pipeline) runSplit(opts Options) StepResult {
	log.Println("Step 2/7: Splitting speeches...")

	var sittings []database.Sitting
	var err error
	if opts.Date != "" {
		var s *database.Sitting
		s, err = p.db.GetSittingByDate(opts.Date)
		if err == nil {
			if s == nil || !s.HasContent() {
				return StepResult{Name: "Split", Err: fmt.Errorf("no content for %s", opts.Date)}
			}
			sittings = []database.Sitting{*s}
		}
	} else {
		sittings, err = p.db.GetUnparsedSittings()
	}
	if err != nil {
		return StepResult{Name: "Split", Err: err}
	}

	parsed, speeches := 0, 0
	for _, s := range sittings {
		batch := splitter.Split(fetch.ExtractText(*s.Content))
		if len(batch) == 0 {
			log.Printf("No speeches found in %s", s.ActivityDate)
			continue
		}
		if err := p.db.ReplaceSpeeches(s.ID, batch); err != nil {
			return StepResult{Name: "Split", Err: fmt.Errorf("storing speeches of %s: %w", s.ActivityDate, err)}
		}
		parsed++
		speeches += len(batch)
	}
	return StepResult{
		Name:    "Split",
		Summary: fmt.Sprintf("%d sittings parsed, %d speeches", parsed, speeches),
	}
}

func (p *Pipeline) runMapTopics(opts Options) StepResult {
	log.Println("Step 3/7: Mapping agenda topics...")
	m := agenda.NewMapper(p.db)

	var r *agenda.Result
	var err error
	if opts.Date != "" {
		s, serr := p.db.GetSittingByDate(opts.Date)
		if serr != nil || s == nil {
			return StepResult{Name: "MapTopics", Err: fmt.Errorf("no sitting for %s", opts.Date)}
		}
		r, err = m.MapSitting(s.ID)
	} else {
		r, err = m.MapAll()
	}
	if err != nil {
		return StepResult{Name: "MapTopics", Err: err}
	}
	return StepResult{
		Name:    "MapTopics",
		Summary: fmt.Sprintf("%d assigned, %d unassigned, %d skipped (%d sittings without agenda)", r.Assigned, r.Unassigned, r.Skipped, r.NoAgenda),
	}
}

func (p *Pipeline) runGroups(opts Options) StepResult {
	log.Println("Step 4/7: Normalizing political groups...")
	var speeches []database.Speech
	var err error
	if opts.OverwriteLegacy {
		speeches, err = p.db.GetSpeechesWithGroupRaw(opts.FromID, opts.Limit)
	} else {
		speeches, err = p.db.GetSpeechesNeedingGroup(opts.FromID, opts.Limit)
	}
	if err != nil {
		return StepResult{Name: "NormalizeGroups", Err: err}
	}

	bar := progress.New(os.Stderr, "groups", len(speeches))
	done, matched := 0, 0
	for _, sp := range speeches {
		n := groups.Normalize(*sp.PoliticalGroupRaw)
		// The legacy rewrite never touches the raw column.
		var werr error
		if opts.OverwriteLegacy {
			werr = p.db.OverwriteSpeechGroup(sp.ID, n.Std, string(n.Kind), n.Reason)
		} else {
			werr = p.db.SetSpeechGroup(sp.ID, *sp.PoliticalGroupRaw, n.Std, string(n.Kind), n.Reason)
		}
		if werr != nil {
			return StepResult{Name: "NormalizeGroups", Err: fmt.Errorf("storing group for speech %d: %w", sp.ID, werr)}
		}
		done++
		if n.Kind == groups.KindGroup {
			matched++
		}
		bar.Increment()
	}
	bar.Finish()
	return StepResult{
		Name:    "NormalizeGroups",
		Summary: fmt.Sprintf("%d normalized, %d resolved to groups", done, matched),
	}
}

func (p *Pipeline) runDetect(opts Options) StepResult {
	log.Println("Step 5/7: Detecting languages...")
	speeches, err := p.db.GetSpeechesNeedingLanguage(opts.FromID, opts.Limit)
	if err != nil {
		return StepResult{Name: "DetectLanguage", Err: err}
	}
	if len(speeches) == 0 {
		return StepResult{Name: "DetectLanguage", Summary: "0 speeches to detect"}
	}

	detector := language.New()
	bar := progress.New(os.Stderr, "detect", len(speeches))
	detected, unknown := 0, 0
	for _, sp := range speeches {
		code := detector.Detect(sp.SpeechContent)
		if code == nil {
			unknown++
		} else {
			if err := p.db.SetSpeechLanguage(sp.ID, code); err != nil {
				return StepResult{Name: "DetectLanguage", Err: fmt.Errorf("storing language for speech %d: %w", sp.ID, err)}
			}
			detected++
		}
		bar.Increment()
	}
	bar.Finish()
	return StepResult{
		Name:    "DetectLanguage",
		Summary: fmt.Sprintf("%d detected, %d unconfident", detected, unknown),
	}
}

func (p *Pipeline) runClassify(ctx context.Context, opts Options) StepResult {
	log.Println("Step 6/7: Classifying topics...")

	client := llm.New(p.cfg.Classifier.BaseURL, p.cfg.Classifier.Model, p.cfg.Classifier.APIKeyEnv)
	if !client.IsConfigured() {
		return StepResult{Name: "Classify", Err: fmt.Errorf("%s is not set", p.cfg.Classifier.APIKeyEnv)}
	}
	c := classify.New(p.db, client, p.cfg.Classifier)

	var r *classify.Result
	var err error
	if p.cfg.Classifier.Mode == "topic" {
		r, err = c.ClassifyTopics(ctx, opts.Limit)
	} else {
		r, err = c.ClassifySpeeches(ctx, opts.FromID, opts.Limit)
	}
	if err != nil {
		return StepResult{Name: "Classify", Err: err}
	}
	return StepResult{
		Name: "Classify",
		Summary: fmt.Sprintf("%d classified, %d unknown, %d failed ($%.4f, %d in / %d out tokens)",
			r.Classified, r.Unknown, r.Failed, r.CostUSD, r.InputTokens, r.OutputTokens),
	}
}

func (p *Pipeline) runWarmCache() StepResult {
	log.Println("Step 7/7: Warming analytics cache...")
	cache := analytics.NewCache(p.db)
	if err := cache.Warm(); err != nil {
		return StepResult{Name: "WarmCache", Err: err}
	}
	data := cache.Data()
	return StepResult{
		Name:    "WarmCache",
		Summary: fmt.Sprintf("%d speeches aggregated, %d classified", data.Overview.TotalSpeeches, data.Overview.ClassifiedCount),
	}
}
