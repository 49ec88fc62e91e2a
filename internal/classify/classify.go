package classify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/eurowatch/eurowatch/internal/config"
	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/llm"
)

const maxBodyChars = 6000

const systemPromptHeader = `You classify European Parliament plenary interventions into exactly one category.

Allowed categories:
%s

Decision rules:
1. If the intervention is about the conduct of the session itself (openings, votes, points of order), pick the matching procedural category.
2. Otherwise, if it is about the EU institutions themselves (budget, discharge, treaties, oversight), pick the matching institutional category.
3. Otherwise, if it is a debate on the situation in one specific country, pick "Country-Specific Situations" or a more specific external-relations category when one applies.
4. Otherwise pick the policy-domain category that best matches the substance.
5. When several categories apply, choose the most specific one.
6. Never use the speaker's identity or political group as a classification cue.

Respond with the category name only, copied verbatim from the list. No explanation, no punctuation, no quotes.`

// Result summarizes a classification run.
type Result struct {
	Processed       int
	Classified      int
	Unknown         int
	Failed          int
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	CostUSD         float64
}

// Classifier assigns macro topics to speeches via a chat LLM, under
// per-minute request and token budgets.
type Classifier struct {
	db       *database.DB
	client   *llm.Client
	cfg      config.Classifier
	requests *rate.Limiter
	tokens   *rate.Limiter

	mu  sync.Mutex
	res Result
}

// New creates a classifier. The request and token buckets hold one
// minute's budget scaled by the configured headroom, so a burst can spend
// the minute's allowance and then waits for refill.
func New(db *database.DB, client *llm.Client, cfg config.Classifier) *Classifier {
	rpm := float64(cfg.RequestsPerMinute) * cfg.BudgetHeadroom
	tpm := float64(cfg.TokensPerMinute) * cfg.BudgetHeadroom
	return &Classifier{
		db:       db,
		client:   client,
		cfg:      cfg,
		requests: rate.NewLimiter(rate.Limit(rpm/60), int(rpm)),
		tokens:   rate.NewLimiter(rate.Limit(tpm/60), int(tpm)),
	}
}

func systemPrompt() string {
	return fmt.Sprintf(systemPromptHeader, strings.Join(Taxonomy, "\n"))
}

// ClassifySpeeches classifies every speech without a macro topic, in
// bounded parallel batches. Per-speech failures are recorded as Unknown
// and do not stop the run.
func (c *Classifier) ClassifySpeeches(ctx context.Context, fromID int64, limit int) (*Result, error) {
	speeches, err := c.db.GetSpeechesNeedingClassification(fromID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading unclassified speeches: %w", err)
	}
	if len(speeches) == 0 {
		log.Println("No speeches pending classification")
		return &Result{}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())
	for _, sp := range speeches {
		sp := sp
		g.Go(func() error {
			c.classifySpeech(ctx, sp)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return c.snapshot(), err
	}

	r := c.snapshot()
	log.Printf("Classification complete: %d processed (%d classified, %d unknown, %d failed), $%.4f",
		r.Processed, r.Classified, r.Unknown, r.Failed, r.CostUSD)
	return r, nil
}

// ClassifyTopics classifies distinct agenda topics and fans each label out
// to every unclassified speech sharing that topic. Much cheaper than
// per-speech mode when topic mapping succeeded.
func (c *Classifier) ClassifyTopics(ctx context.Context, limit int) (*Result, error) {
	topics, err := c.db.GetTopicsNeedingClassification(limit)
	if err != nil {
		return nil, fmt.Errorf("loading unclassified topics: %w", err)
	}
	if len(topics) == 0 {
		log.Println("No agenda topics pending classification")
		return &Result{}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())
	for _, topic := range topics {
		topic := topic
		g.Go(func() error {
			c.classifyTopic(ctx, topic)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return c.snapshot(), err
	}

	r := c.snapshot()
	log.Printf("Topic classification complete: %d topics (%d classified, %d unknown, %d failed), $%.4f",
		r.Processed, r.Classified, r.Unknown, r.Failed, r.CostUSD)
	return r, nil
}

func (c *Classifier) classifySpeech(ctx context.Context, sp database.Speech) {
	body := sp.SpeechContent
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Speaker: %s\n", orUnknown(sp.SpeakerName))
	fmt.Fprintf(&b, "Political Group: %s\n", orUnknown(sp.PoliticalGroupStd))
	fmt.Fprintf(&b, "Language: %s\n", orUnknown(sp.Language))
	fmt.Fprintf(&b, "Speech:\n```\n%s\n```", body)

	label, cost, ok := c.complete(ctx, b.String())

	var err error
	if ok {
		err = c.db.SetSpeechClassification(sp.ID, label, nil, nil,
			c.cfg.Model, database.NowMillis(), cost)
	} else {
		// failed all retries: mark Unknown with no cost
		err = c.db.SetSpeechClassification(sp.ID, "Unknown", nil, nil,
			c.cfg.Model, database.NowMillis(), 0)
	}
	if err != nil {
		log.Printf("Error storing classification for speech %d: %v", sp.ID, err)
		c.count(func(r *Result) { r.Failed++ })
		return
	}
	c.record(label, cost, ok)
}

func (c *Classifier) classifyTopic(ctx context.Context, topic string) {
	envelope := fmt.Sprintf("Agenda topic:\n```\n%s\n```", topic)

	label, cost, ok := c.complete(ctx, envelope)
	if !ok {
		label, cost = "Unknown", 0
	}

	n, err := c.db.SetClassificationByTopic(topic, label, c.cfg.Model, database.NowMillis(), cost)
	if err != nil {
		log.Printf("Error storing classification for topic %q: %v", topic, err)
		c.count(func(r *Result) { r.Failed++ })
		return
	}
	log.Printf("Classified topic %q as %q (%d speeches)", topic, label, n)
	c.record(label, cost, ok)
}

// complete runs the chat call with retries and verbatim-label validation.
// A non-taxonomy reply gets one corrective round trip; a second mismatch
// resolves to Unknown. Returns ok=false only when all attempts errored.
func (c *Classifier) complete(ctx context.Context, envelope string) (label string, cost float64, ok bool) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt()},
		{Role: "user", Content: envelope},
	}

	content, cost, err := c.chat(ctx, messages)
	if err != nil {
		log.Printf("Classification request failed: %v", err)
		return "", 0, false
	}

	label = cleanLabel(content)
	if IsLabel(label) {
		return label, cost, true
	}

	messages = append(messages,
		llm.Message{Role: "assistant", Content: content},
		llm.Message{Role: "user", Content: "That is not one of the allowed categories. Reply with exactly one category name from the list, verbatim."},
	)
	content, cost2, err := c.chat(ctx, messages)
	cost += cost2
	if err != nil {
		log.Printf("Classification retry failed: %v", err)
		return "", cost, false
	}

	label = cleanLabel(content)
	if !IsLabel(label) {
		label = "Unknown"
	}
	return label, cost, true
}

// chat waits on the request and token budgets, then calls the LLM with
// exponential backoff on retryable failures.
func (c *Classifier) chat(ctx context.Context, messages []llm.Message) (string, float64, error) {
	estimate := c.cfg.MaxTokens
	for _, m := range messages {
		estimate += len(m.Content) / 4
	}
	if err := c.tokens.WaitN(ctx, estimate); err != nil {
		return "", 0, err
	}
	if err := c.requests.Wait(ctx); err != nil {
		return "", 0, err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			case <-ctx.Done():
				return "", 0, ctx.Err()
			}
		}

		content, usage, err := c.client.Chat(ctx, messages, c.cfg.MaxTokens)
		if err == nil {
			cost := c.addUsage(usage)
			return content, cost, nil
		}
		lastErr = err

		if se, isStatus := err.(*llm.StatusError); isStatus && !se.Retryable() {
			break
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
	}
	return "", 0, lastErr
}

func (c *Classifier) addUsage(u llm.Usage) float64 {
	cost := float64(u.InputTokens)*c.cfg.PricePerMillionInput/1e6 +
		float64(u.OutputTokens)*c.cfg.PricePerMillionOutput/1e6

	c.mu.Lock()
	c.res.InputTokens += u.InputTokens
	c.res.OutputTokens += u.OutputTokens
	c.res.ReasoningTokens += u.ReasoningTokens
	c.res.CostUSD += cost
	c.mu.Unlock()
	return cost
}

func (c *Classifier) record(label string, cost float64, ok bool) {
	c.count(func(r *Result) {
		r.Processed++
		switch {
		case !ok:
			r.Failed++
		case label == "Unknown":
			r.Unknown++
		default:
			r.Classified++
		}
	})
}

func (c *Classifier) count(fn func(*Result)) {
	c.mu.Lock()
	fn(&c.res)
	c.mu.Unlock()
}

func (c *Classifier) snapshot() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.res
	return &r
}

func (c *Classifier) concurrency() int {
	if c.cfg.Concurrency > 0 {
		return c.cfg.Concurrency
	}
	return 10
}

// cleanLabel strips the wrapping a chat model tends to add around a bare
// category name.
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`\"'")
	s = strings.TrimSuffix(s, ".")
	return strings.TrimSpace(s)
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return "Unknown"
	}
	return *s
}
