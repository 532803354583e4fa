// Command activityctl runs maintenance jobs of the activity feed against the
// configured database: status automation, derived cache refresh, attention
// inspection and mention classification.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/gitactivity/internal/app"
	"github.com/ericfisherdev/gitactivity/internal/application"
	"github.com/ericfisherdev/gitactivity/internal/config"
	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func commands() []*Command {
	return []*Command{
		automationCommand(),
		refreshCachesCommand(),
		attentionCommand(),
		classifyMentionsCommand(),
	}
}

// run parses global flags, resolves the subcommand and executes it. Returns
// the process exit code.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	global := flag.NewFlagSet("activityctl", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	global.SetInterspersed(false)
	dbPath := global.String("db", "", "Database path (overrides ACTIVITY_DB_PATH)")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage(out)
			return 0
		}
		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut)
		return 1
	}

	rest := global.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(out)
		return 0
	}

	var cmd *Command
	for _, c := range commands() {
		if c.Name() == rest[0] {
			cmd = c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(errOut, "error: unknown command %q\n", rest[0])
		printUsage(errOut)
		return 1
	}

	help, err := cmd.Parse(rest[1:])
	if help {
		cmd.PrintHelp(out)
		return 0
	}
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		fmt.Fprintln(errOut)
		cmd.PrintHelp(errOut)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	slog.SetDefault(app.NewLogger(cfg, errOut))

	a, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := cmd.Exec(ctx, a, out); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: activityctl [--db path] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintln(w, c.HelpLine())
	}
}

func automationCommand() *Command {
	fs := flag.NewFlagSet("automation", flag.ContinueOnError)
	force := fs.Bool("force", false, "Run even when the sync watermark has not moved")

	return &Command{
		Flags: fs,
		Usage: "automation [--force]",
		Short: "Derive issue status events from linked pull requests",
		Exec: func(ctx context.Context, a *app.App, out io.Writer) error {
			res, err := a.Automation.Ensure(ctx, application.TriggerManual, *force)
			if err != nil {
				return err
			}
			state, err := a.Automation.State(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, struct {
				application.AutomationResult
				State *model.AutomationState `json:"State,omitempty"`
			}{res, state})
		},
	}
}

func refreshCachesCommand() *Command {
	fs := flag.NewFlagSet("refresh-caches", flag.ContinueOnError)
	force := fs.Bool("force", false, "Rebuild every cache even when current")

	return &Command{
		Flags: fs,
		Usage: "refresh-caches [--force]",
		Short: "Rebuild filter options and link caches for the latest sync run",
		Exec: func(ctx context.Context, a *app.App, out io.Writer) error {
			res, err := a.Caches.Ensure(ctx, *force)
			if err != nil {
				return err
			}
			return writeJSON(out, res)
		},
	}
}

// attentionReport is the JSON printed by the attention command.
type attentionReport struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Thresholds  model.AttentionThresholds `json:"thresholds"`
	Counts      map[string]int            `json:"counts"`
	Sets        model.AttentionSets       `json:"sets"`
}

func attentionCommand() *Command {
	fs := flag.NewFlagSet("attention", flag.ContinueOnError)
	useClassifier := fs.Bool("use-classifier", false, "Drop mentions the classifier judged as not needing a response")
	var th model.AttentionThresholds
	fs.IntVar(&th.StalePRDays, "stale-pr-days", 0, "Business days before an open pull request is stale")
	fs.IntVar(&th.IdlePRDays, "idle-pr-days", 0, "Business days without pull request activity")
	fs.IntVar(&th.ReviewRequestDays, "review-request-days", 0, "Business days a review request may wait")
	fs.IntVar(&th.BacklogIssueDays, "backlog-issue-days", 0, "Business days before an unstarted issue is backlog")
	fs.IntVar(&th.StalledIssueDays, "stalled-issue-days", 0, "Business days before an in-progress issue stalls")
	fs.IntVar(&th.UnansweredMentionDays, "unanswered-mention-days", 0, "Business days a mention may go unanswered")

	return &Command{
		Flags: fs,
		Usage: "attention [flags]",
		Short: "Print the current attention sets as JSON",
		Exec: func(ctx context.Context, a *app.App, out io.Writer) error {
			if err := (model.ActivityFilter{Thresholds: th}).Validate(); err != nil {
				return err
			}
			thresholds := model.DefaultAttentionThresholds().Merge(th).Normalize()
			sets, err := a.Attention.Compute(ctx, application.AttentionOptions{
				Now:                  time.Now(),
				Thresholds:           thresholds,
				UseMentionClassifier: *useClassifier,
			})
			if err != nil {
				return err
			}
			return writeJSON(out, attentionReport{
				GeneratedAt: sets.GeneratedAt,
				Thresholds:  thresholds,
				Counts: map[string]int{
					string(model.AttentionStalePRs):          len(sets.StaleOpenPRs),
					string(model.AttentionIdlePRs):           len(sets.IdleOpenPRs),
					string(model.AttentionReviewRequests):    len(sets.StuckReviewRequests),
					string(model.AttentionBacklogIssues):     len(sets.BacklogIssues),
					string(model.AttentionStalledIssues):     len(sets.StalledInProgressIssues),
					string(model.AttentionUnansweredMention): len(sets.UnansweredMentions),
				},
				Sets: sets,
			})
		},
	}
}

func classifyMentionsCommand() *Command {
	fs := flag.NewFlagSet("classify-mentions", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "Maximum mentions to classify, 0 for all")

	return &Command{
		Flags: fs,
		Usage: "classify-mentions [--limit n]",
		Short: "Ask the configured model which pending mentions need a response",
		Exec: func(ctx context.Context, a *app.App, out io.Writer) error {
			res, err := a.Mentions.ClassifyPending(ctx, *limit)
			if err != nil {
				return err
			}
			return writeJSON(out, res)
		},
	}
}
