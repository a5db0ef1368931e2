package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"submission-grader/internal/analysis"
	"submission-grader/internal/app"
	"submission-grader/internal/format"
	"submission-grader/internal/grader"
	"submission-grader/internal/judge"
	"submission-grader/internal/runtime"
	"submission-grader/internal/similarity"
)

var (
	questionPath string
	language     string
	method       string
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate [file]",
		Short: "Evaluate one submission against a question file",
		Args:  cobra.ExactArgs(1),
		RunE:  runEvaluate,
	}
	cmd.Flags().StringVarP(&questionPath, "question", "q", "", "Question TOML file")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the file extension)")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [files...]",
		Short: "Evaluate several submissions in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	cmd.Flags().StringVarP(&questionPath, "question", "q", "", "Question TOML file")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the file extension)")
	_ = cmd.MarkFlagRequired("question")
	return cmd
}

func newSimilarityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similarity [files...]",
		Short: "Report similar pairs among submissions",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSimilarity,
	}
	cmd.Flags().StringVarP(&method, "method", "m", string(similarity.Syntactic), "Comparison method (syntactic, semantic)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the file extension)")
	return cmd
}

func newPerfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perf [file]",
		Short: "Estimate the algorithmic complexity of a submission",
		Args:  cobra.ExactArgs(1),
		RunE:  runPerf,
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the file extension)")
	return cmd
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the available analysis profiles",
		Args:  cobra.NoArgs,
		RunE:  runProfiles,
	}
}

// setup loads configuration and builds components; the context is
// cancelled on SIGINT or SIGTERM.
func setup() (context.Context, context.CancelFunc, *app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, func() { _ = a.Close(); cancel() }, a, nil
}

func readSubmission(runtimes *runtime.Registry, path string) (grader.Submission, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- user-supplied submission path
	if err != nil {
		return grader.Submission{}, fmt.Errorf("reading submission: %w", err)
	}
	lang := language
	if lang == "" {
		lang = detectLanguage(runtimes, path)
	}
	base := filepath.Base(path)
	return grader.Submission{
		ID:       strings.TrimSuffix(base, filepath.Ext(base)),
		Language: lang,
		Source:   string(data),
	}, nil
}

func detectLanguage(runtimes *runtime.Registry, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for _, name := range runtimes.Languages() {
		if rt, err := runtimes.Get(name); err == nil && rt.FileExtension() == ext {
			return name
		}
	}
	return ""
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	q, err := grader.LoadQuestion(questionPath)
	if err != nil {
		return err
	}
	ctx, done, a, err := setup()
	if err != nil {
		return err
	}
	defer done()

	sub, err := readSubmission(a.Runtimes, args[0])
	if err != nil {
		return err
	}
	ev, err := a.Grader.Evaluate(ctx, sub, q)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(ev)
	}

	fmt.Println(ev.Feedback)
	fmt.Println()
	fmt.Println(caseTable(ev.Cases))
	fmt.Printf("Score: %s / %s (%s)\n", format.Num(ev.Score), format.Num(ev.MaxScore), ev.Status)
	return nil
}

func caseTable(cases []judge.CaseResult) string {
	t := format.NewTable(format.ParseMode(output))
	t.Header("Case", "State", "Passed", "Time", "Points")
	t.Columns(format.Column{Number: 4, Align: format.AlignRight}, format.Column{Number: 5, Align: format.AlignRight})
	for _, c := range cases {
		t.Row(c.CaseID, c.State, format.YesNo(c.Passed), format.Millis(c.Duration), format.Num(c.PointsAwarded))
	}
	t.Footer("", "", fmt.Sprintf("%d/%d", judge.Passed(cases), len(cases)), "", format.Num(judge.Score(cases)))
	return t.String()
}

func runBatch(cmd *cobra.Command, args []string) error {
	q, err := grader.LoadQuestion(questionPath)
	if err != nil {
		return err
	}
	ctx, done, a, err := setup()
	if err != nil {
		return err
	}
	defer done()

	subs := make([]grader.Submission, 0, len(args))
	for _, path := range args {
		sub, err := readSubmission(a.Runtimes, path)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	res, err := a.Grader.EvaluateBatch(ctx, subs, q)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}

	t := format.NewTable(format.ParseMode(output))
	t.Header("Submission", "Status", "Passed", "Score", "Error")
	t.Columns(format.Column{Number: 4, Align: format.AlignRight}, format.Column{Number: 5, MaxWidth: 60})
	for _, it := range res.Items {
		if it.Evaluation == nil {
			t.Row(it.Submission.ID, "failed", "-", "-", it.Error)
			continue
		}
		ev := it.Evaluation
		t.Row(it.Submission.ID, ev.Status, fmt.Sprintf("%d/%d", judge.Passed(ev.Cases), len(q.Cases)),
			format.Num(ev.Score)+"/"+format.Num(ev.MaxScore), "")
	}
	fmt.Println(t.String())

	if q.Features.Similarity {
		fmt.Println()
		if res.Similarity != "" {
			fmt.Println("Similarity check failed:", res.Similarity)
		} else {
			fmt.Println(pairTable(res.Similar))
		}
	}
	return nil
}

func pairTable(pairs []similarity.Pair) string {
	if len(pairs) == 0 {
		return "No similar pairs above the threshold."
	}
	t := format.NewTable(format.ParseMode(output))
	t.Header("Submission A", "Submission B", "Similarity %", "Method")
	t.Columns(format.Column{Number: 3, Align: format.AlignRight})
	for _, p := range pairs {
		t.Row(p.IDA, p.IDB, fmt.Sprintf("%.2f", p.Percent), p.Method)
	}
	return t.String()
}

func runSimilarity(cmd *cobra.Command, args []string) error {
	ctx, done, a, err := setup()
	if err != nil {
		return err
	}
	defer done()

	inputs := make([]similarity.Input, 0, len(args))
	for _, path := range args {
		sub, err := readSubmission(a.Runtimes, path)
		if err != nil {
			return err
		}
		inputs = append(inputs, similarity.Input{ID: sub.ID, Language: sub.Language, Source: sub.Source})
	}

	pairs, err := a.Similarity.Run(ctx, similarity.Method(method), inputs)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(pairs)
	}
	fmt.Println(pairTable(pairs))
	return nil
}

func runPerf(cmd *cobra.Command, args []string) error {
	ctx, done, a, err := setup()
	if err != nil {
		return err
	}
	defer done()

	sub, err := readSubmission(a.Runtimes, args[0])
	if err != nil {
		return err
	}
	res, err := a.Estimator.Run(ctx, sub.Language, sub.Source)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(res)
	}
	fmt.Println(res.Report)
	return nil
}

func runProfiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := analysis.NewRegistryFromConfig(cfg.Analysis.Profiles)
	if err != nil {
		return err
	}

	profiles := registry.Profiles()
	if jsonOut {
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.Name
		}
		return printJSON(names)
	}

	t := format.NewTable(format.ParseMode(output))
	t.Header("Profile", "Command", "Suffix", "Success rule")
	for _, p := range profiles {
		t.Row(p.Name, strings.Join(append([]string{p.Command}, p.BaseArgs...), " "), p.Suffix, p.RuleName())
	}
	fmt.Println(t.String())
	return nil
}
