package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/rangelog/internal/llm"
	"github.com/joescharf/rangelog/internal/output"
)

var debriefCmd = &cobra.Command{
	Use:   "debrief [session-id]",
	Short: "Get an AI coaching debrief for a session",
	Long: `Send the session's drill, statistics and requirement outcomes to the
Anthropic API and print a short coaching summary. Requires
anthropic.api_key or ANTHROPIC_API_KEY.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return debriefRun(cmd, optionalArg(args))
	},
}

func init() {
	rootCmd.AddCommand(debriefCmd)
}

func debriefRun(cmd *cobra.Command, ref string) error {
	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("no Anthropic API key: set anthropic.api_key or ANTHROPIC_API_KEY")
	}
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	sess, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	src, err := m.ResolveDrill(ctx, sess)
	if err != nil {
		return err
	}
	result, err := m.Evaluate(ctx, id)
	if err != nil {
		return err
	}

	in := llm.DebriefInput{
		DrillName: src.Name,
		Config:    src.Config,
		Stats:     result.Stats,
		Gates:     result.Gates,
		Duration:  sess.Duration(time.Now()),
	}
	if score, ok, err := m.GetScore(ctx, id); err == nil && ok {
		in.Score = &score
	}

	if dryRun {
		ui.DryRunMsg("Would request a debrief for session %s", shortID(id))
		return nil
	}

	ui.VerboseLog("Requesting debrief for %s", shortID(id))
	debrief, err := client.Debrief(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "%s  %s\n\n", output.Cyan(shortID(id)), src.Name)
	fmt.Fprintln(ui.Out, debrief.Summary)
	if len(debrief.FocusPoints) > 0 {
		fmt.Fprintln(ui.Out)
		for _, p := range debrief.FocusPoints {
			fmt.Fprintf(ui.Out, "  - %s\n", p)
		}
	}
	return nil
}
