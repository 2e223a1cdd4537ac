package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/completion"
	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/output"
	"github.com/joescharf/rangelog/internal/sessions"
)

var (
	sessionTraining string
	sessionDrill    string
	sessionTemplate string
	sessionMode     string
	sessionStatus   string
	customFlags     drillFlags
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Start, end and inspect range sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a session",
	Long: `Start a session for a training drill (--drill), a saved drill template
(--template) or an ad-hoc drill (--target-type and friends).

Any other active session you own is ended first: sessions younger than
session.stale_after are completed, older ones are cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStartRun()
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end [session-id]",
	Short: "End a session and check the drill requirements",
	Long:  "End a session. Without <session-id>, ends your active session.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionEndRun(optionalArg(args))
	},
}

var sessionCancelCmd = &cobra.Command{
	Use:   "cancel [session-id]",
	Short: "Abandon a session without crediting it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCancelRun(optionalArg(args))
	},
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionListRun()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show session details",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionShowRun(optionalArg(args))
	},
}

var sessionStatsCmd = &cobra.Command{
	Use:   "stats [session-id]",
	Short: "Show session statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionStatsRun(optionalArg(args))
	},
}

var sessionScoreCmd = &cobra.Command{
	Use:   "score [session-id]",
	Short: "Show the drill score of a session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionScoreRun(optionalArg(args))
	},
}

var sessionCheckCmd = &cobra.Command{
	Use:   "check [session-id]",
	Short: "Preview the drill requirements without ending the session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionCheckRun(optionalArg(args))
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionTraining, "training", "", "Training id")
	sessionStartCmd.Flags().StringVar(&sessionDrill, "drill", "", "Training drill id")
	sessionStartCmd.Flags().StringVar(&sessionTemplate, "template", "", "Drill template id")
	sessionStartCmd.Flags().StringVar(&sessionMode, "mode", "solo", "Mode: solo, group")
	customFlags.register(sessionStartCmd, "target-type")

	sessionListCmd.Flags().StringVar(&sessionStatus, "status", "", "Filter by status: active, completed, cancelled")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionCancelCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionStatsCmd)
	sessionCmd.AddCommand(sessionScoreCmd)
	sessionCmd.AddCommand(sessionCheckCmd)
	rootCmd.AddCommand(sessionCmd)
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// sessionEnv returns the engine and an owner-scoped context.
func sessionEnv() (*sessions.Manager, context.Context, error) {
	ctx, err := ownerContext()
	if err != nil {
		return nil, nil, err
	}
	m, err := newManager()
	if err != nil {
		return nil, nil, err
	}
	return m, ctx, nil
}

func sessionStartRun() error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}

	custom, err := customFlags.config()
	if err != nil {
		return err
	}
	req := sessions.CreateRequest{
		TeamID:          viper.GetString("team_id"),
		TrainingID:      sessionTraining,
		DrillID:         sessionDrill,
		DrillTemplateID: sessionTemplate,
		CustomDrill:     custom,
		Mode:            models.SessionMode(sessionMode),
	}

	if dryRun {
		ui.DryRunMsg("Would start a %s session (training=%q drill=%q template=%q)", sessionMode, sessionTraining, sessionDrill, sessionTemplate)
		return nil
	}

	sess, err := m.CreateSession(ctx, req)
	if err != nil {
		var conflict *sessions.ConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("%w\nEnd it first: rangelog session end %s", err, shortID(conflict.SessionID))
		}
		return err
	}

	src, err := m.ResolveDrill(ctx, sess)
	if err != nil {
		return err
	}
	needs := drill.Resolve(src.Config)
	ui.Success("Session %s active: %s (%s)", output.Cyan(shortID(sess.ID)), src.Name, src.Config.TargetType)
	ui.VerboseLog("requires %d target(s), %d shot(s)", needs.RequiredTargets, needs.RequiredShots)
	return nil
}

// resolveSessionID expands an id prefix, or picks the active session when
// ref is empty.
func resolveSessionID(ctx context.Context, m *sessions.Manager, ref string) (string, error) {
	if ref == "" {
		active, err := m.ListSessions(ctx, models.SessionStatusActive)
		if err != nil {
			return "", err
		}
		if len(active) == 0 {
			return "", fmt.Errorf("no active session; pass a session id")
		}
		return active[0].ID, nil
	}

	if sess, err := m.GetSession(ctx, ref); err == nil {
		return sess.ID, nil
	}

	all, err := m.ListSessions(ctx, "")
	if err != nil {
		return "", err
	}
	upper := strings.ToUpper(ref)
	var matches []string
	for _, sess := range all {
		if strings.HasPrefix(sess.ID, upper) {
			matches = append(matches, sess.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous session ID %s: matches %d sessions", ref, len(matches))
	}
}

func sessionEndRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would end session %s", shortID(id))
		return sessionCheckRun(id)
	}

	sess, err := m.EndSession(ctx, id)
	if err != nil {
		return err
	}
	ui.Success("Session %s %s after %s", output.Cyan(shortID(sess.ID)), output.StatusColor(string(sess.Status)), formatDuration(sess.Duration(time.Now())))

	result, err := m.Evaluate(ctx, sess.ID)
	if err != nil {
		ui.Warning("Could not evaluate drill: %v", err)
		return nil
	}
	printGates(result)
	if sess.TrainingID != "" && sess.DrillID != "" {
		if result.Passed {
			ui.Success("Drill completed")
		} else {
			ui.Warning("Drill not completed: %s", joinGates(result.Failed()))
		}
	}
	return nil
}

func sessionCancelRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would cancel session %s", shortID(id))
		return nil
	}
	sess, err := m.CancelSession(ctx, id)
	if err != nil {
		return err
	}
	ui.Success("Session %s %s", output.Cyan(shortID(sess.ID)), output.StatusColor(string(sess.Status)))
	return nil
}

func sessionListRun() error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	list, err := m.ListSessions(ctx, models.SessionStatus(sessionStatus))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ui.Info("No sessions found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Status", "Drill", "Targets", "Accuracy", "Started", "Duration"})
	now := time.Now()
	for _, sess := range list {
		drillName := "-"
		if src, err := m.ResolveDrill(ctx, sess); err == nil {
			drillName = src.Name
		}
		targets, accuracy := "-", "-"
		if st, err := m.GetSessionStats(ctx, sess.ID); err == nil {
			targets = fmt.Sprintf("%d", st.TargetCount)
			if st.ManualShots > 0 {
				accuracy = output.AccuracyColor(st.AccuracyPct)
			}
		}
		_ = table.Append([]string{
			shortID(sess.ID),
			output.StatusColor(string(sess.Status)),
			drillName,
			targets,
			accuracy,
			timeAgo(sess.StartedAt),
			formatDuration(sess.Duration(now)),
		})
	}
	_ = table.Render()
	return nil
}

func sessionShowRun(ref string) error {
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

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(sess.ID)), output.StatusColor(string(sess.Status)))
	if src, err := m.ResolveDrill(ctx, sess); err == nil {
		req := drill.Resolve(src.Config)
		fmt.Fprintf(ui.Out, "  Drill:      %s (%s, %s)\n", src.Name, src.Kind, src.Config.TargetType)
		fmt.Fprintf(ui.Out, "  Requires:   %d target(s), %d shot(s)\n", req.RequiredTargets, req.RequiredShots)
	}
	if sess.TrainingID != "" {
		fmt.Fprintf(ui.Out, "  Training:   %s\n", sess.TrainingID)
	}
	fmt.Fprintf(ui.Out, "  Mode:       %s\n", sess.Mode)
	fmt.Fprintf(ui.Out, "  Started:    %s\n", sess.StartedAt.Local().Format(time.RFC3339))
	if sess.EndedAt != nil {
		fmt.Fprintf(ui.Out, "  Ended:      %s\n", sess.EndedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(ui.Out, "  Duration:   %s\n", formatDuration(sess.Duration(time.Now())))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", sess.ID)

	targets, err := m.ListTargets(ctx, sess.ID)
	if err != nil {
		return err
	}
	if len(targets) > 0 {
		fmt.Fprintln(ui.Out)
		printTargets(targets)
	}
	return nil
}

func sessionStatsRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	st, err := m.GetSessionStats(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(shortID(id)))
	fmt.Fprintf(ui.Out, "  Targets:    %d (%d paper, %d tactical)\n", st.TargetCount, st.PaperTargets, st.TacticalTargets)
	fmt.Fprintf(ui.Out, "  Shots:      %d\n", st.TotalShots)
	fmt.Fprintf(ui.Out, "  Hits:       %d\n", st.TotalHits)
	fmt.Fprintf(ui.Out, "  Accuracy:   %s (%d/%d manually counted)\n", output.AccuracyColor(st.AccuracyPct), st.ManualHits, st.ManualShots)
	if st.AvgDispersionCM != nil {
		fmt.Fprintf(ui.Out, "  Dispersion: avg %.2f cm, best %.2f cm\n", *st.AvgDispersionCM, *st.BestDispersionCM)
	}
	if st.AvgTimeSeconds != nil {
		fmt.Fprintf(ui.Out, "  Time:       avg %.2f s, fastest %.2f s\n", *st.AvgTimeSeconds, *st.FastestTimeSeconds)
	}
	if st.TacticalTargets > 0 {
		fmt.Fprintf(ui.Out, "  Cleared:    %d/%d stages\n", st.StagesCleared, st.TacticalTargets)
	}
	return nil
}

func sessionScoreRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	score, ok, err := m.GetScore(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		ui.Info("Drill has no scoring configured.")
		return nil
	}
	fmt.Fprintf(ui.Out, "%s  %s points\n", output.Cyan(shortID(id)), output.Green(fmt.Sprintf("%.1f", score)))
	return nil
}

func sessionCheckRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	result, err := m.Evaluate(ctx, id)
	if err != nil {
		return err
	}
	printGates(result)
	if result.Passed {
		ui.Success("All requirements met")
	} else {
		ui.Warning("Not met: %s", joinGates(result.Failed()))
	}
	return nil
}

func printGates(result completion.Result) {
	table := ui.Table([]string{"", "Gate", "Required", "Actual"})
	for _, g := range result.Gates {
		_ = table.Append([]string{output.GateMark(g.Passed), string(g.Name), g.Required, g.Actual})
	}
	_ = table.Render()
	for _, g := range result.Gates {
		if !g.Passed {
			ui.VerboseLog("%s: %s", g.Name, g.Reason)
		}
	}
}

func joinGates(names []completion.GateName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
