package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/output"
	"github.com/joescharf/rangelog/internal/sessions"
)

var (
	targetSession  string
	targetType     string
	targetDistance float64
	targetPlanned  int
	targetNotes    string

	resultShots      int
	resultHits       int
	resultDispersion float64
	resultTime       float64
	resultCleared    bool
	resultSource     string
	resultScanRef    string
)

var targetCmd = &cobra.Command{
	Use:     "target",
	Aliases: []string{"t"},
	Short:   "Log targets and results in a session",
}

var targetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a target to a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetAddRun()
	},
}

var targetResultCmd = &cobra.Command{
	Use:   "result <target-id>",
	Short: "Record the result of a target",
	Long: `Record the result of a target. Paper targets take --shots, --hits and
optionally --dispersion. Tactical targets take --shots, --hits, --time and
--cleared. A target takes one result only.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetResultRun(cmd, args[0])
	},
}

var targetListCmd = &cobra.Command{
	Use:     "list [session-id]",
	Aliases: []string{"ls"},
	Short:   "List the targets of a session",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return targetListRun(optionalArg(args))
	},
}

func init() {
	targetAddCmd.Flags().StringVar(&targetSession, "session", "", "Session id (default: active session)")
	targetAddCmd.Flags().StringVar(&targetType, "type", "paper", "Target type: paper, tactical")
	targetAddCmd.Flags().Float64Var(&targetDistance, "distance", 0, "Distance in meters")
	targetAddCmd.Flags().IntVar(&targetPlanned, "planned", 0, "Planned shots")
	targetAddCmd.Flags().StringVar(&targetNotes, "notes", "", "Notes")

	targetResultCmd.Flags().IntVar(&resultShots, "shots", 0, "Bullets fired")
	targetResultCmd.Flags().IntVar(&resultHits, "hits", 0, "Hits")
	targetResultCmd.Flags().Float64Var(&resultDispersion, "dispersion", 0, "Group dispersion in cm (paper)")
	targetResultCmd.Flags().Float64Var(&resultTime, "time", 0, "Engagement time in seconds (tactical)")
	targetResultCmd.Flags().BoolVar(&resultCleared, "cleared", false, "Stage cleared (tactical)")
	targetResultCmd.Flags().StringVar(&resultSource, "source", "manual", "Paper result source: manual, scan")
	targetResultCmd.Flags().StringVar(&resultScanRef, "scan-ref", "", "Scan reference for scanned paper results")

	targetCmd.AddCommand(targetAddCmd)
	targetCmd.AddCommand(targetResultCmd)
	targetCmd.AddCommand(targetListCmd)
	rootCmd.AddCommand(targetCmd)
}

func targetAddRun() error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, targetSession)
	if err != nil {
		return err
	}

	spec := sessions.TargetSpec{
		Type:         models.TargetType(targetType),
		DistanceM:    targetDistance,
		PlannedShots: targetPlanned,
		Notes:        targetNotes,
	}
	if dryRun {
		ui.DryRunMsg("Would add a %s target to session %s", targetType, shortID(id))
		return nil
	}

	t, err := m.AppendTarget(ctx, id, spec)
	if err != nil {
		return err
	}
	ui.Success("Target #%d (%s) added: %s", t.Sequence, t.Type, output.Cyan(shortID(t.ID)))
	return nil
}

// resolveTarget expands a target id prefix within the active session and
// reports the target's type when it is found there.
func resolveTarget(ctx context.Context, m *sessions.Manager, ref string) (string, models.TargetType) {
	sessID, err := resolveSessionID(ctx, m, "")
	if err != nil {
		return ref, ""
	}
	targets, err := m.ListTargets(ctx, sessID)
	if err != nil {
		return ref, ""
	}
	upper := strings.ToUpper(ref)
	var match *models.Target
	for _, t := range targets {
		if t.ID == ref {
			return t.ID, t.Type
		}
		if strings.HasPrefix(t.ID, upper) {
			if match != nil {
				return ref, ""
			}
			match = t
		}
	}
	if match == nil {
		return ref, ""
	}
	return match.ID, match.Type
}

// resultSpecFromFlags builds a result of the given kind. Optional values are
// only set when their flag was passed.
func resultSpecFromFlags(cmd *cobra.Command, kind models.TargetType) sessions.ResultSpec {
	if kind == models.TargetTypeTactical {
		r := &models.TacticalResult{BulletsFired: resultShots, Hits: resultHits, StageCleared: resultCleared}
		if cmd.Flags().Changed("time") {
			v := resultTime
			r.TimeSeconds = &v
		}
		return sessions.ResultSpec{Tactical: r}
	}
	r := &models.PaperResult{
		BulletsFired: resultShots,
		HitsTotal:    resultHits,
		Source:       models.ResultSource(resultSource),
		ScanRef:      resultScanRef,
	}
	if cmd.Flags().Changed("dispersion") {
		v := resultDispersion
		r.DispersionCM = &v
	}
	return sessions.ResultSpec{Paper: r}
}

func targetResultRun(cmd *cobra.Command, ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, kind := resolveTarget(ctx, m, ref)
	if kind == "" {
		kind = models.TargetTypePaper
		if cmd.Flags().Changed("time") || cmd.Flags().Changed("cleared") {
			kind = models.TargetTypeTactical
		}
	}
	if dryRun {
		ui.DryRunMsg("Would record %d/%d on %s target %s", resultHits, resultShots, kind, shortID(id))
		return nil
	}

	t, err := m.AttachResult(ctx, id, resultSpecFromFlags(cmd, kind))
	if err != nil {
		return err
	}
	ui.Success("Recorded %d/%d on target #%d", resultHits, resultShots, t.Sequence)
	return nil
}

func targetListRun(ref string) error {
	m, ctx, err := sessionEnv()
	if err != nil {
		return err
	}
	id, err := resolveSessionID(ctx, m, ref)
	if err != nil {
		return err
	}
	targets, err := m.ListTargets(ctx, id)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		ui.Info("No targets logged.")
		return nil
	}
	printTargets(targets)
	return nil
}

func printTargets(targets []*models.Target) {
	table := ui.Table([]string{"#", "ID", "Type", "Distance", "Shots", "Hits", "Detail"})
	for _, t := range targets {
		shots, hits, detail := "-", "-", "no result"
		switch {
		case t.Paper != nil:
			shots = fmt.Sprintf("%d", t.Paper.BulletsFired)
			hits = fmt.Sprintf("%d", t.Paper.HitsTotal)
			detail = string(t.Paper.Source)
			if t.Paper.DispersionCM != nil {
				detail = fmt.Sprintf("%s, %.1f cm", detail, *t.Paper.DispersionCM)
			}
		case t.Tactical != nil:
			shots = fmt.Sprintf("%d", t.Tactical.BulletsFired)
			hits = fmt.Sprintf("%d", t.Tactical.Hits)
			detail = "not cleared"
			if t.Tactical.StageCleared {
				detail = "cleared"
			}
			if t.Tactical.TimeSeconds != nil {
				detail = fmt.Sprintf("%s, %.2f s", detail, *t.Tactical.TimeSeconds)
			}
		}
		_ = table.Append([]string{
			fmt.Sprintf("%d", t.Sequence),
			shortID(t.ID),
			string(t.Type),
			fmt.Sprintf("%.0f m", t.DistanceM),
			shots,
			hits,
			detail,
		})
	}
	_ = table.Render()
}
