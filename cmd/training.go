package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/output"
	"github.com/joescharf/rangelog/internal/store"
	"github.com/joescharf/rangelog/internal/training"
)

var (
	trainingTeam      string
	trainingScheduled string
	trainingDeadline  string
	trainingDrillTmpl string
	trainingDrillName string
	trainingDrillCfg  drillFlags
)

var trainingCmd = &cobra.Command{
	Use:     "training",
	Aliases: []string{"tr"},
	Short:   "Manage scheduled trainings and their drills",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingListRun()
	},
}

var trainingAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Schedule a training",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingAddRun(args[0])
	},
}

var trainingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List trainings of your team",
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingListRun()
	},
}

var trainingShowCmd = &cobra.Command{
	Use:   "show <training-id>",
	Short: "Show a training, its drills and who completed them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingShowRun(args[0])
	},
}

var trainingDrillCmd = &cobra.Command{
	Use:   "drill <training-id>",
	Short: "Add a drill to a training",
	Long: `Add a drill to a training, copying a saved template (--template) or
describing it inline (--type and friends).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingDrillRun(args[0])
	},
}

var trainingRecheckCmd = &cobra.Command{
	Use:   "recheck <training-id>",
	Short: "Re-evaluate whether a training is finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return trainingRecheckRun(args[0])
	},
}

func init() {
	trainingAddCmd.Flags().StringVar(&trainingTeam, "team", "", "Team id (default: team_id from config)")
	trainingAddCmd.Flags().StringVar(&trainingScheduled, "at", "", "Scheduled time, RFC3339 or YYYY-MM-DD (default: now)")
	trainingAddCmd.Flags().StringVar(&trainingDeadline, "deadline", "", "Deadline, RFC3339 or YYYY-MM-DD")

	trainingDrillCmd.Flags().StringVar(&trainingDrillTmpl, "template", "", "Drill template id to copy")
	trainingDrillCmd.Flags().StringVar(&trainingDrillName, "name", "", "Drill name (default: template name)")
	trainingDrillCfg.register(trainingDrillCmd, "type")

	trainingCmd.AddCommand(trainingAddCmd)
	trainingCmd.AddCommand(trainingListCmd)
	trainingCmd.AddCommand(trainingShowCmd)
	trainingCmd.AddCommand(trainingDrillCmd)
	trainingCmd.AddCommand(trainingRecheckCmd)
	rootCmd.AddCommand(trainingCmd)
}

// parseWhen accepts RFC3339 timestamps and plain dates in local time.
func parseWhen(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", v)
	}
	return t, nil
}

func trainingAddRun(title string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	t := &models.Training{TeamID: trainingTeam, Title: title, ScheduledAt: time.Now().UTC()}
	if t.TeamID == "" {
		t.TeamID = viper.GetString("team_id")
	}
	if trainingScheduled != "" {
		when, err := parseWhen(trainingScheduled)
		if err != nil {
			return err
		}
		t.ScheduledAt = when.UTC()
	}
	if trainingDeadline != "" {
		when, err := parseWhen(trainingDeadline)
		if err != nil {
			return err
		}
		d := when.UTC()
		t.Deadline = &d
	}

	if dryRun {
		ui.DryRunMsg("Would schedule training %q for %s", title, t.ScheduledAt.Local().Format(time.RFC3339))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if err := s.CreateTraining(ctx, t); err != nil {
		return fmt.Errorf("create training: %w", err)
	}
	ui.Success("Scheduled training %s: %s", output.Cyan(shortID(t.ID)), title)
	return nil
}

func trainingListRun() error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	trainings, err := s.ListTrainings(ctx, viper.GetString("team_id"))
	if err != nil {
		return err
	}
	if len(trainings) == 0 {
		ui.Info("No trainings scheduled.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Status", "Scheduled", "Deadline", "Drills"})
	for _, t := range trainings {
		deadline := "-"
		if t.Deadline != nil {
			deadline = t.Deadline.Local().Format("2006-01-02 15:04")
		}
		drillCount := "-"
		if drills, err := s.ListTrainingDrills(ctx, t.ID); err == nil {
			drillCount = fmt.Sprintf("%d", len(drills))
		}
		_ = table.Append([]string{
			shortID(t.ID),
			t.Title,
			output.StatusColor(string(t.Status)),
			t.ScheduledAt.Local().Format("2006-01-02 15:04"),
			deadline,
			drillCount,
		})
	}
	_ = table.Render()
	return nil
}

// findTraining looks up a training by full id or unique prefix.
func findTraining(ctx context.Context, s store.Store, ref string) (*models.Training, error) {
	if t, err := s.GetTraining(ctx, ref); err == nil {
		return t, nil
	}
	trainings, err := s.ListTrainings(ctx, "")
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(ref)
	var matches []*models.Training
	for _, t := range trainings {
		if strings.HasPrefix(t.ID, upper) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("training not found: %s", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous training ID %s: matches %d trainings", ref, len(matches))
	}
}

func trainingShowRun(ref string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	t, err := findTraining(ctx, s, ref)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s  %s\n", output.Cyan(shortID(t.ID)), t.Title, output.StatusColor(string(t.Status)))
	fmt.Fprintf(ui.Out, "  Scheduled:  %s\n", t.ScheduledAt.Local().Format(time.RFC3339))
	if t.Deadline != nil {
		fmt.Fprintf(ui.Out, "  Deadline:   %s\n", t.Deadline.Local().Format(time.RFC3339))
	}
	if t.FinishedAt != nil {
		fmt.Fprintf(ui.Out, "  Finished:   %s\n", t.FinishedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", t.ID)

	drills, err := s.ListTrainingDrills(ctx, t.ID)
	if err != nil {
		return err
	}
	if len(drills) == 0 {
		return nil
	}
	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"#", "ID", "Drill", "Type", "Requires", "Completions"})
	for _, d := range drills {
		done, err := s.ListDrillCompletions(ctx, store.CompletionFilter{TrainingID: t.ID, DrillID: d.ID})
		if err != nil {
			return err
		}
		_ = table.Append([]string{
			fmt.Sprintf("%d", d.Position),
			shortID(d.ID),
			d.Name,
			string(d.Config.TargetType),
			requirementsSummary(d.Config),
			fmt.Sprintf("%d", len(done)),
		})
	}
	_ = table.Render()
	return nil
}

func trainingDrillRun(ref string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	t, err := findTraining(ctx, s, ref)
	if err != nil {
		return err
	}

	d := &models.TrainingDrill{TrainingID: t.ID, Name: trainingDrillName}
	cfg, err := trainingDrillCfg.config()
	if err != nil {
		return err
	}
	switch {
	case trainingDrillTmpl != "":
		tmpl, err := s.GetDrillTemplate(ctx, trainingDrillTmpl)
		if err != nil {
			return fmt.Errorf("drill template %s: %w", trainingDrillTmpl, err)
		}
		d.TemplateID = tmpl.ID
		d.Config = tmpl.Config
		if d.Name == "" {
			d.Name = tmpl.Name
		}
	case cfg != nil:
		d.Config = *cfg
	default:
		return fmt.Errorf("pass --template or --type")
	}
	if d.Name == "" {
		d.Name = fmt.Sprintf("%s drill", d.Config.TargetType)
	}

	if dryRun {
		ui.DryRunMsg("Would add drill %q to training %s", d.Name, shortID(t.ID))
		return nil
	}
	if err := s.CreateTrainingDrill(ctx, d); err != nil {
		return fmt.Errorf("add drill: %w", err)
	}
	ui.Success("Added drill %s to %s: %s", output.Cyan(shortID(d.ID)), t.Title, d.Name)
	return nil
}

func trainingRecheckRun(ref string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	t, err := findTraining(ctx, s, ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would recheck training %s", shortID(t.ID))
		return nil
	}
	status, err := training.NewCloser(s, logger).RecheckAutoClose(ctx, t.ID)
	if err != nil {
		return err
	}
	ui.Success("Training %s is %s", output.Cyan(shortID(t.ID)), output.StatusColor(string(status)))
	return nil
}
