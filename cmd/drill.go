package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/drill"
	"github.com/joescharf/rangelog/internal/models"
	"github.com/joescharf/rangelog/internal/output"
)

// drillFlags are the flags that describe a drill configuration inline.
type drillFlags struct {
	goal         string
	targetType   string
	distance     float64
	rounds       int
	strings      int
	timeLimit    int
	minAccuracy  float64
	pointsPerHit float64
	missPenalty  float64
}

func (f *drillFlags) register(cmd *cobra.Command, typeFlag string) {
	cmd.Flags().StringVar(&f.targetType, typeFlag, "", "Drill target type: paper, tactical")
	cmd.Flags().StringVar(&f.goal, "goal", "", "Drill goal: grouping, achievement")
	cmd.Flags().Float64Var(&f.distance, "distance", 0, "Drill distance in meters")
	cmd.Flags().IntVar(&f.rounds, "rounds", 0, "Rounds per shooter per string (-1 for unbounded)")
	cmd.Flags().IntVar(&f.strings, "strings", 1, "Number of strings")
	cmd.Flags().IntVar(&f.timeLimit, "time-limit", 0, "Time limit in seconds")
	cmd.Flags().Float64Var(&f.minAccuracy, "min-accuracy", 0, "Minimum accuracy percent")
	cmd.Flags().Float64Var(&f.pointsPerHit, "points-per-hit", 0, "Enable points scoring with this value per hit")
	cmd.Flags().Float64Var(&f.missPenalty, "miss-penalty", 0, "Points deducted per miss")
}

// config builds and validates the drill configuration, or returns nil when
// no target type was given.
func (f *drillFlags) config() (*models.DrillConfig, error) {
	if f.targetType == "" {
		return nil, nil
	}
	cfg := &models.DrillConfig{
		Goal:             models.DrillGoal(f.goal),
		TargetType:       models.TargetType(f.targetType),
		DistanceM:        f.distance,
		RoundsPerShooter: f.rounds,
		StringsCount:     f.strings,
	}
	if f.timeLimit > 0 {
		v := f.timeLimit
		cfg.TimeLimitSeconds = &v
	}
	if f.minAccuracy > 0 {
		v := f.minAccuracy
		cfg.MinAccuracyPct = &v
	}
	if f.pointsPerHit > 0 {
		cfg.Scoring = &models.ScoringConfig{
			Mode:           models.ScoringModePoints,
			PointsPerHit:   f.pointsPerHit,
			PenaltyPerMiss: f.missPenalty,
		}
	}
	if err := drill.Validate(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var templateFlags drillFlags

var drillCmd = &cobra.Command{
	Use:     "drill",
	Aliases: []string{"d"},
	Short:   "Manage reusable drill templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return drillListRun()
	},
}

var drillAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a drill template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return drillAddRun(args[0])
	},
}

var drillListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your drill templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return drillListRun()
	},
}

var drillShowCmd = &cobra.Command{
	Use:   "show <drill-id>",
	Short: "Show a drill template and its requirements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return drillShowRun(args[0])
	},
}

func init() {
	templateFlags.register(drillAddCmd, "type")
	_ = drillAddCmd.MarkFlagRequired("type")

	drillCmd.AddCommand(drillAddCmd)
	drillCmd.AddCommand(drillListCmd)
	drillCmd.AddCommand(drillShowCmd)
	rootCmd.AddCommand(drillCmd)
}

func drillAddRun(name string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	cfg, err := templateFlags.config()
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("--type is required")
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would save drill template %q (%s)", name, cfg.TargetType)
		return nil
	}

	d := &models.DrillTemplate{
		OwnerID: viper.GetString("owner_id"),
		TeamID:  viper.GetString("team_id"),
		Name:    name,
		Config:  *cfg,
	}
	if err := s.CreateDrillTemplate(ctx, d); err != nil {
		return fmt.Errorf("save drill template: %w", err)
	}
	ui.Success("Saved drill template %s: %s", output.Cyan(shortID(d.ID)), name)
	return nil
}

func drillListRun() error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	drills, err := s.ListDrillTemplates(ctx, viper.GetString("owner_id"))
	if err != nil {
		return err
	}
	if len(drills) == 0 {
		ui.Info("No drill templates. Save one with: rangelog drill add <name> --type paper")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Type", "Distance", "Requires"})
	for _, d := range drills {
		_ = table.Append([]string{
			shortID(d.ID),
			d.Name,
			string(d.Config.TargetType),
			fmt.Sprintf("%.0f m", d.Config.DistanceM),
			requirementsSummary(d.Config),
		})
	}
	_ = table.Render()
	return nil
}

func drillShowRun(ref string) error {
	ctx, err := ownerContext()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	drills, err := s.ListDrillTemplates(ctx, viper.GetString("owner_id"))
	if err != nil {
		return err
	}
	var d *models.DrillTemplate
	for _, candidate := range drills {
		if candidate.ID == ref || strings.HasPrefix(candidate.ID, strings.ToUpper(ref)) {
			d = candidate
			break
		}
	}
	if d == nil {
		return fmt.Errorf("drill template not found: %s", ref)
	}

	cfg := d.Config
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(d.ID)), d.Name)
	fmt.Fprintf(ui.Out, "  Type:       %s\n", cfg.TargetType)
	if cfg.Goal != "" {
		fmt.Fprintf(ui.Out, "  Goal:       %s\n", cfg.Goal)
	}
	fmt.Fprintf(ui.Out, "  Distance:   %.0f m\n", cfg.DistanceM)
	fmt.Fprintf(ui.Out, "  Requires:   %s\n", requirementsSummary(cfg))
	if cfg.TimeLimitSeconds != nil {
		fmt.Fprintf(ui.Out, "  Time limit: %ds\n", *cfg.TimeLimitSeconds)
	}
	if cfg.MinAccuracyPct != nil {
		fmt.Fprintf(ui.Out, "  Accuracy:   >= %.2f%%\n", *cfg.MinAccuracyPct)
	}
	if cfg.Scoring != nil {
		fmt.Fprintf(ui.Out, "  Scoring:    %.1f per hit, -%.1f per miss\n", cfg.Scoring.PointsPerHit, cfg.Scoring.PenaltyPerMiss)
	}
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", d.ID)
	return nil
}

func requirementsSummary(cfg models.DrillConfig) string {
	req := drill.Resolve(cfg)
	if req.RequiredShots > 0 {
		return fmt.Sprintf("%d targets, %d shots", req.RequiredTargets, req.RequiredShots)
	}
	return fmt.Sprintf("%d targets", req.RequiredTargets)
}
