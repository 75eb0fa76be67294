// Command ratingengine computes and serves employer ratings from the
// assessment database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/unionhall/ratingengine/internal/config"
	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/logging"
	"github.com/unionhall/ratingengine/internal/policy"
	"github.com/unionhall/ratingengine/internal/rating"
	"github.com/unionhall/ratingengine/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the wired components behind each subcommand.
type app struct {
	cfg    *config.Config
	db     *sql.DB
	engine *rating.Engine
	policy *policy.Store
	log    *slog.Logger
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel)

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	pol := policy.NewStore(db)
	source := store.NewAssessmentReader(db)
	return &app{
		cfg:    cfg,
		db:     db,
		engine: rating.NewEngine(cfg, db, source, pol, log),
		policy: pol,
		log:    log,
	}, nil
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "ratingengine",
		Short:         "Multi-source weighted employer rating engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "ratingengine.yaml", "path to the YAML config file")

	root.AddCommand(
		newCalculateCmd(&configPath),
		newCurrentCmd(&configPath),
		newHistoryCmd(&configPath),
		newBatchCmd(&configPath),
		newSeedCmd(&configPath),
		newSetWeightCmd(&configPath),
	)
	return root
}

func newCalculateCmd(configPath *string) *cobra.Command {
	var orgID, asOf string
	var legacyOrdinal bool

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Compute and publish the rating for one organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			date, err := parseDate(asOf)
			if err != nil {
				return err
			}
			fr, err := a.engine.CalculateRating(context.Background(), orgID, date)
			if err != nil {
				return err
			}
			printRating(cmd, fr, legacyOrdinal)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().StringVar(&asOf, "date", "", "as-of date, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&legacyOrdinal, "legacy-ordinal", false, "print the 4-point summary in the legacy direction (1 = best)")
	cmd.MarkFlagRequired("org")
	return cmd
}

func newCurrentCmd(configPath *string) *cobra.Command {
	var orgID string
	var legacyOrdinal bool

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the most recent non-expired rating for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			fr, err := a.engine.GetCurrentRating(context.Background(), orgID)
			if err != nil {
				return err
			}
			printRating(cmd, fr, legacyOrdinal)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().BoolVar(&legacyOrdinal, "legacy-ordinal", false, "print the 4-point summary in the legacy direction (1 = best)")
	cmd.MarkFlagRequired("org")
	return cmd
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var orgID, since string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List rating changes for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			var from time.Time
			if since != "" {
				from, err = parseDate(since)
				if err != nil {
					return err
				}
			}
			entries, err := a.engine.GetRatingHistory(context.Background(), orgID, from)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("no rating changes recorded")
				return nil
			}
			for _, e := range entries {
				when := time.Unix(e.CreatedAtUnix, 0)
				cmd.Printf("%s  %s -> %s  delta %+.1f  (%s)\n",
					when.Format("2006-01-02"), e.FromTier, e.ToTier, e.ScoreDelta,
					humanize.Time(when))
				if len(e.ChangedComponents) > 0 {
					cmd.Printf("  changed: %v\n", e.ChangedComponents)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "organization ID (required)")
	cmd.Flags().StringVar(&since, "since", "", "only changes on or after this date, YYYY-MM-DD")
	cmd.MarkFlagRequired("org")
	return cmd
}

func newBatchCmd(configPath *string) *cobra.Command {
	var asOf, role string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Recalculate ratings for every organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			date, err := parseDate(asOf)
			if err != nil {
				return err
			}
			roleFilter := domain.RoleCategory(role)
			if role != "" && !domain.ValidRole(roleFilter) {
				return domain.ErrInvalidRole
			}
			summary, err := a.engine.RecalculateAll(context.Background(), date, roleFilter)
			if err != nil {
				return err
			}
			cmd.Printf("calculated %d ratings as of %s\n", summary.Calculated, summary.AsOfDate)
			for _, f := range summary.Failures {
				cmd.Printf("  failed %s: %s\n", f.OrgID, f.Reason)
			}
			if len(summary.Failures) > 0 {
				return fmt.Errorf("%d of %d organizations failed",
					len(summary.Failures), summary.Calculated+len(summary.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "date", "", "as-of date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&role, "role", "", "only organizations with this role")
	return cmd
}

func newSeedCmd(configPath *string) *cobra.Command {
	var seedPath, effective string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a new policy version from a seed file (or the built-in default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			seed := policy.DefaultSeed()
			if seedPath != "" {
				seed, err = policy.LoadSeedFile(seedPath)
				if err != nil {
					return err
				}
			}
			eff, err := parseDate(effective)
			if err != nil {
				return err
			}
			if err := a.policy.Seed(context.Background(), seed, eff); err != nil {
				return err
			}
			cmd.Println("policy seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&seedPath, "file", "", "YAML policy seed (omit for the built-in default)")
	cmd.Flags().StringVar(&effective, "effective", "", "effective-from date, YYYY-MM-DD (default today)")
	return cmd
}

func newSetWeightCmd(configPath *string) *cobra.Command {
	var scope, name string
	var weight float64
	var effective string

	cmd := &cobra.Command{
		Use:   "set-weight",
		Short: "Append a new version for a single policy weight",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			eff, err := parseDate(effective)
			if err != nil {
				return err
			}
			if err := a.policy.SetWeight(context.Background(), scope, name, weight, eff); err != nil {
				return err
			}
			cmd.Printf("weight %s/%s set to %.2f\n", scope, name, weight)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", policy.ScopeAssessmentType, "weight scope: assessment_type, component, or categorical_family")
	cmd.Flags().StringVar(&name, "name", "", "weight key (required)")
	cmd.Flags().Float64Var(&weight, "weight", 0, "new weight, in [0, 10]")
	cmd.Flags().StringVar(&effective, "effective", "", "effective-from date, YYYY-MM-DD (default today)")
	cmd.MarkFlagRequired("name")
	return cmd
}

// parseDate parses YYYY-MM-DD; empty means today (UTC midnight).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func printRating(cmd *cobra.Command, fr *domain.FinalRating, legacyOrdinal bool) {
	cmd.Printf("org %s  as of %s\n", fr.OrgID, fr.AsOfDate)
	cmd.Printf("  tier %s  score %.1f  confidence %s  algorithm %s  policy v%d\n",
		fr.Tier, fr.Score, fr.Confidence, fr.Algorithm, fr.PolicyVersion)
	if fr.OrdinalScore > 0 {
		ordinal := fr.OrdinalScore
		direction := "4 = best"
		if legacyOrdinal {
			ordinal = domain.InvertOrdinal(ordinal)
			direction = "1 = best"
		}
		cmd.Printf("  4-point summary %.1f  (%s)\n", ordinal, direction)
	}
	if fr.GateApplied {
		cmd.Printf("  gate applied: %s\n", fr.GateReason)
	}
	if fr.DiscrepancyLevel != domain.DiscrepancyNone {
		cmd.Printf("  discrepancy %s", fr.DiscrepancyLevel)
		if fr.ReviewRequired {
			cmd.Printf("  (review required)")
		}
		cmd.Println()
	}
	for _, c := range fr.Components {
		switch {
		case c.NotApplicable:
			cmd.Printf("  %-22s n/a\n", c.Component)
		case !c.HasData:
			cmd.Printf("  %-22s no data\n", c.Component)
		default:
			cmd.Printf("  %-22s %.1f  (%d samples, newest %s)\n",
				c.Component, c.Value, c.SampleCount, humanize.Time(c.NewestAt))
		}
	}
	cmd.Printf("  agreement %s  expires %s  next review %s\n",
		fr.AgreementStatus,
		humanize.Time(time.Unix(fr.ExpiresAtUnix, 0)),
		humanize.Time(time.Unix(fr.NextReviewUnix, 0)))
}
