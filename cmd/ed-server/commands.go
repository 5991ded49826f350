package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/edops/internal/config"
	"github.com/ehr/edops/internal/domain/staffing"
	"github.com/ehr/edops/internal/domain/triage"
	"github.com/ehr/edops/internal/platform/db"
	"github.com/ehr/edops/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(out, "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	migrationFlags(upCmd)
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	migrationFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
	cmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, string, func(), error) {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return nil, "", nil, err
	}
	if schema == "" {
		schema = cfg.DBSchema
	}

	// Migrations create the schema, so the pool must not pin search_path to it.
	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, "", 2, 1)
	if err != nil {
		return nil, "", nil, err
	}
	return db.NewMigrator(pool, migrationSource(dir)), schema, pool.Close, nil
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the staffing policy",
	}
	cmd.PersistentFlags().String("file", "", "Policy file (default STAFFING_POLICY_FILE, else the built-in table)")
	cmd.PersistentFlags().Bool("json", false, "Print as JSON")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print per-area staffing minimums",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printPolicy(cmd.OutOrStdout(), engine, asJSON)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate a policy file without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy ok: %d area(s), max %d shift(s) per week\n",
				len(engine.Policy().Areas), engine.MaxShiftsPerWeek())
			return nil
		},
	})

	return cmd
}

func loadEngine(cmd *cobra.Command) (*staffing.Engine, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = os.Getenv("STAFFING_POLICY_FILE")
	}
	policy, err := config.LoadStaffingPolicy(path)
	if err != nil {
		return nil, err
	}
	return staffing.NewEngine(policy)
}

func printPolicy(out io.Writer, engine *staffing.Engine, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(engine.Policy())
	}

	fmt.Fprintf(out, "%-16s %-20s %s\n", "AREA", "ROLE", "MINIMUM")
	for _, area := range staffing.Areas {
		reqs, err := engine.Requirements(area)
		if err != nil {
			continue
		}
		if len(reqs) == 0 {
			fmt.Fprintf(out, "%-16s %-20s %s\n", area, "-", "-")
		}
		for _, r := range reqs {
			fmt.Fprintf(out, "%-16s %-20s %d\n", area, r.Role, r.Required)
		}
	}
	if n := engine.MaxShiftsPerWeek(); n > 0 {
		fmt.Fprintf(out, "max shifts per employee per week: %d\n", n)
	} else {
		fmt.Fprintln(out, "max shifts per employee per week: unlimited")
	}
	return nil
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a triage observation without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := triage.Classify(observationFromFlags(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintf(out, "level:     %d\n", result.Level)
			fmt.Fprintf(out, "status:    %s\n", result.Status)
			fmt.Fprintf(out, "acuity:    %d\n", result.AcuityScore)
			fmt.Fprintf(out, "worst:     %s (tier %d)\n", result.WorstAxis, result.WorstTier)
			fmt.Fprintf(out, "complaint: %s\n", result.PrimaryComplaint)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("arrival", "", "Arrival mode (AMBULANCE, WALK_IN, WHEELCHAIR, OTHER)")
	f.String("airway", "", "Airway finding")
	f.String("breathing", "", "Breathing finding")
	f.String("circulation", "", "Circulation finding")
	f.String("disability", "", "Disability finding")
	f.String("exposure", "", "Exposure finding")
	f.String("complaint", "", "Reported complaint")
	f.Int("systolic-bp", 0, "Systolic blood pressure (mmHg)")
	f.Int("o2", 0, "Oxygen saturation (%)")
	f.Float64("temperature", 0, "Body temperature (Celsius)")
	f.Int("pain", 0, "Pain scale 0-10")
	f.Bool("json", false, "Print as JSON")
	return cmd
}

func observationFromFlags(cmd *cobra.Command) triage.Observation {
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return strings.ToUpper(strings.TrimSpace(v))
	}

	obs := triage.Observation{
		ArrivalMode: triage.ArrivalMode(str("arrival")),
		Airway:      triage.Airway(str("airway")),
		Breathing:   triage.Breathing(str("breathing")),
		Circulation: triage.Circulation(str("circulation")),
		Disability:  triage.Disability(str("disability")),
		Exposure:    triage.Exposure(str("exposure")),
	}
	obs.ReportedComplaint, _ = f.GetString("complaint")

	if f.Changed("systolic-bp") {
		v, _ := f.GetInt("systolic-bp")
		obs.SystolicBP = &v
	}
	if f.Changed("o2") {
		v, _ := f.GetInt("o2")
		obs.O2Saturation = &v
	}
	if f.Changed("temperature") {
		v, _ := f.GetFloat64("temperature")
		obs.Temperature = &v
	}
	if f.Changed("pain") {
		v, _ := f.GetInt("pain")
		obs.PainScale = &v
	}
	return obs
}
