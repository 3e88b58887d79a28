package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/urfave/cli/v2"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/kpi"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/review"
	"kpiflow/internal/domain/scoring"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/domain/templates"
	"kpiflow/internal/platform/config"
	"kpiflow/internal/platform/crypto"
	"kpiflow/internal/platform/db"
)

// operator is the identity perfctl acts as. Settings changes require Admin
// and reviews are read with HR-wide visibility.
var operator = auth.Actor{UserID: "perfctl", Name: "perfctl", Role: auth.RoleAdmin}

func connect(c *cli.Context) (*pgxpool.Pool, error) {
	url := c.String("database-url")
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL or --database-url is required")
	}
	return db.Connect(c.Context, url)
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending SQL migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Value:   "migrations",
				Usage:   "Directory holding *.sql migrations",
				EnvVars: []string{"MIGRATIONS_DIR"},
			},
		},
		Action: func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(c.Context, pool, c.String("dir"))
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				color.Yellow("Database already up to date")
				return nil
			}
			for _, name := range applied {
				color.Green("applied %s", name)
			}
			return nil
		},
	}
}

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert fixture users, templates and settings that do not exist yet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Value:   "seed/fixtures.yaml",
				Usage:   "YAML fixture file",
				EnvVars: []string{"SEED_FILE"},
			},
		},
		Action: func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			fixture, err := db.LoadFixture(c.String("file"))
			if err != nil {
				return err
			}
			cryptoSvc, err := crypto.New(config.Load().DataEncryptionKey)
			if err != nil {
				return err
			}
			res, err := db.Seed(c.Context, db.SeedTargets{
				Users:     auth.NewStore(pool),
				Templates: templates.NewStore(pool),
				Settings:  settings.NewStore(pool),
				Crypto:    cryptoSvc,
			}, fixture, settings.Default(time.Now()))
			if err != nil {
				return err
			}
			color.Green("seeded %d users, %d templates, settings created: %t", res.Users, res.Templates, res.Settings)
			return nil
		},
	}
}

func settingsCmd() *cli.Command {
	withService := func(fn func(ctx context.Context, svc *settings.Service) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(c.Context, settings.NewService(settings.NewStore(pool), settings.Default(time.Now())))
		}
	}
	setLocked := func(locked bool) cli.ActionFunc {
		return withService(func(ctx context.Context, svc *settings.Service) error {
			cfg, err := svc.SetLocked(ctx, operator, locked)
			if err != nil {
				return err
			}
			printSettings(os.Stdout, cfg)
			return nil
		})
	}

	return &cli.Command{
		Name:  "settings",
		Usage: "Inspect or change the system settings record",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the current settings",
				Action: withService(func(ctx context.Context, svc *settings.Service) error {
					cfg, err := svc.Get(ctx)
					if err != nil {
						return err
					}
					printSettings(os.Stdout, cfg)
					return nil
				}),
			},
			{
				Name:   "lock",
				Usage:  "Lock the system against all KPI edits",
				Action: setLocked(true),
			},
			{
				Name:   "unlock",
				Usage:  "Lift the system-wide lock",
				Action: setLocked(false),
			},
			{
				Name:  "set-period",
				Usage: "Change the active quarter and year",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "quarter", Required: true, Usage: "Q1, Q2, Q3 or Q4"},
					&cli.IntFlag{Name: "year", Required: true},
					&cli.IntFlag{Name: "kpi-weight", Usage: "KPI share of the final score, 0 to 100"},
				},
				Action: func(c *cli.Context) error {
					quarter, err := period.ParseQuarter(c.String("quarter"))
					if err != nil || quarter == period.All {
						return fmt.Errorf("quarter must be one of Q1, Q2, Q3, Q4")
					}
					year := c.Int("year")
					in := settings.Update{ActiveQuarter: &quarter, ActiveYear: &year}
					if c.IsSet("kpi-weight") {
						weight := c.Int("kpi-weight")
						in.KPIWeight = &weight
					}
					return withService(func(ctx context.Context, svc *settings.Service) error {
						cfg, err := svc.Update(ctx, operator, in)
						if err != nil {
							return err
						}
						printSettings(os.Stdout, cfg)
						return nil
					})(c)
				},
			},
		},
	}
}

func periodFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "quarter", Value: string(period.All), Usage: "Q1..Q4 or All"},
		&cli.IntFlag{Name: "year", Usage: "Defaults to the active year"},
	}
}

// reviewService builds a read-only review service and resolves the period
// flags against the active settings.
func reviewService(c *cli.Context, pool *pgxpool.Pool) (*review.Service, period.Quarter, int, error) {
	settingsSvc := settings.NewService(settings.NewStore(pool), settings.Default(time.Now()))
	quarter, err := period.ParseQuarter(c.String("quarter"))
	if err != nil {
		return nil, "", 0, fmt.Errorf("quarter must be one of Q1, Q2, Q3, Q4, All")
	}
	year := c.Int("year")
	if year == 0 {
		cfg, err := settingsSvc.Get(c.Context)
		if err != nil {
			return nil, "", 0, err
		}
		year = cfg.ActiveYear
	}
	svc := review.NewService(review.NewStore(pool), kpi.NewStore(pool), settingsSvc, auth.NewStore(pool))
	return svc, quarter, year, nil
}

func calibrationCmd() *cli.Command {
	return &cli.Command{
		Name:  "calibration",
		Usage: "Show the performance category distribution for a period",
		Flags: periodFlags(),
		Action: func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, quarter, year, err := reviewService(c, pool)
			if err != nil {
				return err
			}
			cal, err := svc.Calibration(c.Context, operator, quarter, year)
			if err != nil {
				return err
			}
			printCalibration(os.Stdout, cal, quarter, year)
			return nil
		},
	}
}

func reviewsCmd() *cli.Command {
	flags := append(periodFlags(), &cli.StringFlag{Name: "employee", Usage: "Only this employee ID"})
	return &cli.Command{
		Name:  "reviews",
		Usage: "List final reviews",
		Flags: flags,
		Action: func(c *cli.Context) error {
			pool, err := connect(c)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, quarter, year, err := reviewService(c, pool)
			if err != nil {
				return err
			}
			filter := review.Filter{EmployeeID: c.String("employee"), Year: year}
			if quarter != period.All {
				filter.Quarter = quarter
			}
			reviews, err := svc.List(c.Context, operator, filter)
			if err != nil {
				return err
			}
			if len(reviews) == 0 {
				color.Yellow("No final reviews for %s %d", quarter, year)
				return nil
			}
			renderTable(os.Stdout, []string{"Employee", "Period", "KPI", "Feedback", "Final", "Category", "Finalized"}, reviewRows(reviews))
			return nil
		},
	}
}

func printSettings(w io.Writer, cfg settings.Config) {
	lock := color.GreenString("open")
	if cfg.SystemLocked {
		lock = color.RedString("locked")
	}
	renderTable(w, []string{"Setting", "Value"}, [][]string{
		{"Active period", fmt.Sprintf("%s %d", cfg.ActiveQuarter, cfg.ActiveYear)},
		{"Weights (KPI/feedback)", fmt.Sprintf("%d/%d", cfg.KPIWeight, cfg.FeedbackWeight)},
		{"Manager edits", strconv.FormatBool(cfg.AllowManagerEdits)},
		{"System", lock},
		{"Updated by", cfg.UpdatedBy},
	})
}

func printCalibration(w io.Writer, cal review.Calibration, quarter period.Quarter, year int) {
	color.New(color.Bold).Fprintf(w, "Calibration %s %d\n", quarter, year)
	fmt.Fprintf(w, "%d reviews, average final score %.1f\n\n", cal.Total, cal.AverageScore)
	renderTable(w, []string{"Category", "Count", "Percent"}, calibrationRows(cal))
}

func calibrationRows(cal review.Calibration) [][]string {
	rows := make([][]string, 0, len(cal.Buckets))
	for _, b := range cal.Buckets {
		rows = append(rows, []string{
			categoryColor(b.Category)(string(b.Category)),
			strconv.Itoa(b.Count),
			strconv.FormatFloat(b.Percent, 'f', 1, 64) + "%",
		})
	}
	return rows
}

func reviewRows(reviews []review.FinalReview) [][]string {
	rows := make([][]string, 0, len(reviews))
	for _, r := range reviews {
		name := r.EmployeeName
		if name == "" {
			name = r.EmployeeID
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%s %d", r.Quarter, r.Year),
			strconv.Itoa(r.KPIScore),
			strconv.FormatFloat(r.FeedbackScore, 'f', -1, 64),
			strconv.Itoa(r.FinalScore),
			categoryColor(r.Category)(string(r.Category)),
			r.FinalizedAt.Format("2006-01-02"),
		})
	}
	return rows
}

func categoryColor(c scoring.Category) func(format string, a ...interface{}) string {
	switch c {
	case scoring.Outstanding:
		return color.New(color.FgGreen, color.Bold).SprintfFunc()
	case scoring.Good:
		return color.GreenString
	case scoring.Satisfactory:
		return color.YellowString
	default:
		return color.RedString
	}
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		}),
	)
	table.Header(headers)
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()
}
