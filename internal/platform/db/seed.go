package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/settings"
	"kpiflow/internal/domain/templates"
)

// Fixture is the YAML seed file: users, KPI templates and the initial
// system settings.
type Fixture struct {
	Settings  *SettingsFixture  `yaml:"settings"`
	Users     []UserFixture     `yaml:"users"`
	Templates []TemplateFixture `yaml:"templates"`
}

type SettingsFixture struct {
	ActiveYear        int    `yaml:"activeYear"`
	ActiveQuarter     string `yaml:"activeQuarter"`
	KPIWeight         int    `yaml:"kpiWeight"`
	AllowManagerEdits *bool  `yaml:"allowManagerEdits"`
}

type UserFixture struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Manager   string `yaml:"manager"`
	JobTitle  string `yaml:"jobTitle"`
	MFASecret string `yaml:"mfaSecret"`
}

type TemplateFixture struct {
	CategoryName string        `yaml:"categoryName"`
	Goals        []GoalFixture `yaml:"goals"`
}

type GoalFixture struct {
	Title       string  `yaml:"title"`
	Description string  `yaml:"description"`
	Unit        string  `yaml:"unit"`
	TargetValue float64 `yaml:"targetValue"`
	Weight      int     `yaml:"weight"`
	Rubric      string  `yaml:"rubric"`
}

func (g GoalFixture) goal() templates.Goal {
	return templates.Goal{
		Title:       g.Title,
		Description: g.Description,
		Unit:        g.Unit,
		TargetValue: g.TargetValue,
		Weight:      g.Weight,
		Rubric:      g.Rubric,
	}
}

func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, err
	}
	return ParseFixture(raw)
}

func ParseFixture(raw []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse seed fixture: %w", err)
	}
	for i, u := range f.Users {
		if u.ID == "" || u.Email == "" || u.Password == "" {
			return Fixture{}, fmt.Errorf("seed user %d: id, email and password are required", i)
		}
		if _, err := auth.ParseRole(u.Role); err != nil {
			return Fixture{}, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return f, nil
}

// Encrypter seals MFA secrets before they are stored.
type Encrypter interface {
	EncryptString(value string) ([]byte, error)
}

type SeedTargets struct {
	Users     auth.StoreAPI
	Templates templates.StoreAPI
	Settings  settings.StoreAPI
	Crypto    Encrypter
}

type SeedResult struct {
	Users     int
	Templates int
	Settings  bool
}

// Seed inserts what the fixture describes and skips what already exists,
// so it is safe to run on every start.
func Seed(ctx context.Context, t SeedTargets, f Fixture, defaults settings.Config) (SeedResult, error) {
	var res SeedResult

	if _, found, err := t.Settings.Get(ctx); err != nil {
		return res, fmt.Errorf("read settings: %w", err)
	} else if !found {
		cfg := applySettings(defaults, f.Settings)
		if err := cfg.Validate(); err != nil {
			return res, fmt.Errorf("seed settings: %w", err)
		}
		if err := t.Settings.Save(ctx, cfg); err != nil {
			return res, fmt.Errorf("save settings: %w", err)
		}
		res.Settings = true
	}

	for _, u := range f.Users {
		created, err := seedUser(ctx, t, u)
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		if created {
			res.Users++
		}
	}

	if len(f.Templates) > 0 {
		existing, err := t.Templates.ListTemplates(ctx)
		if err != nil {
			return res, fmt.Errorf("list templates: %w", err)
		}
		have := map[string]bool{}
		for _, tpl := range existing {
			have[strings.ToLower(tpl.CategoryName)] = true
		}
		for _, tpl := range f.Templates {
			if have[strings.ToLower(tpl.CategoryName)] {
				continue
			}
			goals := make([]templates.Goal, 0, len(tpl.Goals))
			for _, g := range tpl.Goals {
				goals = append(goals, g.goal())
			}
			if _, err := t.Templates.CreateTemplate(ctx, templates.Template{
				ID:           uuid.NewString(),
				CategoryName: tpl.CategoryName,
				Goals:        goals,
				CreatedBy:    "seed",
				CreatedAt:    time.Now().UTC(),
			}); err != nil {
				return res, fmt.Errorf("seed template %s: %w", tpl.CategoryName, err)
			}
			res.Templates++
		}
	}

	slog.Info("seed complete", "users", res.Users, "templates", res.Templates, "settings", res.Settings)
	return res, nil
}

func seedUser(ctx context.Context, t SeedTargets, u UserFixture) (bool, error) {
	if _, err := t.Users.FindUserByEmail(ctx, u.Email); err == nil {
		return false, nil
	} else if !errors.Is(err, auth.ErrUserNotFound) {
		return false, err
	}
	role, err := auth.ParseRole(u.Role)
	if err != nil {
		return false, err
	}
	hash, err := auth.HashPassword(u.Password)
	if err != nil {
		return false, err
	}
	user := auth.User{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: hash,
		Role:         role,
		ManagerID:    u.Manager,
		JobTitle:     u.JobTitle,
	}
	if u.MFASecret != "" && t.Crypto != nil {
		enc, err := t.Crypto.EncryptString(u.MFASecret)
		if err != nil {
			return false, fmt.Errorf("encrypt mfa secret: %w", err)
		}
		user.MFASecretEnc = enc
	}
	if _, err := t.Users.CreateUser(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

func applySettings(cfg settings.Config, f *SettingsFixture) settings.Config {
	if f == nil {
		return cfg
	}
	if f.ActiveYear != 0 {
		cfg.ActiveYear = f.ActiveYear
	}
	if q, err := period.ParseQuarter(f.ActiveQuarter); err == nil && q != period.All {
		cfg.ActiveQuarter = q
	}
	if f.KPIWeight != 0 {
		cfg.KPIWeight = f.KPIWeight
		cfg.FeedbackWeight = 100 - f.KPIWeight
	}
	if f.AllowManagerEdits != nil {
		cfg.AllowManagerEdits = *f.AllowManagerEdits
	}
	cfg.UpdatedBy = "seed"
	return cfg
}
