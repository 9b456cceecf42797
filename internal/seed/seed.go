// Package seed applies a bootstrap YAML file at startup. Every step is
// idempotent, so the same file can be applied on each boot.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/store"
)

type File struct {
	EventTypes   []EventType  `yaml:"eventTypes"`
	Universities []University `yaml:"universities"`
	Profiles     []Profile    `yaml:"profiles"`
}

type EventType struct {
	Name     string `yaml:"name"`
	Color    string `yaml:"color"`
	Category string `yaml:"category"`
}

type University struct {
	Name      string     `yaml:"name"`
	Calendars []Calendar `yaml:"calendars"`
}

type Calendar struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Public      bool   `yaml:"public"`
}

type Profile struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"displayName"`
	Role        string `yaml:"role"`
	University  string `yaml:"university"`
}

// Summary counts what Apply created.
type Summary struct {
	EventTypes   int
	Universities int
	Calendars    int
	Profiles     int
}

// Load parses a seed file, rejecting unknown keys.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return f, nil
}

type universityCreator interface {
	CreateUniversity(ctx context.Context, name string) (calendar.Record, error)
}

type Seeder struct {
	universities universityCreator
	eventTypes   store.EventTypeRepository
	calendars    store.CalendarRepository
	profiles     store.ProfileRepository
	log          zerolog.Logger
}

func NewSeeder(s *store.Store, log zerolog.Logger) *Seeder {
	return &Seeder{
		universities: s,
		eventTypes:   s.EventTypes,
		calendars:    s.Calendars,
		profiles:     s.Profiles,
		log:          log,
	}
}

// Apply validates f and writes it. Universities are created before the
// profiles that reference them by name.
func (s *Seeder) Apply(ctx context.Context, f File) (Summary, error) {
	var sum Summary
	if err := f.validate(); err != nil {
		return sum, err
	}

	for _, et := range f.EventTypes {
		in := store.EventTypeInput{Name: et.Name, Color: et.Color}
		if et.Category != "" {
			c := calendar.Category(strings.ToLower(et.Category))
			in.Category = &c
		}
		if _, err := s.eventTypes.Upsert(ctx, in); err != nil {
			return sum, fmt.Errorf("seed event type %q: %w", et.Name, err)
		}
		sum.EventTypes++
	}

	universityIDs := make(map[string]string, len(f.Universities))
	for _, u := range f.Universities {
		rec, err := s.universities.CreateUniversity(ctx, u.Name)
		if err != nil {
			return sum, fmt.Errorf("seed university %q: %w", u.Name, err)
		}
		id := fmt.Sprint(rec["id"])
		universityIDs[u.Name] = id
		sum.Universities++

		for _, c := range u.Calendars {
			category, _ := calendar.ParseCategory(c.Category)
			in := store.CalendarInput{
				Name:         c.Name,
				UniversityID: &id,
				Category:     category,
				IsPublic:     c.Public,
			}
			if c.Description != "" {
				desc := c.Description
				in.Description = &desc
			}
			created, err := s.calendars.CreateIfMissing(ctx, in)
			if err != nil {
				return sum, fmt.Errorf("seed calendar %q: %w", c.Name, err)
			}
			if created {
				sum.Calendars++
			}
		}
	}

	for _, p := range f.Profiles {
		in := store.ProfileInput{Email: p.Email, Role: calendar.Role(p.Role)}
		if p.DisplayName != "" {
			name := p.DisplayName
			in.DisplayName = &name
		}
		if p.University != "" {
			id, ok := universityIDs[p.University]
			if !ok {
				return sum, fmt.Errorf("seed profile %q: university %q is not in the seed file", p.Email, p.University)
			}
			in.UniversityID = &id
		}
		created, err := s.profiles.CreateIfMissing(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("seed profile %q: %w", p.Email, err)
		}
		if created {
			sum.Profiles++
		}
	}

	s.log.Info().
		Int("event_types", sum.EventTypes).
		Int("universities", sum.Universities).
		Int("calendars", sum.Calendars).
		Int("profiles", sum.Profiles).
		Msg("seed applied")
	return sum, nil
}

func (f File) validate() error {
	for _, et := range f.EventTypes {
		if strings.TrimSpace(et.Name) == "" {
			return fmt.Errorf("event type without a name")
		}
		switch calendar.Category(strings.ToLower(et.Category)) {
		case "", calendar.CategoryAcademic, calendar.CategoryEvent:
		default:
			return fmt.Errorf("event type %q: category must be academic or event", et.Name)
		}
	}
	for _, u := range f.Universities {
		if strings.TrimSpace(u.Name) == "" {
			return fmt.Errorf("university without a name")
		}
		for _, c := range u.Calendars {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("university %q: calendar without a name", u.Name)
			}
			if _, err := calendar.ParseCategory(c.Category); err != nil {
				return fmt.Errorf("calendar %q: %w", c.Name, err)
			}
		}
	}
	for _, p := range f.Profiles {
		if strings.TrimSpace(p.Email) == "" {
			return fmt.Errorf("profile without an email")
		}
		if _, err := calendar.ParseRole(p.Role); err != nil {
			return fmt.Errorf("profile %q: %w", p.Email, err)
		}
	}
	return nil
}
