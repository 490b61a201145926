package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// Seed is reference data loaded at startup: branches, their counters and the
// staff directory.
//
//	branches:
//	  - id: b1
//	    name: Downtown
//	    timezone: Europe/Berlin
//	    counters:
//	      - id: c1
//	        name: Counter 1
//	        services: [DEPOSIT, WITHDRAWAL]
//	staff:
//	  - id: u1
//	    name: Tina
//	    role: TELLER
//	    branch_id: b1
type Seed struct {
	Branches []seedBranch `yaml:"branches"`
	Staff    []seedStaff  `yaml:"staff"`
}

type seedBranch struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Timezone string        `yaml:"timezone"`
	Inactive bool          `yaml:"inactive"`
	Counters []seedCounter `yaml:"counters"`
}

type seedCounter struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Services []string `yaml:"services"`
	Status   string   `yaml:"status"`
}

type seedStaff struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	BranchID string `yaml:"branch_id"`
	Inactive bool   `yaml:"inactive"`
}

// LoadSeed parses the seed file at path.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// Apply creates every record that does not exist yet. Existing records are
// left untouched so restarts never clobber live counter state.
func (s *Seed) Apply(ctx context.Context, repos repository.Repositories) (created int, err error) {
	for _, b := range s.Branches {
		if b.ID == "" {
			return created, fmt.Errorf("seed branch without id")
		}
		tz := b.Timezone
		if tz == "" {
			tz = "UTC"
		}
		ok, err := createIfMissing(ctx, func(ctx context.Context) error {
			_, err := repos.Branches.GetByID(ctx, b.ID)
			return err
		}, func(ctx context.Context) error {
			return repos.Branches.Create(ctx, &domain.Branch{ID: b.ID, Name: b.Name, Timezone: tz, Active: !b.Inactive})
		})
		if err != nil {
			return created, fmt.Errorf("seed branch %s: %w", b.ID, err)
		}
		if ok {
			created++
		}
		for _, c := range b.Counters {
			counter, err := c.toDomain(b.ID)
			if err != nil {
				return created, err
			}
			ok, err := createIfMissing(ctx, func(ctx context.Context) error {
				_, err := repos.Counters.GetByID(ctx, c.ID)
				return err
			}, func(ctx context.Context) error {
				return repos.Counters.Create(ctx, counter)
			})
			if err != nil {
				return created, fmt.Errorf("seed counter %s: %w", c.ID, err)
			}
			if ok {
				created++
			}
		}
	}
	for _, st := range s.Staff {
		member, err := st.toDomain()
		if err != nil {
			return created, err
		}
		ok, err := createIfMissing(ctx, func(ctx context.Context) error {
			_, err := repos.Staff.GetByID(ctx, st.ID)
			return err
		}, func(ctx context.Context) error {
			return repos.Staff.Create(ctx, member)
		})
		if err != nil {
			return created, fmt.Errorf("seed staff %s: %w", st.ID, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func createIfMissing(ctx context.Context, get, create func(context.Context) error) (bool, error) {
	err := get(ctx)
	if err == nil {
		return false, nil
	}
	if !apperrors.IsNotFound(err) {
		return false, err
	}
	if err := create(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c seedCounter) toDomain(branchID string) (*domain.Counter, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("seed counter in branch %s without id", branchID)
	}
	status := domain.CounterStatusOffline
	if c.Status != "" {
		status = domain.CounterStatus(strings.ToUpper(c.Status))
		if !status.Valid() {
			return nil, fmt.Errorf("seed counter %s: unknown status %q", c.ID, c.Status)
		}
	}
	tags := make([]domain.ServiceType, 0, len(c.Services))
	for _, raw := range c.Services {
		service := domain.ServiceType(strings.ToUpper(strings.TrimSpace(raw)))
		if !service.Valid() {
			return nil, fmt.Errorf("seed counter %s: unknown service %q", c.ID, raw)
		}
		tags = append(tags, service)
	}
	name := c.Name
	if name == "" {
		name = c.ID
	}
	return &domain.Counter{ID: c.ID, Name: name, BranchID: branchID, Status: status, ServiceTags: tags}, nil
}

func (s seedStaff) toDomain() (*domain.StaffMember, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("seed staff without id")
	}
	role := domain.StaffRole(strings.ToUpper(s.Role))
	if !role.Valid() {
		return nil, fmt.Errorf("seed staff %s: unknown role %q", s.ID, s.Role)
	}
	member := &domain.StaffMember{ID: s.ID, Name: s.Name, Email: s.Email, Role: role, Active: !s.Inactive}
	if s.BranchID != "" {
		branch := s.BranchID
		member.BranchID = &branch
	}
	return member, nil
}
