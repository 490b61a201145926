package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// catalogFile is the on-disk shape of the service catalog.
//
//	services:
//	  - type: LOAN
//	    name: Loans
//	    prefix: L
//	    base_priority: 25
//	segment_bonuses:
//	  SENIOR: 20
type catalogFile struct {
	Services       []domain.ServiceCategory       `yaml:"services"`
	SegmentBonuses map[domain.CustomerSegment]int `yaml:"segment_bonuses"`
}

// Catalog resolves service categories and segment bonuses.
type Catalog struct {
	categories map[domain.ServiceType]domain.ServiceCategory
	bonuses    map[domain.CustomerSegment]int
}

// DefaultCatalog returns the built-in categories and bonuses.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		categories: make(map[domain.ServiceType]domain.ServiceCategory, len(domain.DefaultServiceCategories)),
		bonuses:    make(map[domain.CustomerSegment]int, len(domain.DefaultSegmentBonuses)),
	}
	for k, v := range domain.DefaultServiceCategories {
		c.categories[k] = v
	}
	for k, v := range domain.DefaultSegmentBonuses {
		c.bonuses[k] = v
	}
	return c
}

// LoadCatalog overlays the YAML file at path on the defaults. An empty path
// yields the defaults unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if err := catalog.merge(raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return catalog, nil
}

func (c *Catalog) merge(raw []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}
	for _, category := range file.Services {
		category.Type = domain.ServiceType(strings.ToUpper(string(category.Type)))
		if !category.Type.Valid() {
			return fmt.Errorf("unknown service type %q", category.Type)
		}
		if strings.TrimSpace(category.Prefix) == "" {
			return fmt.Errorf("service %s: prefix required", category.Type)
		}
		if category.Name == "" {
			category.Name = c.categories[category.Type].Name
		}
		c.categories[category.Type] = category
	}
	for segment, bonus := range file.SegmentBonuses {
		if segment == "" || !segment.Valid() {
			return fmt.Errorf("unknown segment %q", segment)
		}
		c.bonuses[segment] = bonus
	}
	return nil
}

// Category returns the reference data for service.
func (c *Catalog) Category(service domain.ServiceType) (domain.ServiceCategory, error) {
	category, ok := c.categories[service]
	if !ok {
		return domain.ServiceCategory{}, apperrors.NewValidationError("unknown service type", map[string]any{"service_type": service})
	}
	return category, nil
}

// SegmentBonus returns the priority bonus for segment; unknown segments get none.
func (c *Catalog) SegmentBonus(segment domain.CustomerSegment) int {
	if segment == "" {
		segment = domain.SegmentStandard
	}
	return c.bonuses[segment]
}

// Priority computes the score for a ticket of service held by a customer in segment.
func (c *Catalog) Priority(service domain.ServiceType, segment domain.CustomerSegment) (int, error) {
	category, err := c.Category(service)
	if err != nil {
		return 0, err
	}
	return domain.PriorityScore(category, c.SegmentBonus(segment)), nil
}
