package experiment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"matchpredict/internal/models"

	"gopkg.in/yaml.v3"
)

// GridFile overrides default search grids per family:
//
//	grids:
//	  random_forest:
//	    n_estimators: [50, 100]
//	    max_depth: [null, 10]
type GridFile struct {
	Grids map[string]map[string][]any `yaml:"grids"`
}

// LoadGridFile reads a grid override file. An empty path yields no
// overrides.
func LoadGridFile(path string) (map[string]models.Grid, error) {
	if path == "" {
		return map[string]models.Grid{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("grid file %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}

	var gf GridFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse grid file %s: %w", path, err)
	}

	out := make(map[string]models.Grid, len(gf.Grids))
	for family, grid := range gf.Grids {
		out[family] = models.Grid(grid)
	}
	return out, nil
}

// Specs builds one spec per roster family, taking the grid from overrides
// when present and the family default otherwise.
func Specs(registry *models.Registry, roster []string, overrides map[string]models.Grid) ([]models.Spec, error) {
	specs := make([]models.Spec, 0, len(roster))
	var errs []error
	for _, family := range roster {
		var (
			spec models.Spec
			err  error
		)
		if grid, ok := overrides[family]; ok {
			spec, err = registry.NewSpec(family, family, grid)
		} else {
			spec, err = registry.DefaultSpec(family)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errors.Join(errs...)
}
