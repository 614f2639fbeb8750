package persistence

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"matchpredict/internal/models"
)

var ErrArtifactNotFound = errors.New("model artifact not found")

// ModelBundle is the persisted form of a trained model.
type ModelBundle struct {
	Model     models.Model
	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName string
	Family    string
	RunID     string
	BestScore float64
	// BestParams holds the winning grid combination, formatted for output.
	BestParams   map[string]string
	Parameters   map[string]any
	Features     []string
	Classes      []int
	ClassLabels  []string
	TrainingTime time.Duration
}

func NewModelBundle(name string, model models.Model) *ModelBundle {
	return &ModelBundle{
		Model:     model,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  name,
			Family:     model.GetType(),
			Parameters: model.GetParams(),
			Classes:    model.GetClasses(),
			BestParams: map[string]string{},
		},
	}
}

// SetBestParams records the winning combination. Nil values, which select
// the estimator default, are kept as empty strings.
func (mb *ModelBundle) SetBestParams(params map[string]any) {
	mb.Metadata.BestParams = make(map[string]string, len(params))
	for k, v := range params {
		mb.Metadata.BestParams[k] = models.FormatParam(v)
	}
}

var registerOnce sync.Once

func registerTypes() {
	registerOnce.Do(func() {
		gob.Register(&models.KNN{})
		gob.Register(&models.DecisionTree{})
		gob.Register(&models.RandomForest{})
		gob.Register(&models.NaiveBayes{})
		gob.Register(&models.LogisticRegression{})
		gob.Register(&models.SVM{})
		gob.Register(&models.MLP{})
		gob.Register(&models.GradientBoosting{})
		gob.Register(&models.TreeNode{})
	})
}

// Store keeps one artifact per model name under Dir.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name+".model")
}

// Save writes the bundle, overwriting any previous artifact of that name.
func (s *Store) Save(mb *ModelBundle) error {
	registerTypes()
	if mb.Metadata.ModelName == "" {
		return errors.New("bundle has no model name")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	path := s.Path(mb.Metadata.ModelName)
	tmp, err := os.CreateTemp(s.Dir, mb.Metadata.ModelName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(mb); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store bundle: %w", err)
	}
	return nil
}

func (s *Store) Load(name string) (*ModelBundle, error) {
	registerTypes()
	file, err := os.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var bundle ModelBundle
	if err := gob.NewDecoder(file).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", name, err)
	}
	return &bundle, nil
}
