package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"matchpredict/internal/config"

	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then the documented defaults are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.TargetColumn, convey.ShouldEqual, "MatchOutcome")
				convey.So(cfg.TargetMapping, convey.ShouldResemble, map[string]int{"H": 0, "D": 1, "A": 2})
				convey.So(cfg.TestSize, convey.ShouldEqual, 0.2)
				convey.So(cfg.Seed, convey.ShouldEqual, 42)
				convey.So(cfg.CVFolds, convey.ShouldEqual, 5)
				convey.So(cfg.Models, convey.ShouldResemble, config.DefaultRoster)
				convey.So(cfg.ScaleExclude, convey.ShouldResemble, []string{"Home_Advantage"})
			})
		})

		convey.Convey("When loading a YAML file", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "pipeline.yaml")
			body := []byte(`input_path: matches.csv
drop_columns:
  - Week
models:
  - knn
  - naive_bayes
target_mapping:
  W: 0
  L: 1
cv_folds: 3
`)
			convey.So(os.WriteFile(path, body, 0o644), convey.ShouldBeNil)

			cfg, err := config.Load(ctx, path)

			convey.Convey("Then file values replace defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.InputPath, convey.ShouldEqual, "matches.csv")
				convey.So(cfg.DropColumns, convey.ShouldResemble, []string{"Week"})
				convey.So(cfg.Models, convey.ShouldResemble, []string{"knn", "naive_bayes"})
				convey.So(cfg.TargetMapping, convey.ShouldResemble, map[string]int{"W": 0, "L": 1})
				convey.So(cfg.CVFolds, convey.ShouldEqual, 3)
				convey.So(cfg.ModelsDir, convey.ShouldEqual, "models")
			})

			convey.Convey("And env vars override the file", func() {
				_ = os.Setenv("MATCHPREDICT_CV_FOLDS", "4")
				_ = os.Setenv("MATCHPREDICT_MODELS", "svm, mlp")
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx, path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.CVFolds, convey.ShouldEqual, 4)
				convey.So(cfg.Models, convey.ShouldResemble, []string{"svm", "mlp"})
			})
		})

		convey.Convey("When the config is invalid", func() {
			_ = os.Setenv("MATCHPREDICT_TEST_SIZE", "1.5")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx, "")

			convey.Convey("Then loading fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "test_size")
			})
		})

		convey.Convey("When the file does not exist", func() {
			_, err := config.Load(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestValidateRejectsSharedCodes(t *testing.T) {
	convey.Convey("Given a mapping that reuses a code", t, func() {
		cfg := config.New()
		cfg.TargetMapping = map[string]int{"H": 0, "A": 0}
		convey.So(cfg.Validate(), convey.ShouldNotBeNil)
	})
}

func clearConfigEnvVars() {
	for _, key := range []string{
		"MATCHPREDICT_CONFIG",
		"MATCHPREDICT_CV_FOLDS",
		"MATCHPREDICT_MODELS",
		"MATCHPREDICT_TEST_SIZE",
	} {
		_ = os.Unsetenv(key)
	}
}
