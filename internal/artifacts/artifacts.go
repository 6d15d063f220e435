// Package artifacts loads the serialized training outputs the service depends
// on: the boosted tree model, the per-feature label encoders, the pinned
// feature column order, the target class order and the feature statistics.
// The bundle is loaded once at startup and never mutated afterwards, so it is
// safe for unbounded concurrent readers.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/0ritam/XAI-Dashboard/internal/model"
	"github.com/0ritam/XAI-Dashboard/internal/models"
)

const (
	manifestFile      = "manifest.json"
	modelFile         = "model.json"
	encodersFile      = "encoders.json"
	featureNamesFile  = "feature_names.json"
	targetClassesFile = "target_classes.json"
	featureStatsFile  = "feature_stats.json"

	// schemaConstraint pins the artifact schema versions this binary can read.
	schemaConstraint = ">= 1.0.0, < 2.0.0"
)

// LoadError reports a startup failure to load or validate required artifacts.
// It is fatal: the service must not become ready.
type LoadError struct {
	Artifact string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("artifact load failed for %s: %v", e.Artifact, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Manifest describes the artifact set.
type Manifest struct {
	SchemaVersion string    `json:"schema_version"`
	ModelVersion  string    `json:"model_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// FeatureStats carries per-column training statistics, aligned with the
// pinned feature order. The surrogate explainer samples from these.
type FeatureStats struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Bundle is the immutable artifact snapshot shared by every request.
type Bundle struct {
	Manifest      Manifest
	Model         *model.Ensemble
	Encoders      map[string]*LabelEncoder
	FeatureNames  []string
	TargetClasses []string
	Stats         FeatureStats
}

// Load reads every artifact from dir, checks schema compatibility and
// cross-validates the encoders against the request schema. Any failure is a
// *LoadError and must abort startup.
func Load(dir string, logger *zap.Logger) (*Bundle, error) {
	var manifest Manifest
	if err := readJSON(filepath.Join(dir, manifestFile), &manifest); err != nil {
		return nil, &LoadError{Artifact: manifestFile, Err: err}
	}
	if err := checkSchemaVersion(manifest.SchemaVersion); err != nil {
		return nil, &LoadError{Artifact: manifestFile, Err: err}
	}

	ensemble, err := model.Load(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, &LoadError{Artifact: modelFile, Err: err}
	}

	var rawEncoders map[string][]string
	if err := readJSON(filepath.Join(dir, encodersFile), &rawEncoders); err != nil {
		return nil, &LoadError{Artifact: encodersFile, Err: err}
	}
	encoders := make(map[string]*LabelEncoder, len(rawEncoders))
	for feature, classes := range rawEncoders {
		enc, err := NewLabelEncoder(classes)
		if err != nil {
			return nil, &LoadError{Artifact: encodersFile, Err: fmt.Errorf("feature %s: %w", feature, err)}
		}
		encoders[feature] = enc
	}

	var featureNames []string
	if err := readJSON(filepath.Join(dir, featureNamesFile), &featureNames); err != nil {
		return nil, &LoadError{Artifact: featureNamesFile, Err: err}
	}
	if len(featureNames) != ensemble.NumFeatures {
		return nil, &LoadError{
			Artifact: featureNamesFile,
			Err:      fmt.Errorf("%d feature names for a %d-feature model", len(featureNames), ensemble.NumFeatures),
		}
	}

	var targetClasses []string
	if err := readJSON(filepath.Join(dir, targetClassesFile), &targetClasses); err != nil {
		return nil, &LoadError{Artifact: targetClassesFile, Err: err}
	}
	if len(targetClasses) != ensemble.NumClasses {
		return nil, &LoadError{
			Artifact: targetClassesFile,
			Err:      fmt.Errorf("%d target classes for a %d-class model", len(targetClasses), ensemble.NumClasses),
		}
	}

	var stats FeatureStats
	if err := readJSON(filepath.Join(dir, featureStatsFile), &stats); err != nil {
		return nil, &LoadError{Artifact: featureStatsFile, Err: err}
	}
	if len(stats.Means) != ensemble.NumFeatures || len(stats.Stds) != ensemble.NumFeatures {
		return nil, &LoadError{
			Artifact: featureStatsFile,
			Err:      fmt.Errorf("stats cover %d/%d columns, model has %d", len(stats.Means), len(stats.Stds), ensemble.NumFeatures),
		}
	}

	b := &Bundle{
		Manifest:      manifest,
		Model:         ensemble,
		Encoders:      encoders,
		FeatureNames:  featureNames,
		TargetClasses: targetClasses,
		Stats:         stats,
	}

	if err := b.validateEncoderCoverage(); err != nil {
		return nil, &LoadError{Artifact: encodersFile, Err: err}
	}

	logger.Info("artifacts loaded",
		zap.String("model_version", manifest.ModelVersion),
		zap.String("schema_version", manifest.SchemaVersion),
		zap.Int("features", len(featureNames)),
		zap.Int("classes", len(targetClasses)),
		zap.Int("encoders", len(encoders)))

	return b, nil
}

// ClassesInOrder returns the class names matching the probability column
// order of the model.
func (b *Bundle) ClassesInOrder() []string { return b.TargetClasses }

// validateEncoderCoverage checks that every value the request schema can
// produce for an encoded categorical field is a class the corresponding
// encoder was trained on. A gap here would silently degrade every request,
// so it fails startup instead.
func (b *Bundle) validateEncoderCoverage() error {
	universe := map[string][]string{
		"gender":  {string(models.GenderMale), string(models.GenderFemale)},
		"age_band": {
			string(models.AgeBandYoung), string(models.AgeBandMiddle), string(models.AgeBandSenior),
		},
		"highest_education": {
			string(models.EducationNoFormal), string(models.EducationLowerThanA),
			string(models.EducationALevel), string(models.EducationHE), string(models.EducationPostGraduate),
		},
		"disability": {string(models.DisabilityYes), string(models.DisabilityNo)},
	}
	for _, r := range models.Regions {
		universe["region"] = append(universe["region"], string(r))
	}

	for feature, labels := range universe {
		enc, ok := b.Encoders[feature]
		if !ok {
			// No encoder shipped for this field; the adapter's deterministic
			// fallback handles it, nothing to cross-check.
			continue
		}
		for _, label := range labels {
			if _, err := enc.Transform(label); err != nil {
				return fmt.Errorf("encoder for %s does not know schema value %q", feature, label)
			}
		}
	}
	return nil
}

func checkSchemaVersion(raw string) error {
	v, err := version.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	constraint, err := version.NewConstraint(schemaConstraint)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("artifact schema %s outside supported range %s", raw, schemaConstraint)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
