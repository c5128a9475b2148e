// Package inference runs a raw applicant profile through feature engineering,
// encoding and alignment, then through the loaded models.
package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/emiscope/internal/encoding"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/metrics"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
)

// ArtifactPaths locates the files a Context is built from.
type ArtifactPaths struct {
	Schema     string
	Classifier string
	Regressor  string
}

// PathsIn returns the artifact paths under dir using the given file names.
func PathsIn(dir, schemaFile, classifierFile, regressorFile string) ArtifactPaths {
	return ArtifactPaths{
		Schema:     filepath.Join(dir, schemaFile),
		Classifier: filepath.Join(dir, classifierFile),
		Regressor:  filepath.Join(dir, regressorFile),
	}
}

// Context holds the loaded artifacts. It is built once and only read after
// that, so one Context may serve concurrent requests.
type Context struct {
	Schema     *schema.Schema
	Levels     encoding.Levels
	Classifier predictor.Classifier
	Regressor  predictor.Regressor

	ClassifierInfo predictor.Info
	RegressorInfo  predictor.Info

	// Fingerprint identifies the artifact contents. Prediction cache keys
	// include it.
	Fingerprint string

	Logger logger.Logger
}

// LoadContext reads the schema and both models. Any unreadable or malformed
// artifact fails the whole load.
func LoadContext(paths ArtifactPaths, log logger.Logger) (*Context, error) {
	if log == nil {
		log = logger.NewNop()
	}

	s, err := schema.Load(paths.Schema)
	if err != nil {
		return nil, err
	}
	clf, clfInfo, err := predictor.LoadClassifier(paths.Classifier, s)
	if err != nil {
		return nil, err
	}
	reg, regInfo, err := predictor.LoadRegressor(paths.Regressor, s)
	if err != nil {
		return nil, err
	}

	ctx := NewContext(s, clf, reg, log)
	ctx.ClassifierInfo = clfInfo
	ctx.RegressorInfo = regInfo
	ctx.Fingerprint = fingerprint(paths.Schema, paths.Classifier, paths.Regressor)

	for _, info := range []predictor.Info{clfInfo, regInfo} {
		for _, d := range info.SchemaDrift {
			log.Warn("model disagrees with feature schema", map[string]interface{}{
				"model":  info.Path,
				"detail": d,
			})
			metrics.SchemaMismatch.WithLabelValues(metrics.MismatchModelSchema).Inc()
		}
	}

	log.Info("artifacts loaded", map[string]interface{}{
		"schema_columns": s.Len(),
		"classifier":     fmt.Sprintf("%s (%s)", clfInfo.Kind, paths.Classifier),
		"regressor":      fmt.Sprintf("%s (%s)", regInfo.Kind, paths.Regressor),
	})
	return ctx, nil
}

// NewContext assembles a Context from already-built parts. Either model may be
// nil when the caller only needs one task.
func NewContext(s *schema.Schema, clf predictor.Classifier, reg predictor.Regressor, log logger.Logger) *Context {
	if log == nil {
		log = logger.NewNop()
	}
	return &Context{
		Schema:     s,
		Levels:     encoding.ParseLevels(s, profile.CategoricalFields),
		Classifier: clf,
		Regressor:  reg,
		Logger:     log,
	}
}

func fingerprint(paths ...string) string {
	h := sha256.New()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
