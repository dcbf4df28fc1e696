// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import (
	"context"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// FeatureEngineer derives model features from raw records.
// Implementations must be pure and row-local: the output for a record
// depends only on that record and on constants fixed at build time.
type FeatureEngineer interface {
	// Transform converts raw records into engineered records, one for one,
	// in the same order. Every row that fails is reported; the returned
	// error is a *domain.BatchError when any row fails.
	Transform(ctx context.Context, records []domain.Record) ([]domain.EngineeredRecord, error)

	// Schema returns the feature schema the engineer produces.
	Schema() domain.FeatureSchema

	// Version identifies the pinned formula and bin tables. It is stored
	// with every fitted artifact and checked when the artifact is loaded.
	Version() string
}

// FittablePreprocessor is the training-time capability: it estimates
// scaling and encoding statistics from a dataset.
//
// It has no Transform method. A caller holding a fittable
// preprocessor must go through FitTransform, and a caller holding a
// FittedPreprocessor has no way to re-estimate statistics.
type FittablePreprocessor interface {
	// FitTransform estimates statistics from records, freezes them into a
	// FittedPreprocessor, and returns the matrix that the frozen
	// preprocessor produces for the same records.
	FitTransform(ctx context.Context, records []domain.EngineeredRecord) (*domain.FeatureMatrix, FittedPreprocessor, error)
}

// FittedPreprocessor is the inference-time capability: it applies frozen
// statistics and never recomputes them. Implementations are immutable and
// safe for concurrent use without locking.
type FittedPreprocessor interface {
	// Transform applies the frozen statistics to records.
	// It returns *domain.NotFittedError when the statistics are missing and
	// *domain.SchemaMismatchError when a record's features differ from the
	// fitted schema.
	Transform(ctx context.Context, records []domain.EngineeredRecord) (*domain.FeatureMatrix, error)

	// Schema returns the schema the preprocessor was fit on.
	Schema() domain.FeatureSchema

	// Columns returns the output column names in order.
	Columns() []string
}

// ArtifactCodec converts fitted preprocessors to and from their persisted
// form. Keys are content addressed: the same bytes always map to the same key.
type ArtifactCodec interface {
	// Encode serializes p and returns the bytes with their storage key.
	Encode(p FittedPreprocessor) (data []byte, key string, err error)

	// Key returns the storage key that encoded bytes belong under.
	Key(data []byte) string

	// Decode restores a preprocessor. It fails with an error wrapping
	// domain.ErrArtifactCorrupt for damaged data and with a
	// *domain.SchemaMismatchError when the artifact was fit with a different
	// engineer version or schema.
	Decode(data []byte, engineerVersion string, schema domain.FeatureSchema) (FittedPreprocessor, error)
}
