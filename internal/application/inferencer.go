package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-bankprep/infrastructure/dataio"
	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

// InferencerConfig holds the collaborators of an Inferencer.
type InferencerConfig struct {
	Engineer     ports.FeatureEngineer
	Preprocessor ports.FittedPreprocessor

	// Server scores matrices. Nil leaves Score and ScoreFile unavailable.
	Server ports.ModelServer

	// Reader parses raw input files for PrepareFile.
	Reader dataio.Reader

	Observer ports.StageObserver
	Metrics  ports.MetricsCollector
	Logger   *slog.Logger
}

// Inferencer replays the training-time transformations on new records.
// It only holds a fitted preprocessor, so nothing it does can re-estimate
// statistics. An Inferencer is safe for concurrent use.
type Inferencer struct {
	engineer     ports.FeatureEngineer
	preprocessor ports.FittedPreprocessor
	server       ports.ModelServer
	reader       dataio.Reader
	observer     ports.StageObserver
	metrics      ports.MetricsCollector
	logger       *slog.Logger
	tracer       trace.Tracer
}

// versioned is implemented by preprocessors that know which feature
// engineering version they were fit on.
type versioned interface {
	EngineerVersion() string
}

// NewInferencer checks that the engineer produces exactly the schema the
// preprocessor was fit on, so mismatches surface before any record is read.
func NewInferencer(cfg InferencerConfig) (*Inferencer, error) {
	if cfg.Engineer == nil {
		return nil, fmt.Errorf("inferencer engineer can't be nil: %w", domain.ErrInvalidConfiguration)
	}
	if cfg.Preprocessor == nil {
		return nil, &domain.NotFittedError{Component: "preprocessor"}
	}

	want, got := cfg.Preprocessor.Schema().Fingerprint(), cfg.Engineer.Schema().Fingerprint()
	if want != got {
		return nil, &domain.SchemaMismatchError{
			Row:      -1,
			Reason:   "schema fingerprint",
			Expected: want,
			Actual:   got,
		}
	}
	if v, ok := cfg.Preprocessor.(versioned); ok && v.EngineerVersion() != cfg.Engineer.Version() {
		return nil, &domain.SchemaMismatchError{
			Row:      -1,
			Reason:   "feature engineering version",
			Expected: v.EngineerVersion(),
			Actual:   cfg.Engineer.Version(),
		}
	}

	inf := &Inferencer{
		engineer:     cfg.Engineer,
		preprocessor: cfg.Preprocessor,
		server:       cfg.Server,
		reader:       cfg.Reader,
		observer:     cfg.Observer,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		tracer:       otel.Tracer("bankprep-inferencer"),
	}
	if inf.observer == nil {
		inf.observer = ports.NoopStageObserver{}
	}
	if inf.logger == nil {
		inf.logger = slog.Default()
	}
	return inf, nil
}

// Columns returns the output columns of every matrix this Inferencer builds.
func (inf *Inferencer) Columns() []string { return inf.preprocessor.Columns() }

// Prepare runs feature engineering only. The result is unscaled.
func (inf *Inferencer) Prepare(ctx context.Context, records []domain.Record) ([]domain.EngineeredRecord, error) {
	var engineered []domain.EngineeredRecord
	err := runStage(ctx, inf.observer, StageEngineer, len(records), func(ctx context.Context) error {
		var err error
		engineered, err = inf.engineer.Transform(ctx, records)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("engineer features: %w", err)
	}
	return engineered, nil
}

// Transform engineers and preprocesses records with the frozen statistics.
func (inf *Inferencer) Transform(ctx context.Context, records []domain.Record) (*domain.FeatureMatrix, error) {
	ctx, span := inf.tracer.Start(ctx, "Inferencer.Transform",
		trace.WithAttributes(attribute.Int("rows", len(records))))
	defer span.End()

	engineered, err := inf.Prepare(ctx, records)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return inf.TransformEngineered(ctx, engineered)
}

// TransformEngineered preprocesses records that were engineered earlier,
// for example read back from an engineered CSV.
func (inf *Inferencer) TransformEngineered(
	ctx context.Context,
	engineered []domain.EngineeredRecord,
) (*domain.FeatureMatrix, error) {
	var matrix *domain.FeatureMatrix
	err := runStage(ctx, inf.observer, StageTransform, len(engineered), func(ctx context.Context) error {
		var err error
		matrix, err = inf.preprocessor.Transform(ctx, engineered)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	recordUnknown(inf.metrics, matrix.Unknown)
	return matrix, nil
}

// Score transforms records and sends the matrix to the model server.
func (inf *Inferencer) Score(ctx context.Context, records []domain.Record) ([]domain.Prediction, error) {
	matrix, err := inf.Transform(ctx, records)
	if err != nil {
		return nil, err
	}
	return inf.ScoreMatrix(ctx, matrix)
}

// ScoreMatrix sends an already transformed matrix to the model server.
func (inf *Inferencer) ScoreMatrix(ctx context.Context, matrix *domain.FeatureMatrix) ([]domain.Prediction, error) {
	if inf.server == nil {
		return nil, fmt.Errorf("no model server configured: %w", domain.ErrInvalidConfiguration)
	}
	var predictions []domain.Prediction
	err := runStage(ctx, inf.observer, StageScore, matrix.Len(), func(ctx context.Context) error {
		var err error
		predictions, err = inf.server.Predict(ctx, matrix)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	return predictions, nil
}

// PrepareFile reads the raw delimited file at src, engineers every row, and
// writes the engineered comma-separated file to dst. It returns the number
// of rows written. dst is replaced atomically and is left untouched on error.
func (inf *Inferencer) PrepareFile(ctx context.Context, src, dst string) (int, error) {
	records, err := inf.reader.ReadFile(src)
	if err != nil {
		return 0, err
	}
	engineered, err := inf.Prepare(ctx, records)
	if err != nil {
		return 0, err
	}
	schema := inf.engineer.Schema()
	err = writeFileAtomic(dst, func(w io.Writer) error {
		return dataio.WriteEngineered(w, schema, engineered)
	})
	if err != nil {
		return 0, fmt.Errorf("write engineered %s: %w", dst, err)
	}
	inf.logger.InfoContext(ctx, "engineered file written", "src", src, "dst", dst, "rows", len(engineered))
	return len(engineered), nil
}

// ScoreFile reads an engineered file written by PrepareFile, preprocesses
// and scores it, and writes one prediction per row to dst.
func (inf *Inferencer) ScoreFile(ctx context.Context, src, dst string) (int, error) {
	f, err := os.Open(filepath.Clean(src))
	if err != nil {
		return 0, fmt.Errorf("open engineered %s: %w", src, err)
	}
	defer f.Close()

	engineered, err := dataio.ReadEngineered(f, inf.preprocessor.Schema())
	if err != nil {
		return 0, fmt.Errorf("read engineered %s: %w", src, err)
	}
	matrix, err := inf.TransformEngineered(ctx, engineered)
	if err != nil {
		return 0, err
	}
	predictions, err := inf.ScoreMatrix(ctx, matrix)
	if err != nil {
		return 0, err
	}
	err = writeFileAtomic(dst, func(w io.Writer) error {
		return dataio.WritePredictions(w, predictions)
	})
	if err != nil {
		return 0, fmt.Errorf("write predictions %s: %w", dst, err)
	}
	inf.logger.InfoContext(ctx, "predictions written",
		"src", src, "dst", dst, "rows", len(predictions), "unknown_categories", matrix.UnknownTotal())
	return len(predictions), nil
}

// writeFileAtomic writes through a temporary file in the destination
// directory and renames it over path once write succeeds.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	path = filepath.Clean(path)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // No-op after a successful rename.

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
