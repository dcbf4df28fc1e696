package preprocessing

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/infrastructure/features"
	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/testutils"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func smallSchema() domain.FeatureSchema {
	return domain.FeatureSchema{
		Version:     "1.0.0",
		Numeric:     []string{"age", "balance"},
		Categorical: []string{"job", "loan"},
		Target:      "y",
	}
}

func rec(id string, age, balance float64, job, loan string) domain.EngineeredRecord {
	return domain.EngineeredRecord{
		RowID:       id,
		Numeric:     map[string]float64{"age": age, "balance": balance},
		Categorical: map[string]string{"job": job, "loan": loan},
	}
}

func labelled(r domain.EngineeredRecord, y int) domain.EngineeredRecord {
	r.Label = &y
	return r
}

func newSmallPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := NewPipeline(smallSchema(), "test-v1", WithClock(func() time.Time { return fixedNow }), WithRunID("run-1"))
	require.NoError(t, err)
	return p
}

func fit(t *testing.T, p *Pipeline, records []domain.EngineeredRecord) (*domain.FeatureMatrix, *FittedPipeline) {
	t.Helper()
	m, fitted, err := p.FitTransform(context.Background(), records)
	require.NoError(t, err)
	fp, ok := fitted.(*FittedPipeline)
	require.True(t, ok)
	return m, fp
}

func TestNewPipeline(t *testing.T) {
	tests := []struct {
		name    string
		schema  domain.FeatureSchema
		version string
		wantErr bool
	}{
		{name: "valid", schema: smallSchema(), version: "v1"},
		{name: "invalid schema", schema: domain.FeatureSchema{Version: "1.0.0"}, version: "v1", wantErr: true},
		{name: "missing engineer version", schema: smallSchema(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPipeline(tt.schema, tt.version)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestPipeline_FitTransform(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 20, 100, "admin.", "no"),
		rec("b", 40, 300, "technician", "yes"),
		rec("c", 60, 200, "admin.", "no"),
	}
	m, fitted := fit(t, newSmallPipeline(t), records)

	assert.Equal(t, []string{"age", "balance", "job=admin.", "job=technician", "loan=no", "loan=yes"}, m.Columns)
	assert.Equal(t, m.Columns, fitted.Columns())
	assert.Equal(t, []string{"a", "b", "c"}, m.RowIDs)
	require.Equal(t, 3, m.Len())

	// Population std of {20,40,60} is sqrt(800/3).
	std := math.Sqrt(800.0 / 3.0)
	assert.InDelta(t, -20/std, m.Rows[0][0], 1e-12)
	assert.InDelta(t, 0.0, m.Rows[1][0], 1e-12)
	assert.InDelta(t, 20/std, m.Rows[2][0], 1e-12)
	assert.Equal(t, []float64{1, 0, 1, 0}, m.Rows[0][2:])
	assert.Equal(t, []float64{0, 1, 0, 1}, m.Rows[1][2:])
	assert.Empty(t, m.Unknown)
	assert.Nil(t, m.Labels, "labels only appear when every row has one")

	meta := fitted.Metadata()
	assert.Equal(t, "test-v1", meta.EngineerVersion)
	assert.Equal(t, 3, meta.FitRows)
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, fixedNow, meta.CreatedAt)
}

func TestPipeline_FitTransformMatchesTransform(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 25, 10, "admin.", "no"),
		rec("b", 35, -5, "services", "yes"),
		rec("c", 55, 70, "admin.", "unknown"),
	}
	fitMatrix, fitted := fit(t, newSmallPipeline(t), records)

	again, err := fitted.Transform(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, fitMatrix, again)
}

func TestPipeline_FitIsIndependentOfRowOrder(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 25, 10, "services", "no"),
		rec("b", 35, -5, "admin.", "yes"),
		rec("c", 55, 70, "blue-collar", "no"),
	}
	reversed := []domain.EngineeredRecord{records[2], records[1], records[0]}

	_, f1 := fit(t, newSmallPipeline(t), records)
	_, f2 := fit(t, newSmallPipeline(t), reversed)

	assert.Equal(t, f1.Columns(), f2.Columns())
	m1, err := f1.Transform(context.Background(), records)
	require.NoError(t, err)
	m2, err := f2.Transform(context.Background(), records)
	require.NoError(t, err)
	for i := range m1.Rows {
		assert.InDeltaSlice(t, m1.Rows[i], m2.Rows[i], 1e-12)
	}
}

func TestPipeline_Labels(t *testing.T) {
	records := []domain.EngineeredRecord{
		labelled(rec("a", 20, 1, "admin.", "no"), 0),
		labelled(rec("b", 30, 2, "admin.", "yes"), 1),
	}
	m, fitted := fit(t, newSmallPipeline(t), records)
	assert.Equal(t, []int{0, 1}, m.Labels)

	mixed := []domain.EngineeredRecord{records[0], rec("c", 25, 1, "admin.", "no")}
	out, err := fitted.Transform(context.Background(), mixed)
	require.NoError(t, err)
	assert.Nil(t, out.Labels)
}

func TestPipeline_ZeroVarianceFeature(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 42, 1, "admin.", "no"),
		rec("b", 42, 2, "admin.", "no"),
		rec("c", 42, 3, "admin.", "no"),
	}
	m, fitted := fit(t, newSmallPipeline(t), records)

	for _, row := range m.Rows {
		assert.Equal(t, 0.0, row[0])
	}
	assert.Equal(t, 1.0, fitted.scaler.Scale[0])

	out, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{rec("d", 50, 2, "admin.", "no")})
	require.NoError(t, err)
	assert.Equal(t, 8.0, out.Rows[0][0])
	for _, v := range out.Rows[0] {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestScaleFor(t *testing.T) {
	tests := []struct {
		std  float64
		want float64
	}{
		{std: 0, want: 1},
		{std: MinScale / 2, want: 1},
		{std: math.NaN(), want: 1},
		{std: MinScale, want: MinScale},
		{std: 2.5, want: 2.5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scaleFor(tt.std), "std=%v", tt.std)
	}
}

func TestFittedPipeline_UnknownCategory(t *testing.T) {
	_, fitted := fit(t, newSmallPipeline(t), []domain.EngineeredRecord{
		rec("a", 20, 1, "admin.", "no"),
		rec("b", 30, 2, "services", "yes"),
	})

	m, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{
		rec("x", 25, 1, "astronaut", "no"),
		rec("y", 25, 1, "astronaut", "maybe"),
	})
	require.NoError(t, err)

	jobStart := m.ColumnIndex("job=admin.")
	require.GreaterOrEqual(t, jobStart, 0)
	assert.Equal(t, []float64{0, 0}, m.Rows[0][jobStart:jobStart+2])
	assert.Equal(t, map[string]int{"job": 2, "loan": 1}, m.Unknown)
	assert.Equal(t, 3, m.UnknownTotal())
	assert.Equal(t, len(fitted.Columns()), m.Width())
}

func TestFittedPipeline_SchemaMismatch(t *testing.T) {
	_, fitted := fit(t, newSmallPipeline(t), []domain.EngineeredRecord{rec("a", 20, 1, "admin.", "no")})

	t.Run("missing feature is not zero-filled", func(t *testing.T) {
		r := rec("x", 20, 1, "admin.", "no")
		delete(r.Numeric, "balance")

		m, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{r})
		require.Error(t, err)
		assert.Nil(t, m)
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

		var mismatch *domain.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "balance", mismatch.Field)
		assert.Equal(t, "x", mismatch.RowID)
	})

	t.Run("unexpected feature", func(t *testing.T) {
		r := rec("x", 20, 1, "admin.", "no")
		r.Categorical["colour"] = "red"

		_, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{r})
		var mismatch *domain.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "colour", mismatch.Field)
		assert.Equal(t, "unexpected", mismatch.Reason)
	})

	t.Run("every offending row is reported", func(t *testing.T) {
		bad1 := rec("1", 20, 1, "admin.", "no")
		delete(bad1.Categorical, "job")
		bad2 := rec("2", 20, 1, "admin.", "no")
		bad2.Numeric["age"] = math.Inf(1)

		_, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{bad1, rec("ok", 1, 1, "admin.", "no"), bad2})
		var batch *domain.BatchError
		require.ErrorAs(t, err, &batch)
		require.Len(t, batch.Errors, 2)
		assert.ErrorIs(t, batch.Errors[0], domain.ErrSchemaMismatch)
		assert.ErrorIs(t, batch.Errors[1], domain.ErrTypeCoercion)
	})

	t.Run("several bad features in one row count once", func(t *testing.T) {
		bad := rec("multi", 20, 1, "admin.", "no")
		delete(bad.Categorical, "job")
		bad.Numeric["age"] = math.NaN()
		bad.Categorical["colour"] = "red"

		_, err := fitted.Transform(context.Background(), []domain.EngineeredRecord{bad})
		var batch *domain.BatchError
		require.ErrorAs(t, err, &batch)
		assert.Equal(t, 1, batch.FailedRows())
		assert.Contains(t, batch.Error(), "failed for 1 of 1 rows")

		var rowErr *domain.RowError
		require.ErrorAs(t, batch.Errors[0], &rowErr)
		assert.Equal(t, "multi", rowErr.RowID)
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
		assert.ErrorIs(t, err, domain.ErrTypeCoercion)
	})
}

func TestFittedPipeline_NotFitted(t *testing.T) {
	tests := []struct {
		name      string
		fitted    *FittedPipeline
		component string
	}{
		{name: "nil", fitted: nil, component: "preprocessor"},
		{name: "zero value", fitted: &FittedPipeline{}, component: "scaler"},
		{
			name:      "no encoder",
			fitted:    &FittedPipeline{scaler: &standardScaler{}},
			component: "encoder",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.fitted.Transform(context.Background(), []domain.EngineeredRecord{rec("a", 1, 1, "x", "y")})
			assert.Nil(t, m)
			require.ErrorIs(t, err, domain.ErrNotFitted)

			var nf *domain.NotFittedError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, tt.component, nf.Component)
		})
	}
}

func TestPipeline_FitTransformErrors(t *testing.T) {
	p := newSmallPipeline(t)

	_, fitted, err := p.FitTransform(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
	assert.Nil(t, fitted)

	r := rec("a", 1, 1, "x", "y")
	delete(r.Numeric, "age")
	_, fitted, err = p.FitTransform(context.Background(), []domain.EngineeredRecord{r})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	assert.Nil(t, fitted)
}

func TestFittedPipeline_EmptyBatch(t *testing.T) {
	_, fitted := fit(t, newSmallPipeline(t), []domain.EngineeredRecord{rec("a", 1, 1, "x", "y")})

	m, err := fitted.Transform(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, fitted.Columns(), m.Columns)
	assert.Nil(t, m.Labels)
}

func TestFittedPipeline_ContextCancelled(t *testing.T) {
	_, fitted := fit(t, newSmallPipeline(t), []domain.EngineeredRecord{rec("a", 1, 1, "x", "y")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fitted.Transform(ctx, []domain.EngineeredRecord{rec("a", 1, 1, "x", "y")})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFittedPipeline_ConcurrentTransform(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 20, 1, "admin.", "no"),
		rec("b", 30, 2, "services", "yes"),
		rec("c", 40, 3, "admin.", "no"),
	}
	want, fitted := fit(t, newSmallPipeline(t), records)

	var wg sync.WaitGroup
	results := make([]*domain.FeatureMatrix, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := fitted.Transform(context.Background(), records)
			if err == nil {
				results[i] = m
			}
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		assert.Equal(t, want, m)
	}
}

func TestPipeline_EngineeredBankRecords(t *testing.T) {
	schema := domain.DefaultFeatureSchema()
	engineer, err := features.NewEngineer(schema)
	require.NoError(t, err)

	engineered, err := engineer.Transform(context.Background(), testutils.GenerateBankRecords(200, 7))
	require.NoError(t, err)

	p, err := NewPipeline(schema, engineer.Version())
	require.NoError(t, err)
	m, fitted, err := p.FitTransform(context.Background(), engineered)
	require.NoError(t, err)

	assert.Equal(t, schema.Numeric, m.Columns[:len(schema.Numeric)])
	assert.Len(t, m.Labels, 200)
	assert.Empty(t, m.Unknown)

	// Each scaled numeric column has mean 0 over the training rows.
	for j := range schema.Numeric {
		sum := 0.0
		for _, row := range m.Rows {
			sum += row[j]
		}
		assert.InDelta(t, 0, sum/float64(m.Len()), 1e-9, "column %s", m.Columns[j])
	}
	// Every row has exactly one hot column per categorical feature.
	for _, row := range m.Rows {
		hot := 0.0
		for _, v := range row[len(schema.Numeric):] {
			hot += v
		}
		assert.Equal(t, float64(len(schema.Categorical)), hot)
	}
	assert.Equal(t, schema.Fingerprint(), fitted.Schema().Fingerprint())
}
