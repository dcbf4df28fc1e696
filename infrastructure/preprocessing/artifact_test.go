package preprocessing

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/internal/domain"
)

func fittedSmall(t *testing.T) (*FittedPipeline, []domain.EngineeredRecord) {
	t.Helper()
	records := []domain.EngineeredRecord{
		rec("a", 23.5, 1e-3, "admin.", "no"),
		rec("b", 31.25, 1.0/3.0, "services", "yes"),
		rec("c", 77, 123456.789, "admin.", "unknown"),
	}
	_, fitted := fit(t, newSmallPipeline(t), records)
	return fitted, records
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	fitted, records := fittedSmall(t)

	data, digest, err := Encode(fitted)
	require.NoError(t, err)
	assert.Equal(t, ContentDigest(data), digest)
	assert.Equal(t, "preprocessors/"+digest+".json", ArtifactKey(digest))

	schema := smallSchema()
	loaded, err := Decode(data, Expectation{EngineerVersion: "test-v1", Schema: &schema})
	require.NoError(t, err)

	assert.Equal(t, fitted.scaler, loaded.scaler, "float64 statistics must survive exactly")
	assert.Equal(t, fitted.encoder.Categories, loaded.encoder.Categories)
	assert.Equal(t, fitted.Columns(), loaded.Columns())
	assert.True(t, fitted.meta.CreatedAt.Equal(loaded.meta.CreatedAt))
	assert.Equal(t, fitted.meta.RunID, loaded.meta.RunID)

	want, err := fitted.Transform(context.Background(), records)
	require.NoError(t, err)
	got, err := loaded.Transform(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncode_Deterministic(t *testing.T) {
	fitted, _ := fittedSmall(t)

	first, d1, err := Encode(fitted)
	require.NoError(t, err)
	second, d2, err := Encode(fitted)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, d1, d2)
}

func TestEncode_KeyIgnoresProvenance(t *testing.T) {
	records := []domain.EngineeredRecord{
		rec("a", 23.5, 1e-3, "admin.", "no"),
		rec("b", 31.25, 1.0/3.0, "services", "yes"),
	}
	fitAt := func(runID string, at time.Time) *FittedPipeline {
		p, err := NewPipeline(smallSchema(), "test-v1", WithRunID(runID), WithClock(func() time.Time { return at }))
		require.NoError(t, err)
		_, fitted := fit(t, p, records)
		return fitted
	}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first, d1, err := Encode(fitAt("run-a", start))
	require.NoError(t, err)
	second, d2, err := Encode(fitAt("run-b", start.Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "same statistics share a key")
	assert.NotEqual(t, first, second)
	assert.Equal(t, d2, ContentDigest(second))

	loaded, err := Decode(second, Expectation{})
	require.NoError(t, err)
	assert.Equal(t, "run-b", loaded.Metadata().RunID)
	assert.True(t, start.Add(time.Hour).Equal(loaded.Metadata().CreatedAt))
}

func TestContentDigest_Unreadable(t *testing.T) {
	assert.Equal(t, Digest([]byte("garbage")), ContentDigest([]byte("garbage")))
}

func TestEncode_NotFitted(t *testing.T) {
	_, _, err := Encode(&FittedPipeline{})
	assert.ErrorIs(t, err, domain.ErrNotFitted)
}

func TestDecode_Corrupt(t *testing.T) {
	fitted, _ := fittedSmall(t)
	data, _, err := Encode(fitted)
	require.NoError(t, err)

	reenvelope := func(t *testing.T, mutate func(env map[string]any)) []byte {
		t.Helper()
		var env map[string]any
		require.NoError(t, json.Unmarshal(data, &env))
		mutate(env)
		out, err := json.Marshal(env)
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated", data: data[:len(data)/2]},
		{name: "not json", data: []byte("preprocessor")},
		{
			name: "tampered payload",
			data: []byte(strings.Replace(string(data), `"admin."`, `"admin!"`, 1)),
		},
		{
			name: "wrong format",
			data: reenvelope(t, func(env map[string]any) { env["format"] = "something.else" }),
		},
		{
			name: "future format version",
			data: reenvelope(t, func(env map[string]any) { env["format_version"] = ArtifactFormatVersion + 1 }),
		},
		{
			name: "bad checksum",
			data: reenvelope(t, func(env map[string]any) { env["checksum"] = strings.Repeat("0", 64) }),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data, Expectation{})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
			assert.Nil(t, f)
		})
	}
}

func TestDecode_InconsistentPayload(t *testing.T) {
	fitted, _ := fittedSmall(t)

	tests := []struct {
		name   string
		mutate func(p *payload)
	}{
		{name: "scaler features reordered", mutate: func(p *payload) {
			p.Scaler.Features = []string{"balance", "age"}
		}},
		{name: "zero scale", mutate: func(p *payload) { p.Scaler.Scale[0] = 0 }},
		{name: "short mean", mutate: func(p *payload) { p.Scaler.Mean = p.Scaler.Mean[:1] }},
		{name: "unsorted categories", mutate: func(p *payload) {
			p.Encoder.Categories[0] = []string{"services", "admin."}
		}},
		{name: "duplicate categories", mutate: func(p *payload) {
			p.Encoder.Categories[0] = []string{"admin.", "admin."}
		}},
		{name: "fingerprint does not match schema", mutate: func(p *payload) {
			p.SchemaFingerprint = strings.Repeat("a", 64)
		}},
		{name: "missing encoder", mutate: func(p *payload) { p.Encoder = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := payload{
				Schema:            fitted.schema,
				SchemaFingerprint: fitted.schema.Fingerprint(),
				Metadata:          fitted.meta,
				Scaler: &standardScaler{
					Features: append([]string(nil), fitted.scaler.Features...),
					Mean:     append([]float64(nil), fitted.scaler.Mean...),
					Scale:    append([]float64(nil), fitted.scaler.Scale...),
				},
				Encoder: &oneHotEncoder{
					Features:   append([]string(nil), fitted.encoder.Features...),
					Categories: [][]string{fitted.encoder.Categories[0], fitted.encoder.Categories[1]},
				},
			}
			tt.mutate(&p)
			body, err := json.Marshal(p)
			require.NoError(t, err)
			data, err := json.Marshal(envelope{
				Format:        ArtifactFormat,
				FormatVersion: ArtifactFormatVersion,
				Checksum:      Digest(body),
				Payload:       body,
			})
			require.NoError(t, err)

			_, err = Decode(data, Expectation{})
			assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
		})
	}
}

func TestDecode_ExpectationMismatch(t *testing.T) {
	fitted, _ := fittedSmall(t)
	data, _, err := Encode(fitted)
	require.NoError(t, err)

	t.Run("engineer version", func(t *testing.T) {
		_, err := Decode(data, Expectation{EngineerVersion: "test-v2"})
		require.ErrorIs(t, err, domain.ErrSchemaMismatch)

		var mismatch *domain.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "test-v2", mismatch.Expected)
		assert.Equal(t, "test-v1", mismatch.Actual)
	})

	t.Run("schema", func(t *testing.T) {
		other := smallSchema()
		other.Numeric = []string{"balance", "age"}

		_, err := Decode(data, Expectation{Schema: &other})
		require.ErrorIs(t, err, domain.ErrSchemaMismatch)

		var mismatch *domain.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "schema fingerprint", mismatch.Reason)
		assert.Equal(t, other.Fingerprint(), mismatch.Expected)
	})
}
