package preprocessing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ahrav/go-bankprep/internal/domain"
)

// Artifact envelope identifiers. Decode refuses anything else.
const (
	ArtifactFormat        = "bankprep.preprocessor"
	ArtifactFormatVersion = 2
)

// artifactPrefix is the key namespace fitted preprocessors are stored under.
const artifactPrefix = "preprocessors/"

// The checksum and the content key cover only the payload. Provenance
// varies per run and sits outside it, so refitting identical data on a new
// run lands under the key already stored.
type envelope struct {
	Format        string          `json:"format"`
	FormatVersion int             `json:"format_version"`
	Checksum      string          `json:"checksum"`
	Provenance    provenance      `json:"provenance"`
	Payload       json.RawMessage `json:"payload"`
}

type provenance struct {
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type payload struct {
	Schema            domain.FeatureSchema `json:"schema"`
	SchemaFingerprint string               `json:"schema_fingerprint"`
	Metadata          Metadata             `json:"metadata"`
	Scaler            *standardScaler      `json:"scaler"`
	Encoder           *oneHotEncoder       `json:"encoder"`
}

// ArtifactKey returns the content-addressed storage key for an artifact digest.
func ArtifactKey(digest string) string { return artifactPrefix + digest + ".json" }

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentDigest returns the digest an encoded artifact is addressed by: the
// digest of its payload. Data without a readable envelope is digested
// whole, which never matches the key of an intact artifact.
func ContentDigest(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Payload) == 0 {
		return Digest(data)
	}
	return Digest(env.Payload)
}

// Encode serializes a fitted pipeline. The returned digest covers the
// fitted state only, so identical statistics always land under the same
// key whichever run produced them.
func Encode(f *FittedPipeline) ([]byte, string, error) {
	if err := f.ready(); err != nil {
		return nil, "", err
	}
	body, err := json.Marshal(payload{
		Schema:            f.schema,
		SchemaFingerprint: f.schema.Fingerprint(),
		Metadata:          f.meta,
		Scaler:            f.scaler,
		Encoder:           f.encoder,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode artifact payload: %w", err)
	}
	digest := Digest(body)
	data, err := json.Marshal(envelope{
		Format:        ArtifactFormat,
		FormatVersion: ArtifactFormatVersion,
		Checksum:      digest,
		Provenance:    provenance{RunID: f.meta.RunID, CreatedAt: f.meta.CreatedAt},
		Payload:       body,
	})
	if err != nil {
		return nil, "", fmt.Errorf("encode artifact envelope: %w", err)
	}
	return data, digest, nil
}

// Expectation pins what a loaded artifact must have been fit on. Zero
// fields are not checked.
type Expectation struct {
	// EngineerVersion must equal the version the artifact was fit on.
	EngineerVersion string

	// Schema, when set, must fingerprint identically to the artifact's schema.
	Schema *domain.FeatureSchema
}

// DecodeOption configures Decode.
type DecodeOption func(*FittedPipeline)

// WithDecodeLogger sets the logger of the decoded pipeline.
func WithDecodeLogger(l *slog.Logger) DecodeOption {
	return func(f *FittedPipeline) { f.logger = l }
}

// Decode restores a fitted pipeline and rejects it unless it is intact and
// matches expect. Truncated or altered data fails with
// domain.ErrArtifactCorrupt; a version or schema divergence fails with a
// *domain.SchemaMismatchError. Both are detected here, before any record is
// transformed.
func Decode(data []byte, expect Expectation, opts ...DecodeOption) (*FittedPipeline, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, corrupt("unreadable envelope: %v", err)
	}
	if env.Format != ArtifactFormat {
		return nil, corrupt("unknown format %q", env.Format)
	}
	if env.FormatVersion != ArtifactFormatVersion {
		return nil, corrupt("unsupported format version %d", env.FormatVersion)
	}
	if got := Digest(env.Payload); got != env.Checksum {
		return nil, corrupt("checksum mismatch: recorded %s, computed %s", env.Checksum, got)
	}

	var p payload
	dec := json.NewDecoder(bytes.NewReader(env.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, corrupt("unreadable payload: %v", err)
	}
	if err := p.check(); err != nil {
		return nil, err
	}

	if expect.EngineerVersion != "" && p.Metadata.EngineerVersion != expect.EngineerVersion {
		return nil, &domain.SchemaMismatchError{
			Row:      -1,
			Reason:   "feature engineering version",
			Expected: expect.EngineerVersion,
			Actual:   p.Metadata.EngineerVersion,
		}
	}
	if expect.Schema != nil {
		if want, got := expect.Schema.Fingerprint(), p.SchemaFingerprint; want != got {
			return nil, &domain.SchemaMismatchError{
				Row:      -1,
				Reason:   "schema fingerprint",
				Expected: want,
				Actual:   got,
			}
		}
	}

	p.Metadata.RunID = env.Provenance.RunID
	p.Metadata.CreatedAt = env.Provenance.CreatedAt

	p.Encoder.buildIndex()
	f := &FittedPipeline{
		schema:  p.Schema,
		scaler:  p.Scaler,
		encoder: p.Encoder,
		meta:    p.Metadata,
		logger:  slog.Default(),
		tracer:  otel.Tracer("preprocessing"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.columns = f.buildColumns()
	return f, nil
}

// check verifies the internal consistency of a decoded payload.
func (p *payload) check() error {
	if err := p.Schema.Validate(); err != nil {
		return corrupt("invalid schema: %v", err)
	}
	if p.Schema.Fingerprint() != p.SchemaFingerprint {
		return corrupt("schema does not match its recorded fingerprint")
	}
	if p.Scaler == nil || p.Encoder == nil {
		return corrupt("missing fitted statistics")
	}
	if !slices.Equal(p.Scaler.Features, p.Schema.Numeric) {
		return corrupt("scaler features differ from schema")
	}
	if len(p.Scaler.Mean) != len(p.Scaler.Features) || len(p.Scaler.Scale) != len(p.Scaler.Features) {
		return corrupt("scaler statistics do not cover every feature")
	}
	for j, s := range p.Scaler.Scale {
		if !(s > 0) || math.IsInf(s, 0) || math.IsNaN(p.Scaler.Mean[j]) || math.IsInf(p.Scaler.Mean[j], 0) {
			return corrupt("non-finite statistics for %q", p.Scaler.Features[j])
		}
	}
	if !slices.Equal(p.Encoder.Features, p.Schema.Categorical) {
		return corrupt("encoder features differ from schema")
	}
	if len(p.Encoder.Categories) != len(p.Encoder.Features) {
		return corrupt("encoder categories do not cover every feature")
	}
	for j, cats := range p.Encoder.Categories {
		if !slices.IsSorted(cats) || len(slices.Compact(slices.Clone(cats))) != len(cats) {
			return corrupt("categories of %q are not sorted and unique", p.Encoder.Features[j])
		}
	}
	return nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrArtifactCorrupt, fmt.Sprintf(format, args...))
}
