package preprocessing

import (
	"fmt"
	"log/slog"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

var _ ports.ArtifactCodec = Codec{}

// Codec adapts Encode and Decode to ports.ArtifactCodec.
type Codec struct {
	// Logger is attached to decoded pipelines. Nil uses slog.Default.
	Logger *slog.Logger
}

// Encode serializes p, which must be a *FittedPipeline, and returns its
// content-addressed key.
func (c Codec) Encode(p ports.FittedPreprocessor) ([]byte, string, error) {
	f, ok := p.(*FittedPipeline)
	if !ok {
		return nil, "", fmt.Errorf("encode artifact: unsupported preprocessor %T", p)
	}
	data, digest, err := Encode(f)
	if err != nil {
		return nil, "", err
	}
	return data, ArtifactKey(digest), nil
}

// Key returns the content-addressed key of encoded bytes.
func (Codec) Key(data []byte) string { return ArtifactKey(ContentDigest(data)) }

// Decode restores a pipeline and checks it against engineerVersion and schema.
func (c Codec) Decode(data []byte, engineerVersion string, schema domain.FeatureSchema) (ports.FittedPreprocessor, error) {
	var opts []DecodeOption
	if c.Logger != nil {
		opts = append(opts, WithDecodeLogger(c.Logger))
	}
	f, err := Decode(data, Expectation{EngineerVersion: engineerVersion, Schema: &schema}, opts...)
	if err != nil {
		return nil, err
	}
	return f, nil
}
