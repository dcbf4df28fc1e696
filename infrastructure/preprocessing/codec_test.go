package preprocessing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-bankprep/internal/domain"
	"github.com/ahrav/go-bankprep/internal/ports"
)

type foreignPreprocessor struct{ ports.FittedPreprocessor }

func TestCodec_RoundTrip(t *testing.T) {
	fitted, records := fittedSmall(t)
	codec := Codec{}

	data, key, err := codec.Encode(fitted)
	require.NoError(t, err)
	assert.Equal(t, codec.Key(data), key)

	loaded, err := codec.Decode(data, "test-v1", smallSchema())
	require.NoError(t, err)

	want, err := fitted.Transform(context.Background(), records)
	require.NoError(t, err)
	got, err := loaded.Transform(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCodec_Errors(t *testing.T) {
	fitted, _ := fittedSmall(t)
	codec := Codec{}

	_, _, err := codec.Encode(foreignPreprocessor{})
	assert.ErrorContains(t, err, "unsupported preprocessor")

	data, _, err := codec.Encode(fitted)
	require.NoError(t, err)

	_, err = codec.Decode(data, "other-version", smallSchema())
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

	_, err = codec.Decode(data[:len(data)/2], "test-v1", smallSchema())
	assert.ErrorIs(t, err, domain.ErrArtifactCorrupt)
}
