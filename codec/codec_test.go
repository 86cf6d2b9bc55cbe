package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gemfony-scientific/gevabroker"
	"github.com/gemfony-scientific/gevabroker/examples/parabola"
)

func newRegistry() *Registry {
	r := NewRegistry()
	r.Register(parabola.Kind, func() Registerable { return parabola.New(nil) })
	return r
}

func TestRegistry_RoundTrip_AllFormats(t *testing.T) {
	for _, format := range []Format{FormatText, FormatXML, FormatBinary} {
		t.Run(format.String(), func(t *testing.T) {
			r := newRegistry()

			item := parabola.New([]float64{1, 2, 3})
			item.SetCourtierID(gevabroker.CourtierID{SubmissionID: 7, Position: 2})
			require.NoError(t, item.Process(context.Background()))

			data, err := r.Encode(item, format)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			decoded, err := r.Decode(data, format)
			require.NoError(t, err)

			require.Equal(t, item.CourtierID(), decoded.CourtierID())
			require.Equal(t, item.Status(), decoded.Status())
			require.Equal(t, item.Attempts(), decoded.Attempts())
			require.Equal(t, item.ErrorText(), decoded.ErrorText())
			require.Equal(t, item.Results(), decoded.Results())

			got := decoded.(*parabola.Individual)
			require.Equal(t, item.Params, got.Params)
		})
	}
}

func TestRegistry_Decode_UnknownKind(t *testing.T) {
	r := newRegistry()
	item := parabola.New([]float64{1})

	data, err := r.Encode(item, FormatBinary)
	require.NoError(t, err)

	empty := NewRegistry()
	_, err = empty.Decode(data, FormatBinary)
	require.Error(t, err)
}

func TestRegistry_Decode_PreservesAttempts(t *testing.T) {
	r := newRegistry()
	item := parabola.New([]float64{4, 5})
	item.IncrementAttempts()
	item.IncrementAttempts()

	data, err := r.Encode(item, FormatText)
	require.NoError(t, err)

	decoded, err := r.Decode(data, FormatText)
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Attempts())
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"text": FormatText, "xml": FormatXML, "binary": FormatBinary}
	for s, want := range cases {
		got, err := ParseFormat(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseFormat("protobuf")
	require.Error(t, err)
}
