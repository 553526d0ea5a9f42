package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NihalShah4/ai-news-research-recommender/internal/processing"
)

func TestBuildTermIndexVocabulary(t *testing.T) {
	texts := []string{"alpha beta", "alpha gamma", "alpha beta"}

	tests := []struct {
		name        string
		maxFeatures int
		want        []string
	}{
		{
			name: "uncapped",
			want: []string{"alpha", "alpha beta", "alpha gamma", "beta", "gamma"},
		},
		{
			name:        "cap keeps most frequent and breaks ties alphabetically",
			maxFeatures: 3,
			want:        []string{"alpha", "alpha beta", "beta"},
		},
		{
			name:        "cap reaching into the singleton terms",
			maxFeatures: 4,
			want:        []string{"alpha", "alpha beta", "alpha gamma", "beta"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := BuildTermIndex(texts, processing.NewAnalyzer(), tt.maxFeatures)
			require.NotNil(t, ti)
			require.Equal(t, tt.want, ti.terms)
			require.Equal(t, len(tt.want), ti.VocabularySize())
			require.Equal(t, len(texts), ti.Rows())
		})
	}
}

func TestBuildTermIndexSmoothedIDF(t *testing.T) {
	ti := BuildTermIndex([]string{"alpha beta", "alpha gamma", "alpha beta"}, nil, 0)
	require.NotNil(t, ti)

	tests := []struct {
		term string
		df   float64
	}{
		{term: "alpha", df: 3},
		{term: "beta", df: 2},
		{term: "alpha beta", df: 2},
		{term: "gamma", df: 1},
		{term: "alpha gamma", df: 1},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			col, ok := ti.vocab[tt.term]
			require.True(t, ok)
			require.InDelta(t, math.Log(4/(1+tt.df))+1, ti.idf[col], 1e-12)
		})
	}
	require.InDelta(t, 1.0, ti.idf[ti.vocab["alpha"]], 1e-12)
}

func TestBuildTermIndexRowsAreUnitLength(t *testing.T) {
	ti := BuildTermIndex([]string{
		"agents plan tools agents",
		"database engines store tuples",
		"agents query database engines",
	}, nil, 0)
	require.NotNil(t, ti)

	for i := 0; i < ti.Rows(); i++ {
		row := ti.Row(i)
		require.NotZero(t, row.Len())
		require.InDelta(t, 1.0, row.Norm(), 1e-12)
		for k := 1; k < row.Len(); k++ {
			require.Less(t, row.Indices[k-1], row.Indices[k])
		}
	}
	require.Zero(t, ti.Row(-1).Len())
	require.Zero(t, ti.Row(ti.Rows()).Len())
}

func TestTransformDropsUnknownTerms(t *testing.T) {
	ti := BuildTermIndex([]string{"alpha beta", "alpha gamma", "alpha beta"}, nil, 0)
	require.NotNil(t, ti)
	size := ti.VocabularySize()

	v := ti.Transform("alpha zebra")
	require.Equal(t, []int{ti.vocab["alpha"]}, v.Indices)
	require.InDelta(t, 1.0, v.Values[0], 1e-12)
	require.Equal(t, size, ti.VocabularySize())

	require.Zero(t, ti.Transform("zebra okapi").Len())
	require.Equal(t, size, ti.VocabularySize())
}

func TestBuildTermIndexWithoutTerms(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
	}{
		{name: "no texts"},
		{name: "stop words only", texts: []string{"the and of", "it is what it was"}},
		{name: "short tokens only", texts: []string{"a b c", "x y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ti := BuildTermIndex(tt.texts, nil, 0)
			require.Nil(t, ti)
			require.Zero(t, ti.VocabularySize())
			require.Zero(t, ti.Transform("alpha").Len())
		})
	}
}
