package providers

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chapters(nums ...float64) []Chapter {
	out := make([]Chapter, 0, len(nums))
	for _, n := range nums {
		out = append(out, Chapter{Number: n, Name: "ch" + strconv.FormatFloat(n, 'f', -1, 64)})
	}
	return out
}

func numbers(cs []Chapter) []float64 {
	out := make([]float64, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Number)
	}
	return out
}

func TestSelection_Zero(t *testing.T) {
	all := chapters(1, 2, 3)
	got, err := Selection{}.Apply(all)
	require.NoError(t, err)
	assert.Equal(t, all, got)
}

func TestSelection_Chapter(t *testing.T) {
	all := chapters(1, 2, 2.5, 3)

	got, err := Selection{Chapter: "2.5"}.Apply(all)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, numbers(got))

	got, err = Selection{Chapter: "CH3"}.Apply(all)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, numbers(got))

	got, err = Selection{Chapter: "9"}.Apply(all)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelection_Range(t *testing.T) {
	all := chapters(1, 2, 2.5, 3, 4)

	got, err := Selection{Range: "2-3"}.Apply(all)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2.5, 3}, numbers(got))

	_, err = Selection{Range: "3-1"}.Apply(all)
	assert.Error(t, err)

	_, err = Selection{Range: "5"}.Apply(all)
	assert.Error(t, err)
}

func TestSelection_List(t *testing.T) {
	all := chapters(1, 2, 3, 4)

	got, err := Selection{List: "4, 1,,9"}.Apply(all)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4}, numbers(got))

	_, err = Selection{List: "1,x"}.Apply(all)
	assert.Error(t, err)
}

func TestSelection_Filter(t *testing.T) {
	all := chapters(1, 2, 3)

	keep, err := Selection{List: "2"}.Filter(all)
	require.NoError(t, err)
	assert.False(t, keep(all[0]))
	assert.True(t, keep(all[1]))

	keep, err = Selection{}.Filter(all)
	require.NoError(t, err)
	assert.True(t, keep(all[2]))
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(stubScraper{name: "a", prefix: "https://a.test/"})
	r.Register(stubScraper{name: "b", prefix: "https://"})

	s, err := r.Lookup("https://a.test/series")
	require.NoError(t, err)
	assert.Equal(t, "a", s.Name())

	s, err = r.Lookup("https://b.test/series")
	require.NoError(t, err)
	assert.Equal(t, "b", s.Name())

	_, err = r.Lookup("ftp://x")
	assert.ErrorIs(t, err, ErrNoScraper)
}

func TestEnabled(t *testing.T) {
	assert.True(t, Enabled(nil, "generic"))
	assert.True(t, Enabled([]string{" Generic "}, "generic"))
	assert.False(t, Enabled([]string{"other"}, "generic"))
}

func TestChapterName(t *testing.T) {
	vol := 2.0
	assert.Equal(t, "Some Series #007", ChapterName(" Some Series ", 7, nil))
	assert.Equal(t, "Some Series V02 #010.5", ChapterName("Some Series", 10.5, &vol))
	assert.Equal(t, "S #1234", ChapterName("S", 1234, nil))
}

func TestChapterName_LongSeriesKeepsNumber(t *testing.T) {
	vol := 3.0
	long := strings.Repeat("\u6f2b", 84)

	one := ChapterName(long, 1, &vol)
	two := ChapterName(long, 2, &vol)
	assert.NotEqual(t, one, two)
	assert.True(t, strings.HasSuffix(one, " V03 #001"))
	assert.True(t, strings.HasSuffix(two, " V03 #002"))
	assert.True(t, utf8.ValidString(one))
	assert.LessOrEqual(t, len(one), maxSeriesInName+len(" V03 #001"))
}
