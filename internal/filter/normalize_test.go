package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type libraryType string

type priorityLevel int

func TestNormalizeScalars(t *testing.T) {
	assert.Equal(t, Normalize(nil), Normalize(nil))
	assert.Equal(t, Normalize(true), Normalize(true))
	assert.NotEqual(t, Normalize(true), Normalize(false))
	assert.Equal(t, Normalize("blood"), Normalize("blood"))
	assert.NotEqual(t, Normalize("blood"), Normalize("saliva"))
	assert.Equal(t, Normalize(3.5), Normalize(3.5))
}

func TestNormalizeIntWidthsAgree(t *testing.T) {
	assert.Equal(t, Normalize(int8(5)), Normalize(5))
	assert.Equal(t, Normalize(int64(5)), Normalize(int32(5)))
}

func TestNormalizeDistinguishesKinds(t *testing.T) {
	// an int and the string spelling of it must never share a group
	assert.NotEqual(t, Normalize(1), Normalize("1"))
	assert.NotEqual(t, Normalize(true), Normalize(1))
	assert.NotEqual(t, Normalize(nil), Normalize(""))
	assert.NotEqual(t, Normalize(nil), Normalize(0))
}

func TestNormalizeNamedTypesReduce(t *testing.T) {
	assert.Equal(t, Normalize(libraryType("wgs")), Normalize("wgs"))
	assert.Equal(t, Normalize(priorityLevel(3)), Normalize(3))
}

func TestNormalizeListsOrderSignificant(t *testing.T) {
	assert.Equal(t, Normalize([]int{1, 2, 3}), Normalize([]int{1, 2, 3}))
	assert.NotEqual(t, Normalize([]int{1, 2, 3}), Normalize([]int{3, 2, 1}))
}

func TestNormalizeNilVsEmptyList(t *testing.T) {
	assert.NotEqual(t, Normalize([]int(nil)), Normalize([]int{}))
	assert.Equal(t, Normalize([]int(nil)), Normalize(nil))
}

func TestNormalizeMapsOrderInsignificant(t *testing.T) {
	a := map[string]any{"technology": "short-read", "platform": "illumina"}
	b := map[string]any{"platform": "illumina", "technology": "short-read"}
	assert.Equal(t, Normalize(a), Normalize(b))

	c := map[string]any{"technology": "long-read", "platform": "illumina"}
	assert.NotEqual(t, Normalize(a), Normalize(c))
}

func TestNormalizeNestedValues(t *testing.T) {
	a := map[string]any{"ids": []int{1, 2}, "active": true}
	b := map[string]any{"active": true, "ids": []int{1, 2}}
	assert.Equal(t, Normalize(a), Normalize(b))

	reordered := map[string]any{"active": true, "ids": []int{2, 1}}
	assert.NotEqual(t, Normalize(a), Normalize(reordered))
}

func TestNormalizeUnwrapsPointers(t *testing.T) {
	assert.Equal(t, Normalize(Ptr(7)), Normalize(7))
	assert.Equal(t, Normalize((*int)(nil)), Normalize(nil))
}

func TestNormalizeDelegatesToKeyer(t *testing.T) {
	f := Filter[int]{Eq: Ptr(42)}
	require.Equal(t, Normalize(f), Normalize(f))
	assert.Contains(t, string(Normalize(f)), string(f.NormalizeKey()))
}

func TestFilterKeyAcrossConstructionPaths(t *testing.T) {
	direct := Filter[int]{Eq: Ptr(5)}

	var decoded Filter[int]
	require.NoError(t, decoded.UnmarshalJSON([]byte(`5`)))

	assert.Equal(t, direct.NormalizeKey(), decoded.NormalizeKey())

	directIn := Filter[int]{In: []int{1, 2}}
	var decodedIn Filter[int]
	require.NoError(t, decodedIn.UnmarshalJSON([]byte(`[1, 2]`)))
	assert.Equal(t, directIn.NormalizeKey(), decodedIn.NormalizeKey())
}

func TestFilterKeyDistinguishesSlots(t *testing.T) {
	eq := Filter[int]{Eq: Ptr(5)}
	neq := Filter[int]{Neq: Ptr(5)}
	assert.NotEqual(t, eq.NormalizeKey(), neq.NormalizeKey())

	empty := Filter[int]{}
	falsy := Filter[int]{In: []int{}}
	assert.NotEqual(t, empty.NormalizeKey(), falsy.NormalizeKey())
}

func TestModelKeyIgnoresRegistrationOrder(t *testing.T) {
	a := NewModel().
		Field("type", Filter[string]{Eq: Ptr("blood")}).
		Field("active", Filter[bool]{Eq: Ptr(true)})
	b := NewModel().
		Field("active", Filter[bool]{Eq: Ptr(true)}).
		Field("type", Filter[string]{Eq: Ptr("blood")})

	assert.Equal(t, a.NormalizeKey(), b.NormalizeKey())
}

func TestModelKeyDistinguishesContent(t *testing.T) {
	a := NewModel().Field("type", Filter[string]{Eq: Ptr("blood")})
	b := NewModel().Field("type", Filter[string]{Eq: Ptr("saliva")})
	assert.NotEqual(t, a.NormalizeKey(), b.NormalizeKey())

	renamed := NewModel().Field("kind", Filter[string]{Eq: Ptr("blood")})
	assert.NotEqual(t, a.NormalizeKey(), renamed.NormalizeKey())
}
