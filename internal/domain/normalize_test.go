package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var covidAliases = map[string]string{
	"US":                  "United States of America",
	"Bahamas":             "The Bahamas",
	"Congo (Brazzaville)": "Republic of Congo",
	"Congo (Kinshasa)":    "Democratic Republic of the Congo",
	"Taiwan*":             "Taiwan",
	"Cote d'Ivoire":       "Ivory Coast",
	"Czechia":             "Czech Republic",
}

func TestNormalize(t *testing.T) {
	n := MustNormalizer(covidAliases)

	t.Run("alias", func(t *testing.T) {
		assert.Equal(t, "United States of America", n.Normalize("US"))
		assert.Equal(t, "Taiwan", n.Normalize("Taiwan*"))
	})

	t.Run("canonical passes through", func(t *testing.T) {
		assert.Equal(t, "United States of America", n.Normalize("United States of America"))
	})

	t.Run("unknown passes through", func(t *testing.T) {
		assert.Equal(t, "Atlantis", n.Normalize("Atlantis"))
	})

	t.Run("case sensitive", func(t *testing.T) {
		assert.Equal(t, "us", n.Normalize("us"))
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, k := range []string{"US", "Czechia", "Taiwan*", "France", ""} {
			once := n.Normalize(k)
			assert.Equal(t, once, n.Normalize(once), k)
		}
	})

	t.Run("zero value is identity", func(t *testing.T) {
		var empty Normalizer
		assert.Equal(t, "US", empty.Normalize("US"))
		assert.Equal(t, 0, empty.Len())
	})
}

func TestNewNormalizer_Rejects(t *testing.T) {
	t.Run("chained alias", func(t *testing.T) {
		_, err := NewNormalizer(map[string]string{"A": "B", "B": "C"})
		require.ErrorIs(t, err, ErrConfig)
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewNormalizer(map[string]string{"": "B"})
		require.ErrorIs(t, err, ErrConfig)
	})

	t.Run("self mapping is allowed", func(t *testing.T) {
		n, err := NewNormalizer(map[string]string{"A": "B", "B": "B"})
		require.NoError(t, err)
		assert.Equal(t, "B", n.Normalize(n.Normalize("A")))
	})
}
