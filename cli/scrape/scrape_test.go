package scrape

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zvonler/threadgrab/model"
)

func TestSeedURL(t *testing.T) {
	u, err := SeedURL("https://groups.google.com/g/golang-nuts")
	require.Equal(t, nil, err)
	require.Equal(t, "groups.google.com", u.Host)

	for _, raw := range []string{"golang-nuts", "ftp://example.com/g/a", "https://"} {
		_, err := SeedURL(raw)
		require.True(t, errors.Is(err, model.ErrInput), raw)
	}
}

func TestEmptyListingIsInputError(t *testing.T) {
	err := RequireTopics("https://groups.google.com/g/empty", nil)
	require.True(t, errors.Is(err, model.ErrInput))

	err = RequireTopics("https://groups.google.com/g/a", []model.Topic{{Title: "T", URL: "https://groups.google.com/g/a/c/1"}})
	require.Equal(t, nil, err)
}
