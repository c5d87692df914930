package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsLiteralOptions(t *testing.T) {
	opts := Options{
		Begin:         "1d",
		End:           "1h",
		UseCheckpoint: "test",
		OrQuery:       true,
		Types:         ExposureTypes,
		Usernames:     []string{"a@example.com"},
	}
	assert.NoError(t, opts.Validate())
}

func TestValidateAdvancedQueryConflicts(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"username", Options{Usernames: []string{"u"}}, []string{"--c42-username"}},
		{"begin", Options{Begin: "1d"}, []string{"--begin"}},
		{"end", Options{End: "1d"}, []string{"--end"}},
		{"checkpoint", Options{UseCheckpoint: "x"}, []string{"--use-checkpoint"}},
		{"include non exposure", Options{IncludeNonExposure: true}, []string{"--include-non-exposure"}},
		{"or query", Options{OrQuery: true}, []string{"--or-query"}},
		{"saved search", Options{SavedSearch: "id"}, []string{"--saved-search"}},
		{"every conflict", Options{
			Types:          []string{"IsPublic"},
			Usernames:      []string{"u"},
			Actors:         []string{"a"},
			MD5s:           []string{"m"},
			SHA256s:        []string{"s"},
			Sources:        []string{"Gmail"},
			FileNames:      []string{"n"},
			FilePaths:      []string{"p"},
			FileCategories: []string{"c"},
			ProcessOwners:  []string{"o"},
			TabURLs:        []string{"t"},
			Begin:          "1d",
		}, []string{
			"--type", "--c42-username", "--actor", "--md5", "--sha256", "--source",
			"--file-name", "--file-path", "--file-category", "--process-owner", "--tab-url", "--begin",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.AdvancedQuery = `{"groups":[]}`
			err := tt.opts.Validate()

			var incompatible *IncompatibleOptionsError
			require.True(t, errors.As(err, &incompatible), "got %v", err)
			assert.Equal(t, "--advanced-query", incompatible.Option)
			assert.Equal(t, tt.want, incompatible.Conflicts)
			assert.True(t, incompatible.Usage())
		})
	}
}

func TestValidateAdvancedQueryMessageNamesBothFlags(t *testing.T) {
	err := Options{AdvancedQuery: "{}", Usernames: []string{"u"}, Begin: "1h"}.Validate()
	assert.EqualError(t, err, "--c42-username, --begin can't be used with: --advanced-query")
}

func TestValidateSavedSearchConflicts(t *testing.T) {
	err := Options{SavedSearch: "id", FileNames: []string{"a"}, End: "1d"}.Validate()

	var incompatible *IncompatibleOptionsError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, "--saved-search", incompatible.Option)
	assert.Equal(t, []string{"--file-name", "--end"}, incompatible.Conflicts)
}

func TestValidateIncludeNonExposureWithType(t *testing.T) {
	err := Options{IncludeNonExposure: true, Types: []string{"SharedViaLink"}}.Validate()

	assert.EqualError(t, err, "--include-non-exposure can't be used with: --type")
}

func TestValidateInvalidExposureType(t *testing.T) {
	err := Options{Types: []string{"SharedViaLink", "NotValid"}}.Validate()

	var choice *InvalidChoiceError
	require.True(t, errors.As(err, &choice))
	assert.Equal(t, "NotValid", choice.Value)
	assert.Contains(t, err.Error(), "invalid choice: NotValid")
}
