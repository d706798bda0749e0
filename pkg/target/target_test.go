package target

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const competition = "39th-fai-world-gliding-championships-tabor-2025"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected ScopeTarget
	}{
		{
			name:     "competition_root",
			url:      "https://www.soaringspot.com/en_gb/" + competition,
			expected: NewCompetition(competition),
		},
		{
			name:     "competition_results_with_trailing_slash",
			url:      "https://www.soaringspot.com/en_gb/" + competition + "/results/",
			expected: NewCompetition(competition),
		},
		{
			name:     "class",
			url:      "https://www.soaringspot.com/en_gb/" + competition + "/results/club",
			expected: NewClass(competition, "club"),
		},
		{
			name:     "day",
			url:      "https://www.soaringspot.com/en_gb/" + competition + "/results/club/task-4-on-2025-06-12/daily",
			expected: NewDay(competition, "club", 4, "2025-06-12"),
		},
		{
			name:     "other_locale_is_normalized",
			url:      "https://www.soaringspot.com/cs/" + competition + "/results/standard",
			expected: NewClass(competition, "standard"),
		},
		{
			name:     "http_and_bare_host_are_normalized",
			url:      "http://soaringspot.com/en_gb/" + competition + "/results/club/task-10-on-2025-06-19/daily",
			expected: NewDay(competition, "club", 10, "2025-06-19"),
		},
		{
			name:     "missing_scheme",
			url:      "www.soaringspot.com/en_gb/" + competition,
			expected: NewCompetition(competition),
		},
		{
			name:     "query_and_fragment_ignored",
			url:      "https://www.soaringspot.com/en_gb/" + competition + "/results/club?page=2#top",
			expected: NewClass(competition, "club"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := Classify(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestClassify_ClassTotalKeepsPage(t *testing.T) {
	actual, err := Classify("https://www.soaringspot.com/en_gb/" + competition + "/results/15-meter/total")
	require.NoError(t, err)

	assert.Equal(t, KindClass, actual.Kind)
	assert.Equal(t, competition, actual.CompetitionSlug)
	assert.Equal(t, "15-meter", actual.ClassSlug)
	assert.Equal(t, "https://www.soaringspot.com/en_gb/"+competition+"/results/15-meter/total", actual.PageURL)
}

func TestClassify_DayFields(t *testing.T) {
	actual, err := Classify("https://www.soaringspot.com/en_gb/39th-fai-x/results/club/task-4-on-2025-06-12/daily")
	require.NoError(t, err)

	assert.Equal(t, KindDay, actual.Kind)
	assert.Equal(t, "39th-fai-x", actual.CompetitionSlug)
	assert.Equal(t, "club", actual.ClassSlug)
	assert.Equal(t, "2025-06-12", actual.Date)
	assert.Equal(t, 4, actual.TaskNumber)
	assert.Equal(t, "task-4-on-2025-06-12", actual.TaskLabel)
	assert.Equal(t, "https://www.soaringspot.com/en_gb/39th-fai-x/results/club/task-4-on-2025-06-12/daily", actual.PageURL)
}

func TestClassify_WrongHost(t *testing.T) {
	urls := []string{
		"https://example.com/en_gb/" + competition,
		"https://www.soaringspot.com.evil.net/en_gb/" + competition,
		"https://api.soaringspot.com/en_gb/" + competition + "/results/club",
		"http://localhost:8080/en_gb/" + competition,
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			_, err := Classify(u)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrWrongHost), "WrongHost が期待されます: %v", err)

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, u, pe.URL)
		})
	}
}

func TestClassify_UnrecognizedShape(t *testing.T) {
	urls := []string{
		"",
		"ftp://www.soaringspot.com/en_gb/" + competition,
		"https://www.soaringspot.com/",
		"https://www.soaringspot.com/en_gb",
		"https://www.soaringspot.com/" + competition + "/results/club",
		"https://www.soaringspot.com/en_gb/" + competition + "/pilots",
		"https://www.soaringspot.com/en_gb/" + competition + "/results/club/task-4-on-2025-06-12",
		"https://www.soaringspot.com/en_gb/" + competition + "/results/club/practice-on-2025-06-08/daily",
		"https://www.soaringspot.com/en_gb/" + competition + "/results/club/task-4-on-2025-13-40/daily",
		"https://www.soaringspot.com/en_gb/" + competition + "/results/club/task-4-on-2025-06-12/daily/extra",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			_, err := Classify(u)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnrecognizedShape), "UnrecognizedShape が期待されます: %v", err)
		})
	}
}

func TestParseTaskSegment(t *testing.T) {
	n, date, ok := ParseTaskSegment("task-12-on-2024-07-01")
	assert.True(t, ok)
	assert.Equal(t, 12, n)
	assert.Equal(t, "2024-07-01", date)

	_, _, ok = ParseTaskSegment("task-x-on-2024-07-01")
	assert.False(t, ok)

	_, _, ok = ParseTaskSegment("task-1-on-2024-02-30")
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "competition", KindCompetition.String())
	assert.Equal(t, "class", KindClass.String())
	assert.Equal(t, "day", KindDay.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
