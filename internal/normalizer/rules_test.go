package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ads-stream-alerts/internal/storage"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		in   string
		want storage.DatasetCategory
	}{
		{"sp-traffic", storage.CategorySP},
		{"  SP-Conversion ", storage.CategorySP},
		{"sb-traffic", storage.CategorySB},
		{"SD", storage.CategorySD},
		{"sd-budget-usage", storage.CategorySD},
	}
	for _, tc := range cases {
		got, err := Classify(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"XX", "", "campaigns", "s"} {
		_, err := Classify(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsBudgetDataset(t *testing.T) {
	assert.True(t, IsBudgetDataset("sp-budget-usage"))
	assert.False(t, IsBudgetDataset("sp-traffic"))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-05-10T10:00:00Z",
		"2024-05-10T12:00:00+02:00",
		"2024-05-10T10:00:00",
		"2024-05-10T10:00:00.000",
		"2024-05-10 10:00:00",
		"2024-05-10T10:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	got, err := ParseTimestamp("2024-05-10")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC).Equal(got))

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestRulesFirstSkipsNulls(t *testing.T) {
	obj := map[string]any{
		"campaignId":  nil,
		"campaign_id": "c-2",
		"campaign":    map[string]any{"id": "c-3"},
	}
	v, ok := campaignIDRules.First(obj)
	require.True(t, ok)
	assert.Equal(t, "c-2", v)

	v, ok = campaignIDRules.First(map[string]any{"campaign": map[string]any{"id": "c-3"}})
	require.True(t, ok)
	assert.Equal(t, "c-3", v)

	_, ok = campaignIDRules.First(map[string]any{"campaign": "flat"})
	assert.False(t, ok)
}
