package storage

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numericColumn = regexp.MustCompile(`(?m)^\s*(\w+)\s+NUMERIC\((\d+),\s*(\d+)\)`)

// cost and sales allow 12 integer digits and 6 decimals, so a cost/sales style ratio can
// reach 10^18 and needs 19 integer digits.
func TestPostgresRatioColumnsHoldExtremeRatios(t *testing.T) {
	body, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)

	ratioColumns := map[string]bool{
		"ctr": true, "cpc": true, "acos": true, "roas": true, "conversion_rate": true,
		"avg_ctr": true, "avg_cpc": true, "avg_acos": true, "avg_roas": true, "avg_conversion_rate": true,
		"metric_value": true, "threshold_value": true, "previous_value": true,
	}

	seen := 0
	for _, m := range numericColumn.FindAllStringSubmatch(string(body), -1) {
		if !ratioColumns[m[1]] {
			continue
		}
		seen++
		precision, _ := strconv.Atoi(m[2])
		scale, _ := strconv.Atoi(m[3])
		assert.GreaterOrEqual(t, precision-scale, 19, m[1])
	}
	assert.Equal(t, len(ratioColumns), seen)
}
