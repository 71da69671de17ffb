package normalizer

import (
	"fmt"
	"strings"

	"ads-stream-alerts/internal/storage"
)

// Classify maps a dataset identifier onto its category: a case-insensitive "sp", "sb"
// or "sd" prefix first, then an exact category name.
func Classify(datasetType string) (storage.DatasetCategory, error) {
	normalized := NormalizeDatasetName(datasetType)
	if normalized == "" {
		return "", fmt.Errorf("dataset type missing")
	}
	switch {
	case strings.HasPrefix(normalized, "sp"):
		return storage.CategorySP, nil
	case strings.HasPrefix(normalized, "sb"):
		return storage.CategorySB, nil
	case strings.HasPrefix(normalized, "sd"):
		return storage.CategorySD, nil
	}
	return storage.ParseDatasetCategory(normalized)
}

// NormalizeDatasetName trims and lower-cases a dataset identifier.
func NormalizeDatasetName(datasetType string) string {
	return strings.ToLower(strings.TrimSpace(datasetType))
}

// IsBudgetDataset reports whether a normalized dataset carries budget usage.
func IsBudgetDataset(datasetName string) bool {
	return strings.Contains(datasetName, "budget")
}
