package storage

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetTableKey is the object key of one table's Parquet file inside a
// named dataset, e.g. datasets/world/city.parquet.
func DatasetTableKey(dataset, tableName string) (string, error) {
	if err := validatePathComponent(dataset, "dataset name"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join("datasets", dataset, tableName+".parquet"), nil
}

// DatasetSchemaKey is the object key of a dataset's schema description.
func DatasetSchemaKey(dataset string) (string, error) {
	if err := validatePathComponent(dataset, "dataset name"); err != nil {
		return "", err
	}
	return path.Join("datasets", dataset, "schema.json"), nil
}

// ParseDatasetSpec parses "table=key[,table=key...]". A table may be listed
// more than once to span several files.
func ParseDatasetSpec(raw string) (map[string][]string, error) {
	out := map[string][]string{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tableName, key, ok := strings.Cut(entry, "=")
		tableName = strings.TrimSpace(tableName)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid dataset entry %q: want table=object_key", entry)
		}
		if err := validatePathComponent(tableName, "table name"); err != nil {
			return nil, err
		}
		if strings.Contains(key, "..") {
			return nil, fmt.Errorf("invalid object key %q", key)
		}
		out[tableName] = append(out[tableName], key)
	}
	return out, nil
}

// FormatDatasetSpec is the inverse of ParseDatasetSpec with tables sorted.
func FormatDatasetSpec(tables map[string][]string) string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		for _, key := range tables[name] {
			parts = append(parts, name+"="+key)
		}
	}
	return strings.Join(parts, ",")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
