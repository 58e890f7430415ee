package world

import (
	"fmt"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Dataset     string
	Seed        int64
	ExtraCities int
	SchemaFile  string
}

func DefaultConfig() Config {
	return Config{
		Dataset:     "world",
		Seed:        1,
		ExtraCities: 200,
		SchemaFile:  "world_cities_schema.json",
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if raw, ok := lookup("ASKSQL_DEMO_DATASET"); ok {
		cfg.Dataset = strings.TrimSpace(raw)
	}
	if raw, ok := lookup("ASKSQL_DEMO_SCHEMA_FILE"); ok {
		cfg.SchemaFile = strings.TrimSpace(raw)
	}
	if raw, ok := lookup("ASKSQL_DEMO_SEED"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ASKSQL_DEMO_SEED: %w", err)
		}
		cfg.Seed = v
	}
	if raw, ok := lookup("ASKSQL_DEMO_EXTRA_CITIES"); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid ASKSQL_DEMO_EXTRA_CITIES: %w", err)
		}
		cfg.ExtraCities = v
	}

	if cfg.Dataset == "" {
		return Config{}, fmt.Errorf("ASKSQL_DEMO_DATASET is required")
	}
	if cfg.ExtraCities < 0 {
		return Config{}, fmt.Errorf("ASKSQL_DEMO_EXTRA_CITIES must be >= 0")
	}
	return cfg, nil
}
