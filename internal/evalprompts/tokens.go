package evalprompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// TokenUsageMetric is the telemetry metric carrying token counts.
const TokenUsageMetric = "gemini_cli.token.usage"

// ExtractTokenUsage scans a stream of concatenated telemetry JSON records and returns the
// token counts, keyed by token type, of the last record reporting the usage metric.
// Counts of the same type within one record, for instance from several models, are summed.
// It returns nil when no record carries the metric.
func ExtractTokenUsage(r io.Reader) (map[string]int, error) {
	dec := json.NewDecoder(r)

	var usage map[string]int
	for i := 0; ; i++ {
		var record any
		if err := dec.Decode(&record); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, fmt.Errorf("invalid telemetry record %d: %v", i, err)
		}

		if u := recordTokenUsage(record); u != nil {
			usage = u
		}
	}
	return usage, nil
}

// recordTokenUsage walks a record looking for metrics named TokenUsageMetric.
func recordTokenUsage(record any) map[string]int {
	var usage map[string]int

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			if u := metricTokenUsage(t); u != nil {
				if usage == nil {
					usage = make(map[string]int)
				}
				for k, n := range u {
					usage[k] += n
				}
				return
			}
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(record)
	return usage
}

// metricTokenUsage returns the per type counts of m when it is the token usage metric.
func metricTokenUsage(m map[string]any) map[string]int {
	desc, ok := m["descriptor"].(map[string]any)
	if !ok || desc["name"] != TokenUsageMetric {
		return nil
	}

	usage := make(map[string]int)
	points, _ := m["dataPoints"].([]any)
	for _, p := range points {
		point, ok := p.(map[string]any)
		if !ok {
			continue
		}
		attrs, _ := point["attributes"].(map[string]any)
		kind, ok := attrs["type"].(string)
		if !ok {
			continue
		}
		if n, ok := point["value"].(float64); ok {
			usage[kind] += int(n)
		}
	}
	return usage
}
