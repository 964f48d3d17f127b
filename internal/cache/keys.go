package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const (
	keyPrefix  = "report_cache:"
	metaSuffix = ":meta"
	idxPrefix  = "report_cache:idx:"
)

// fingerprint is the sha256 of the canonical (sorted-key) JSON encoding of
// {report_definition_id, query_parameters, date_range} — §4.4.
func fingerprint(reportDefinitionID string, queryParameters, dateRange map[string]any) (string, error) {
	if queryParameters == nil {
		queryParameters = map[string]any{}
	}
	if dateRange == nil {
		dateRange = map[string]any{}
	}

	payload := map[string]any{
		"report_definition_id": reportDefinitionID,
		"query_parameters":     queryParameters,
		"date_range":           dateRange,
	}

	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache fingerprint input: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v with map keys in sorted order at every nesting
// level, matching Python's json.dumps(sort_keys=True) — encoding/json
// already sorts map[string]any keys, so a direct Marshal suffices here.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func valueKey(fp string) string { return keyPrefix + fp }
func metaKey(fp string) string  { return keyPrefix + fp + metaSuffix }
func indexKey(reportDefinitionID string) string { return idxPrefix + reportDefinitionID }
