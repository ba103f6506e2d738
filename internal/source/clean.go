package source

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/dataforge/collector/internal/collector"
)

// sensitiveFields are record keys that trip the privacy check, compared
// case-insensitively.
var sensitiveFields = []string{"email", "phone", "password", "ssn", "credit_card"}

// Clean post-processes collected records: project to the requested field
// subset, drop exact-duplicate rows, and mean-impute missing numeric fields.
// Non-numeric columns are left alone rather than failing the batch. Clean is
// idempotent.
func Clean(records []collector.Record, fields []string) []collector.Record {
	if len(records) == 0 {
		return nil
	}

	projected := project(records, fields)
	deduped := dedupe(projected)
	imputeNumeric(deduped)
	// Imputation can turn a row with a missing value into a copy of an
	// existing row, so dedupe once more to keep the output duplicate-free
	// and a second Clean a no-op.
	return dedupe(deduped)
}

func project(records []collector.Record, fields []string) []collector.Record {
	if len(fields) == 0 {
		out := make([]collector.Record, len(records))
		for i, r := range records {
			clone := make(collector.Record, len(r))
			for k, v := range r {
				clone[k] = v
			}
			out[i] = clone
		}
		return out
	}

	out := make([]collector.Record, len(records))
	for i, r := range records {
		clone := make(collector.Record, len(fields))
		for _, f := range fields {
			if v, ok := r[f]; ok {
				clone[f] = v
			} else {
				clone[f] = nil
			}
		}
		out[i] = clone
	}
	return out
}

func dedupe(records []collector.Record) []collector.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]collector.Record, 0, len(records))
	for _, r := range records {
		key := fingerprint(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// fingerprint serializes a record with sorted keys so equal rows always
// collide.
func fingerprint(r collector.Record) string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		raw, err := json.Marshal(r[k])
		if err != nil {
			b.WriteString("?")
		} else {
			b.Write(raw)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// imputeNumeric fills nil values in numeric columns with the column mean.
// A column counts as numeric when every non-nil value is a number; other
// columns are skipped.
func imputeNumeric(records []collector.Record) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	numeric := make(map[string]bool)

	for _, r := range records {
		for k, v := range r {
			if v == nil {
				continue
			}
			f, ok := asFloat(v)
			if !ok {
				numeric[k] = false
				continue
			}
			if _, seen := numeric[k]; !seen {
				numeric[k] = true
			}
			if numeric[k] {
				sums[k] += f
				counts[k]++
			}
		}
	}

	for _, r := range records {
		for k, v := range r {
			if v != nil {
				continue
			}
			if numeric[k] && counts[k] > 0 {
				r[k] = sums[k] / float64(counts[k])
			}
		}
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ValidatePrivacy returns false if any record contains a key that
// case-insensitively matches the sensitive-field list. It is advisory:
// callers decide whether to abort.
func ValidatePrivacy(records []collector.Record) bool {
	for _, r := range records {
		for k := range r {
			lowered := strings.ToLower(k)
			for _, sensitive := range sensitiveFields {
				if lowered == sensitive {
					return false
				}
			}
		}
	}
	return true
}
