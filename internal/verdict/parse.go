package verdict

import (
	"encoding/json"
	"sort"
)

// rawVerdict tolerates the field spellings the backends actually produce.
type rawVerdict struct {
	Agent          string `json:"agent"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Thought        string `json:"thought"`
	Analysis       string `json:"analysis"`
	Recommendation string `json:"recommendation"`
	Action         string `json:"action"`
	Impact         string `json:"impact"`
	TargetID       string `json:"target_id"`
}

// parseVerdicts decodes a backend response into verdicts. The accepted
// shapes, in order: a top-level array, an object with a "verdicts" array,
// an object with an "agents" array, or the first array-typed value in the
// object (keys scanned in sorted order so the choice is deterministic).
// Any other shape yields no verdicts rather than an error.
func parseVerdicts(raw string) []Verdict {
	if raw == "" {
		return nil
	}

	var direct []rawVerdict
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return convert(direct)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}

	for _, key := range []string{"verdicts", "agents"} {
		if arr, ok := decodeArray(obj[key]); ok {
			return convert(arr)
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if arr, ok := decodeArray(obj[k]); ok {
			return convert(arr)
		}
	}
	return nil
}

func decodeArray(data json.RawMessage) ([]rawVerdict, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var probe []json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	var arr []rawVerdict
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func convert(raws []rawVerdict) []Verdict {
	var out []Verdict
	for _, r := range raws {
		name := r.Agent
		if name == "" {
			name = r.Name
		}
		thought := r.Thought
		if thought == "" {
			thought = r.Analysis
		}
		rec := r.Recommendation
		if rec == "" {
			rec = r.Action
		}
		if name == "" && r.Status == "" && thought == "" && rec == "" {
			continue
		}
		out = append(out, Verdict{
			Agent:          normalizeAgent(name),
			Status:         normalizeStatus(r.Status),
			Thought:        thought,
			Recommendation: rec,
			Impact:         r.Impact,
			TargetID:       r.TargetID,
		})
	}
	return out
}
