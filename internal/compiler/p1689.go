package compiler

import "encoding/json"

// p1689Doc is the subset of the P1689 dependency-info JSON format (the
// format clang-scan-deps emits for C++20 modules) this driver needs.
type p1689Doc struct {
	Rules []p1689Rule `json:"rules"`
}

type p1689Rule struct {
	Provides []p1689Provide `json:"provides"`
	Requires []p1689Require `json:"requires"`
}

type p1689Provide struct {
	LogicalName string `json:"logical-name"`
}

type p1689Require struct {
	LogicalName string `json:"logical-name"`
}

// parseP1689 extracts the ScanResult for a single-source scan (a
// per-translation-unit clang-scan-deps invocation always yields exactly
// one rule).
func parseP1689(data []byte) (ScanResult, error) {
	var doc p1689Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return ScanResult{}, err
	}
	if len(doc.Rules) == 0 {
		return ScanResult{}, nil
	}

	rule := doc.Rules[0]
	res := ScanResult{}
	if len(rule.Provides) > 0 {
		res.Name = rule.Provides[0].LogicalName
		res.Exported = true
	}
	for _, r := range rule.Requires {
		res.Deps = append(res.Deps, r.LogicalName)
	}
	return res, nil
}
