package orchestrator

// #region imports
import "strings"

// #endregion

// #region keywords

var domainKeywords = map[string][]string{
	DomainDebt: {
		"debt", "legacy", "cleanup", "clean up", "dead code", "duplication",
		"deprecated", "workaround", "hack",
	},
	DomainArchitecture: {
		"architecture", "coupling", "cohesion", "module", "layer", "boundary",
		"dependency", "interface", "structure",
	},
	DomainPerformance: {
		"performance", "latency", "throughput", "slow", "fast", "memory",
		"allocation", "cpu", "optimi",
	},
	DomainQuality: {
		"quality", "readab", "test", "bug", "correct", "maintain", "lint",
		"review", "refactor",
	},
}

// classifyOrder breaks ties: the first domain with the highest hit count wins.
var classifyOrder = []string{DomainDebt, DomainArchitecture, DomainPerformance, DomainQuality}

// #endregion

// #region classify

// ClassifyDomain maps a free-text intent to a template domain via keyword
// hits. No hits means DomainDefault.
func ClassifyDomain(intent string) string {
	lower := strings.ToLower(strings.TrimSpace(intent))
	if lower == "" {
		return DomainDefault
	}

	best, bestHits := DomainDefault, 0
	for _, domain := range classifyOrder {
		hits := 0
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = domain, hits
		}
	}
	return best
}

// #endregion
