package orchestrator

// #region imports
import (
	"fmt"
	"slices"

	"github.com/danielpatrickdp/adaptive-state/evolution-engine/internal/operators"
)

// #endregion

// #region templates

// Template is the three-phase pipeline generated for a domain.
type Template struct {
	Analysis   []string
	Domain     []string
	Governance []string
}

// Pipeline concatenates the phases.
func (t Template) Pipeline() []string {
	out := make([]string, 0, len(t.Analysis)+len(t.Domain)+len(t.Governance))
	out = append(out, t.Analysis...)
	out = append(out, t.Domain...)
	return append(out, t.Governance...)
}

// Domain tags with a dedicated template.
const (
	DomainQuality      = "quality"
	DomainDebt         = "debt"
	DomainArchitecture = "architecture"
	DomainPerformance  = "performance"
	DomainDefault      = "default"
)

// Templates maps a domain tag to its pipeline.
var Templates = map[string]Template{
	DomainQuality: {
		Analysis:   []string{operators.IDObserve, operators.IDAssess},
		Domain:     []string{operators.IDRefine, operators.IDStabilize},
		Governance: []string{operators.IDAudit},
	},
	DomainDebt: {
		Analysis:   []string{operators.IDObserve, operators.IDAssess},
		Domain:     []string{operators.IDReduceDebt, operators.IDSimplify},
		Governance: []string{operators.IDAudit},
	},
	DomainArchitecture: {
		Analysis:   []string{operators.IDObserve},
		Domain:     []string{operators.IDAlign, operators.IDStabilize},
		Governance: []string{operators.IDAudit},
	},
	DomainPerformance: {
		Analysis:   []string{operators.IDObserve},
		Domain:     []string{operators.IDSimplify, operators.IDRefine},
		Governance: []string{operators.IDAudit},
	},
	DomainDefault: {
		Analysis:   []string{operators.IDObserve, operators.IDAssess},
		Domain:     nil,
		Governance: []string{operators.IDAudit},
	},
}

// #endregion

// #region generate

// GeneratePipeline looks up the template for req's domain. A domain with no
// template falls back to the one ClassifyDomain picks from the intent, then
// to the default. Warnings come from CheckOrdering.
func (o *Orchestrator) GeneratePipeline(req SynthesisRequest) ([]string, []string) {
	domain := req.Context.Domain
	tmpl, ok := Templates[domain]
	if !ok {
		domain = ClassifyDomain(req.Intent)
		tmpl = Templates[domain]
	}
	ids := tmpl.Pipeline()
	return ids, o.CheckOrdering(ids)
}

// #endregion

// #region check-ordering

// CheckOrdering reports declared dependencies that ids can never satisfy:
// the dependency is missing from the pipeline or only runs after the
// dependent. Unknown ids are reported too.
func (o *Orchestrator) CheckOrdering(ids []string) []string {
	var warnings []string
	for pos, id := range ids {
		entry, ok := o.registry.Get(id)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("operator %q is not registered", id))
			continue
		}
		for _, dep := range entry.Descriptor.Dependencies {
			at := slices.Index(ids[:pos], dep)
			if at >= 0 {
				continue
			}
			if slices.Contains(ids[pos+1:], dep) {
				warnings = append(warnings, fmt.Sprintf("operator %q runs before its dependency %q", id, dep))
			} else {
				warnings = append(warnings, fmt.Sprintf("operator %q depends on %q, which is not in the pipeline", id, dep))
			}
		}
	}
	return warnings
}

// #endregion
