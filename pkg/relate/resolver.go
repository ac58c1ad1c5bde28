// Package relate discovers which assets a form is linked to. Strategies run
// in confidence order: the project relationship graph first, then embedded
// references in the form's text, then content matching against the asset
// list, with the form's own metadata reference checked unconditionally.
package relate

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sitedocs/formexport/pkg/acc"
	"github.com/sitedocs/formexport/pkg/models"
	"github.com/sitedocs/formexport/pkg/normalize"
)

// Scope carries the per-project data a strategy may consult. Graph and
// Locations are fetched once per batch by the orchestrator; a nil Graph means
// no relationship graph is available and the graph strategy yields nothing.
type Scope struct {
	ProjectID string
	Graph     []models.RelationshipEdge
	Locations map[string]string
	Source    acc.Source
}

// LocationName resolves a location id against the cached lookup, returning
// "" when unknown.
func (s *Scope) LocationName(id string) string {
	if s.Locations == nil {
		return ""
	}
	return s.Locations[id]
}

// Strategy is one way of linking a form to assets. A strategy that fails
// degrades to no results; it never aborts resolution for the form.
type Strategy interface {
	Name() models.MatchStrategy
	Attempt(ctx context.Context, form *models.FormRecord, scope *Scope) ([]models.AssetRelationship, error)
}

// StrategyPolicy pairs a strategy with its fallthrough behavior. By default a
// strategy only runs while no earlier strategy has produced results; AlwaysRun
// marks the exceptions that run regardless.
type StrategyPolicy struct {
	Strategy  Strategy
	AlwaysRun bool
}

// Resolver runs an ordered strategy chain and deduplicates the combined
// results by asset id, first match wins.
type Resolver struct {
	policies []StrategyPolicy
	log      zerolog.Logger
}

// NewResolver creates a resolver with the default strategy chain.
func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{
		policies: []StrategyPolicy{
			{Strategy: &graphStrategy{}},
			{Strategy: &embeddedStrategy{}},
			{Strategy: &contentStrategy{}},
			{Strategy: &metadataStrategy{}, AlwaysRun: true},
		},
		log: log.With().Str("component", "relate").Logger(),
	}
}

// NewResolverWithPolicies creates a resolver with an explicit chain, for
// tests and custom wiring.
func NewResolverWithPolicies(log zerolog.Logger, policies []StrategyPolicy) *Resolver {
	return &Resolver{policies: policies, log: log}
}

// ResolveAssets returns the assets linked to the form, in first-encountered
// order. Strategies past the first hit are skipped unless marked AlwaysRun.
func (r *Resolver) ResolveAssets(ctx context.Context, form *models.FormRecord, scope *Scope) []models.AssetRelationship {
	var combined []models.AssetRelationship
	seen := make(map[string]struct{})
	matched := false

	for _, policy := range r.policies {
		if matched && !policy.AlwaysRun {
			continue
		}
		results, err := policy.Strategy.Attempt(ctx, form, scope)
		if err != nil {
			r.log.Warn().Err(err).
				Str("strategy", string(policy.Strategy.Name())).
				Str("form_id", form.ID).
				Msg("relationship strategy failed, continuing")
			continue
		}
		for _, rel := range results {
			if _, dup := seen[rel.AssetID]; dup {
				continue
			}
			seen[rel.AssetID] = struct{}{}
			combined = append(combined, rel)
		}
		if len(results) > 0 {
			matched = true
		}
	}

	return combined
}

// formText collects the form's flat and custom field labels and text values
// as normalized (label, value) pairs for the text-scanning strategies.
func formText(form *models.FormRecord) []models.NormalizedField {
	ids := form.IDMapping()
	raw := make([]models.RawField, 0, len(form.PDFValues)+len(form.CustomValues))
	raw = append(raw, form.PDFValues...)
	raw = append(raw, form.CustomValues...)

	fields := make([]models.NormalizedField, 0, len(raw))
	for _, rf := range raw {
		fields = append(fields, normalize.Field(rf, ids))
	}
	return fields
}

// searchBlob flattens the form's labels, text values, tabular section names,
// and string-typed cells into one lowercase string for substring matching.
func searchBlob(form *models.FormRecord) string {
	var b strings.Builder
	write := func(s string) {
		b.WriteString(strings.ToLower(s))
		b.WriteByte(' ')
	}
	for _, f := range formText(form) {
		write(f.Label)
		if s, ok := f.Value.(string); ok && s != "" {
			write(s)
		}
	}
	for section, rows := range form.TabularValues {
		write(section)
		for _, row := range rows {
			for _, cell := range row {
				if s, ok := cell.(string); ok && s != "" {
					write(s)
				}
			}
		}
	}
	return b.String()
}
