package batch

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"heatbatch/internal/model"
)

// grouper accumulates valid rows by run tag, remembering first-seen tag order.
type grouper struct {
	logger *zap.Logger
	order  []string
	byTag  map[string][]model.BatchEntry
}

func newGrouper(logger *zap.Logger) *grouper {
	return &grouper{logger: logger, byTag: make(map[string][]model.BatchEntry)}
}

func (g *grouper) add(e model.BatchEntry) {
	if _, ok := g.byTag[e.RunTag]; !ok {
		g.order = append(g.order, e.RunTag)
	}
	g.byTag[e.RunTag] = append(g.byTag[e.RunTag], e)
}

// schedule builds one RunDescriptor per tag, skipping tags that had an invalid row.
func (g *grouper) schedule(skip map[string]bool) *model.Schedule {
	sched := &model.Schedule{Runs: []model.RunDescriptor{}}
	for _, tag := range g.order {
		if skip[tag] {
			g.logger.Debug("Dropping run with invalid rows", zap.String("tag", tag))
			continue
		}
		run, warnings := g.resolve(g.byTag[tag])
		for _, w := range warnings {
			g.logger.Warn("Ignoring value from later row of run",
				zap.String("tag", tag),
				zap.Int("line", w.Line),
				zap.String("detail", w.Message))
		}
		sched.Runs = append(sched.Runs, run)
		sched.Warnings = append(sched.Warnings, warnings...)
	}
	return sched
}

// resolve applies first-occurrence-wins to the single-valued fields of a run.
// Later rows are never merged into the retained values; a disagreement only
// produces a warning.
func (g *grouper) resolve(entries []model.BatchEntry) (model.RunDescriptor, []model.Diagnostic) {
	first := entries[0]
	run := model.RunDescriptor{
		Machine: first.Machine,
		Tag:     first.RunTag,
		Shot:    first.Shot,
		CAD:     first.CAD,
		PFC:     first.PFC,
		Outputs: append([]string(nil), first.Outputs...),
		Entries: append([]model.BatchEntry(nil), entries...),
	}

	var warnings []model.Diagnostic
	warn := func(e model.BatchEntry, field, ignored, kept string) {
		warnings = append(warnings, model.Diagnostic{
			Line:     e.Line,
			Severity: model.SeverityWarning,
			Message: fmt.Sprintf("%s %q ignored for run %q; keeping %q from line %d",
				field, ignored, run.Tag, kept, first.Line),
			Raw: e.Raw,
		})
	}
	for _, e := range entries[1:] {
		if e.Machine != first.Machine {
			warn(e, "MachFlag", e.Machine, first.Machine)
		}
		if e.Shot != first.Shot {
			warn(e, "Shot", fmt.Sprint(e.Shot), fmt.Sprint(first.Shot))
		}
		if e.CAD != first.CAD {
			warn(e, "CAD", e.CAD, first.CAD)
		}
		if e.PFC != first.PFC {
			warn(e, "PFC", e.PFC, first.PFC)
		}
		if !sameSet(e.Outputs, first.Outputs) {
			warn(e, "Output", strings.Join(e.Outputs, ":"), strings.Join(first.Outputs, ":"))
		}
	}

	// Stable so rows with equal timesteps keep file order.
	sort.SliceStable(run.Entries, func(i, j int) bool {
		return run.Entries[i].TimeStep < run.Entries[j].TimeStep
	})
	return run, warnings
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	in := make(map[string]bool, len(a))
	for _, s := range a {
		in[s] = true
	}
	for _, s := range b {
		if !in[s] {
			return false
		}
	}
	return true
}
