// Package batch reads batch files: the comma separated run lists that drive
// time-varying heat flux simulations.
package batch

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"heatbatch/internal/model"
	"heatbatch/internal/registry"
)

// Parser validates batch files against a registry of machines and output kinds.
type Parser struct {
	reg      *registry.Registry
	logger   *zap.Logger
	failFast bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets the logger used for ignored-value warnings.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFailFast makes Parse stop at the first invalid line instead of
// collecting every error in the file.
func WithFailFast(on bool) Option {
	return func(p *Parser) { p.failFast = on }
}

// NewParser creates a Parser. A nil registry means registry.Default().
func NewParser(reg *registry.Registry, opts ...Option) *Parser {
	if reg == nil {
		reg = registry.Default()
	}
	p := &Parser{reg: reg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the registry rows are validated against.
func (p *Parser) Registry() *registry.Registry {
	return p.reg
}

// Parse reads the batch file at path.
//
// When rows fail validation Parse returns an *ErrorList together with a
// schedule holding only the runs whose rows were all valid, so the caller can
// choose between aborting and running what is left. A header error or an I/O
// error returns a nil schedule.
func (p *Parser) Parse(path string) (*model.Schedule, error) {
	abs, err := filepath.Abs(model.ExpandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	sched, err := p.ParseReader(abs, f)
	if sched != nil {
		sched.Source = abs
		sched.Dir = filepath.Dir(abs)
	}
	return sched, err
}

// ParseReader parses batch rows from r. name only labels errors.
func (p *Parser) ParseReader(name string, r io.Reader) (*model.Schedule, error) {
	errs := &ErrorList{Source: name}
	g := newGrouper(p.logger)
	tainted := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	lineNum := 0
	sawHeader := false
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if !sawHeader {
			if err := checkHeader(lineNum, line); err != nil {
				// Rows cannot be interpreted against an unknown column layout.
				return nil, err
			}
			sawHeader = true
			continue
		}

		entry, lineErrs := p.parseRow(lineNum, line)
		if len(lineErrs) > 0 {
			if p.failFast {
				return nil, lineErrs[0]
			}
			errs.Errors = append(errs.Errors, lineErrs...)
			if entry.RunTag != "" {
				tainted[entry.RunTag] = true
			}
			continue
		}
		g.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	sched := g.schedule(tainted)
	if len(errs.Errors) > 0 {
		p.logger.Warn("Batch file has invalid rows",
			zap.String("source", name),
			zap.Int("errors", len(errs.Errors)),
			zap.Int("runs_kept", len(sched.Runs)))
		return sched, errs
	}
	p.logger.Debug("Batch file parsed",
		zap.String("source", name),
		zap.Int("runs", len(sched.Runs)),
		zap.Int("timesteps", sched.TimestepCount()))
	return sched, nil
}

func checkHeader(lineNum int, line string) *ParseError {
	fields := splitFields(line)
	want := strings.Join(model.Header, ", ")
	if len(fields) != len(model.Header) {
		return &ParseError{
			Kind:   HeaderError,
			Line:   lineNum,
			Raw:    line,
			Reason: fmt.Sprintf("expected header %q, got %d columns", want, len(fields)),
		}
	}
	for i, f := range fields {
		if f != model.Header[i] {
			return &ParseError{
				Kind:   HeaderError,
				Line:   lineNum,
				Raw:    line,
				Reason: fmt.Sprintf("column %d is %q, expected %q (header must be %q)", i+1, f, model.Header[i], want),
			}
		}
	}
	return nil
}

// parseRow validates one data row. The returned entry carries whatever
// fields could be read, so RunTag is set even when validation fails.
func (p *Parser) parseRow(lineNum int, line string) (model.BatchEntry, []*ParseError) {
	fields := splitFields(line)
	entry := model.BatchEntry{Line: lineNum, Raw: line}
	if len(fields) > model.ColTag {
		entry.RunTag = fields[model.ColTag]
	}

	fail := func(kind Kind, format string, args ...any) *ParseError {
		return &ParseError{Kind: kind, Line: lineNum, Raw: line, Reason: fmt.Sprintf(format, args...)}
	}

	if len(fields) != model.NumColumns {
		return entry, []*ParseError{fail(FieldCountError, "expected %d fields, got %d", model.NumColumns, len(fields))}
	}

	var errs []*ParseError

	entry.Machine = fields[model.ColMachine]
	if !p.reg.IsMachine(entry.Machine) {
		errs = append(errs, fail(UnknownMachineError, "machine %q is not one of %s", entry.Machine, strings.Join(p.reg.Machines, ", ")))
	}

	if entry.RunTag == "" {
		errs = append(errs, fail(MissingValueError, "Tag is empty"))
	}

	shot, err := strconv.Atoi(fields[model.ColShot])
	switch {
	case err != nil:
		errs = append(errs, fail(NumericFormatError, "Shot %q is not an integer", fields[model.ColShot]))
	case shot < 0:
		errs = append(errs, fail(NumericFormatError, "Shot %d is negative", shot))
	default:
		entry.Shot = shot
	}

	ts, err := strconv.ParseFloat(fields[model.ColTimeStep], 64)
	switch {
	case err != nil || math.IsNaN(ts) || math.IsInf(ts, 0):
		errs = append(errs, fail(NumericFormatError, "TimeStep %q is not a number", fields[model.ColTimeStep]))
	case ts < 0:
		errs = append(errs, fail(NumericFormatError, "TimeStep %s is negative", fields[model.ColTimeStep]))
	default:
		entry.TimeStep = ts
	}

	entry.GEQDSK = fields[model.ColGEQDSK]
	entry.CAD = fields[model.ColCAD]
	entry.PFC = fields[model.ColPFC]
	entry.Input = fields[model.ColInput]
	for _, ref := range []struct{ name, value string }{
		{"GEQDSK", entry.GEQDSK},
		{"CAD", entry.CAD},
		{"PFC", entry.PFC},
		{"Input", entry.Input},
	} {
		if ref.value == "" {
			errs = append(errs, fail(MissingValueError, "%s is empty", ref.name))
		}
	}

	outputs, outErrs := p.parseOutputs(fields[model.ColOutput])
	for _, reason := range outErrs {
		errs = append(errs, fail(UnknownOutputTokenError, "%s", reason))
	}
	entry.Outputs = outputs

	return entry, errs
}

// parseOutputs splits the Output column on ':' and checks every token.
// Repeated tokens collapse onto their first occurrence.
func (p *Parser) parseOutputs(field string) ([]string, []string) {
	var outputs, reasons []string
	seen := make(map[string]bool)
	for _, tok := range strings.Split(field, ":") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
			reasons = append(reasons, fmt.Sprintf("empty output token in %q", field))
		case !p.reg.IsOutput(tok):
			reasons = append(reasons, fmt.Sprintf("output %q is not one of %s", tok, strings.Join(p.reg.OutputTags(), ", ")))
		case !seen[tok]:
			seen[tok] = true
			outputs = append(outputs, tok)
		}
	}
	return outputs, reasons
}

func splitFields(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
