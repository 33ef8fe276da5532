// =============================================================================
// BuildingSync Migration Tools - Version Migrator
// =============================================================================
//
// This module rewrites a BuildingSync document produced under one schema
// version so that it conforms to a later one. Each migration path is a fixed,
// ordered sequence of field-level edits; the 2.4 -> 2.5 path is:
//
//   1. Stamp the root version attribute with the target version.
//   2. Optionally insert a provenance comment as the first child of the root.
//   3. Coerce every UsefulLife element to a canonical integer string.
//   4. Write the document (in place, or to a distinct destination).
//
// The tree is fully built and fully mutated in memory before the single write,
// so a read, parse or value failure never leaves a partial output behind.
//
// =============================================================================

package migrator

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/buildingsync/bsync-migrate/internal/config"
	"github.com/buildingsync/bsync-migrate/internal/document"
	"github.com/buildingsync/bsync-migrate/internal/types"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options parameterizes a migration path.
type Options struct {
	// TargetVersion is written to the root version attribute.
	TargetVersion string

	// VersionAttribute is the name of the root attribute holding the version.
	VersionAttribute string

	// Locator selects the elements whose value is coerced.
	Locator document.Locator

	// Rounding selects how fractional values become integers.
	Rounding RoundingMode

	// InsertProvenanceComment adds ProvenanceComment as the first child of
	// the root element.
	InsertProvenanceComment bool

	// ProvenanceComment is the text of the provenance comment.
	ProvenanceComment string
}

// DefaultOptions returns the 2.4 -> 2.5 migration path.
func DefaultOptions() Options {
	return Options{
		TargetVersion:    config.DefaultTargetVersion,
		VersionAttribute: config.DefaultVersionAttribute,
		Locator: document.Locator{
			Space: config.DefaultNamespace,
			Local: config.DefaultElement,
		},
		Rounding:                HalfEven,
		InsertProvenanceComment: true,
		ProvenanceComment:       config.DefaultProvenanceComment,
	}
}

// OptionsFromConfig builds Options from the migration section of the
// configuration file.
func OptionsFromConfig(cfg config.Migration) (Options, error) {
	rounding, err := ParseRoundingMode(cfg.RoundingMode)
	if err != nil {
		return Options{}, err
	}

	return Options{
		TargetVersion:    cfg.TargetVersion,
		VersionAttribute: cfg.VersionAttribute,
		Locator: document.Locator{
			Space: cfg.Namespace,
			Local: cfg.Element,
		},
		Rounding:                rounding,
		InsertProvenanceComment: cfg.ProvenanceCommentEnabled(),
		ProvenanceComment:       cfg.ProvenanceComment,
	}, nil
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of migrating a single document.
type Result struct {
	// Source is the path of the input document.
	Source string

	// Destination is the path the migrated document was written to.
	Destination string

	// PreviousVersion is the version attribute before migration.
	// Empty if the attribute was missing.
	PreviousVersion string

	// Version is the version attribute after migration.
	Version string

	// Matched is the number of elements selected by the locator.
	Matched int

	// Changes lists every value actually rewritten.
	Changes []types.Change

	// ProcessingTime is the time taken to migrate the document.
	ProcessingTime time.Duration
}

// =============================================================================
// MIGRATOR
// =============================================================================

// Migrator applies one migration path to documents.
type Migrator struct {
	options Options
	logger  *zap.Logger
}

// New creates a Migrator. A nil logger discards all output.
func New(options Options, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		options: options,
		logger:  logger,
	}
}

// MigrateFile migrates the document at source and writes the result to
// destination. An empty destination overwrites source.
//
// RETURNS:
//   - A Result describing what changed.
//   - A types.ErrNotFound, types.ErrParse or types.ErrValue error; in every
//     failure case nothing is written.
func (m *Migrator) MigrateFile(source, destination string) (Result, error) {
	startTime := time.Now()
	if destination == "" {
		destination = source
	}
	result := Result{Source: source}

	m.logger.Debug("Migrating document", zap.String("source", source))

	doc, err := document.Load(source)
	if err != nil {
		return result, err
	}

	if err := m.apply(doc, &result); err != nil {
		return result, fmt.Errorf("%s: %w", source, err)
	}

	if err := document.WriteFile(doc, destination, document.WriteOptions{}); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}

	result.Destination = destination
	result.ProcessingTime = time.Since(startTime)

	m.logger.Debug("Wrote migrated document",
		zap.String("destination", destination),
		zap.Int("changes", len(result.Changes)),
	)

	return result, nil
}

// Migrate reads a document from r and writes the migrated document to w.
// name identifies the document in errors and the Result.
func (m *Migrator) Migrate(r io.Reader, w io.Writer, name string) (Result, error) {
	startTime := time.Now()
	result := Result{Source: name, Destination: name}

	doc, err := document.Read(r, name)
	if err != nil {
		return result, err
	}

	if err := m.apply(doc, &result); err != nil {
		return result, fmt.Errorf("%s: %w", name, err)
	}

	// Serialize fully before touching w.
	var buffer bytes.Buffer
	if err := document.Write(doc, &buffer, document.WriteOptions{}); err != nil {
		return result, err
	}
	if _, err := buffer.WriteTo(w); err != nil {
		return result, fmt.Errorf("failed to write output: %w", err)
	}

	result.ProcessingTime = time.Since(startTime)
	return result, nil
}

// Apply migrates doc in memory and returns the value changes made. On error
// doc is left unchanged.
func (m *Migrator) Apply(doc *etree.Document) ([]types.Change, error) {
	var result Result
	err := m.apply(doc, &result)
	return result.Changes, err
}

func (m *Migrator) apply(doc *etree.Document, result *Result) error {
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: document has no root element", types.ErrParse)
	}

	// =========================================================================
	// STEP 1: VALUE VALIDATION
	// =========================================================================

	matches := document.FindAll(root, m.options.Locator)
	canonical, err := m.canonicalize(matches)
	if err != nil {
		return err
	}
	result.Matched = len(matches)

	// =========================================================================
	// STEP 2: VERSION STAMPING
	// =========================================================================

	result.PreviousVersion = root.SelectAttrValue(m.options.VersionAttribute, "")
	m.stampVersion(root)
	result.Version = m.options.TargetVersion

	if m.options.InsertProvenanceComment {
		m.insertProvenanceComment(root)
	}

	// =========================================================================
	// STEP 3: VALUE COERCION
	// =========================================================================

	result.Changes = m.rewrite(matches, canonical)
	return nil
}

// stampVersion sets the version attribute in place, or appends it when missing.
func (m *Migrator) stampVersion(root *etree.Element) {
	root.CreateAttr(m.options.VersionAttribute, m.options.TargetVersion)
}

// insertProvenanceComment makes the provenance comment the first child of
// root, unless an earlier migration already put it there.
func (m *Migrator) insertProvenanceComment(root *etree.Element) {
	if len(root.Child) > 0 {
		if c, ok := root.Child[0].(*etree.Comment); ok && c.Data == m.options.ProvenanceComment {
			return
		}
	}
	root.InsertChildAt(0, etree.NewComment(m.options.ProvenanceComment))
}

// canonicalize returns the canonical text of every element without
// modifying any of them.
func (m *Migrator) canonicalize(elements []*etree.Element) ([]string, error) {
	canonical := make([]string, len(elements))
	for i, el := range elements {
		value, err := Canonicalize(el.Text(), m.options.Rounding)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", document.Path(el), err)
		}
		canonical[i] = value
	}
	return canonical, nil
}

// rewrite replaces the text of each element with its canonical form and
// returns the changes made.
func (m *Migrator) rewrite(elements []*etree.Element, canonical []string) []types.Change {
	var changes []types.Change
	for i, el := range elements {
		old := el.Text()
		if canonical[i] == old {
			continue
		}

		change := types.Change{
			Path: document.Path(el),
			Old:  old,
			New:  canonical[i],
		}
		el.SetText(change.New)
		changes = append(changes, change)

		m.logger.Info(change.String(),
			zap.String("path", change.Path),
			zap.String("old", change.Old),
			zap.String("new", change.New),
		)
	}
	return changes
}
