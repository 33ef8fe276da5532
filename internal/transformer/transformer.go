// =============================================================================
// BuildingSync Migration Tools - Structural Transformer
// =============================================================================
//
// This module applies a compiled stylesheet to BuildingSync documents, one at
// a time or in batch. The stylesheet itself is a black box: anything with an
// Apply method can drive the transformer, which is how the tests substitute
// an in-memory stylesheet for the XSLT engine.
//
// BATCH PROCESSING:
//   Paths are processed strictly one after the other, in the order the Source
//   yields them. A failure is recorded in that path's Result and the batch
//   moves on; nothing aborts the remaining files.
//
// OUTPUT:
//   Results are pretty-printed with two-space indentation and an XML
//   declaration, then written in a single call so that a failed transform
//   never leaves a partial output file.
//
// =============================================================================

package transformer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/beevik/etree"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/buildingsync/bsync-migrate/internal/document"
	"github.com/buildingsync/bsync-migrate/pkg/utils"
)

// Stylesheet transforms a whole document into a new one. It must not modify
// its input and must be safe to apply to any number of documents.
type Stylesheet interface {
	Apply(doc *etree.Document) (*etree.Document, error)
}

// writeOptioner is implemented by stylesheets that declare how their results
// are serialized.
type writeOptioner interface {
	WriteOptions() document.WriteOptions
}

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of transforming a single file.
type Result struct {
	// Source is the path of the input document.
	Source string

	// Output is the path the result was written to.
	// This is empty if the transform failed.
	Output string

	// Err is the failure, nil on success.
	Err error

	// ProcessingTime is the time taken to transform the file.
	ProcessingTime time.Duration
}

// Succeeded reports whether the file was transformed.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Summarize counts the successful and failed results.
func Summarize(results []Result) (succeeded, failed int) {
	counts := lo.CountValuesBy(results, Result.Succeeded)
	return counts[true], counts[false]
}

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer applies one stylesheet to documents.
type Transformer struct {
	sheet   Stylesheet
	options document.WriteOptions
	logger  *zap.Logger
}

// New creates a Transformer. A nil logger discards all output.
func New(sheet Stylesheet, logger *zap.Logger) *Transformer {
	if logger == nil {
		logger = zap.NewNop()
	}

	options := document.PrettyWriteOptions()
	if o, ok := sheet.(writeOptioner); ok {
		options = o.WriteOptions()
	}

	return &Transformer{
		sheet:   sheet,
		options: options,
		logger:  logger,
	}
}

// Transform applies the stylesheet to the document at xmlPath and writes the
// result to outputPath, replacing any existing file.
//
// RETURNS:
//   - A types.ErrNotFound error if xmlPath cannot be read.
//   - A types.ErrParse error if it is not well-formed XML.
//   - The stylesheet's error (types.ErrTransform for the XSLT engine).
//   - An error if outputPath is xmlPath itself.
func (t *Transformer) Transform(xmlPath, outputPath string) error {
	if utils.SamePath(xmlPath, outputPath) {
		return fmt.Errorf("%s: refusing to overwrite the source document", outputPath)
	}

	doc, err := document.Load(xmlPath)
	if err != nil {
		return err
	}

	result, err := t.sheet.Apply(doc)
	if err != nil {
		return err
	}

	if err := document.WriteFile(result, outputPath, t.options); err != nil {
		return fmt.Errorf("%s: %w", outputPath, err)
	}

	t.logger.Debug("Wrote transformed document",
		zap.String("source", xmlPath),
		zap.String("output", outputPath),
	)
	return nil
}

// TransformReader reads a document from r and writes the result to w.
// Nothing is written to w unless the transform succeeds.
func (t *Transformer) TransformReader(r io.Reader, w io.Writer, name string) error {
	doc, err := document.Read(r, name)
	if err != nil {
		return err
	}

	result, err := t.sheet.Apply(doc)
	if err != nil {
		return err
	}

	var buffer bytes.Buffer
	if err := document.Write(result, &buffer, t.options); err != nil {
		return err
	}
	if _, err := buffer.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// TransformAll transforms every path of src into outDir, keeping each
// source's base name. An empty outDir means the working directory.
//
// RETURNS:
//   - One Result per path, in the order src yields them.
func (t *Transformer) TransformAll(src Source, outDir string) []Result {
	ensureErr := utils.NewFileManager("", outDir).EnsureOutputDir()

	var results []Result
	for path := range src.Paths() {
		startTime := time.Now()
		result := Result{Source: path}

		t.logger.Info("Working on " + path)

		output := utils.OutputPathFor(path, outDir)
		err := ensureErr
		if err == nil {
			err = t.Transform(path, output)
		}

		if err != nil {
			result.Err = err
			t.logger.Warn("Transform failed", zap.String("source", path), zap.Error(err))
		} else {
			result.Output = output
		}
		result.ProcessingTime = time.Since(startTime)

		results = append(results, result)
	}

	succeeded, failed := Summarize(results)
	t.logger.Debug("Batch complete",
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
	)
	return results
}
