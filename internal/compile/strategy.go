// Package compile turns live document content into a PDF by trying an ordered
// list of rendering strategies.
package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Strategy renders document content into artifact bytes. Render must honour
// ctx; the orchestrator bounds each call with Timeout.
type Strategy interface {
	Name() string
	Timeout() time.Duration
	Render(ctx context.Context, documentID, content string) ([]byte, error)
	Validate(artifact []byte) error
}

// Validator checks a rendered artifact. Some providers answer 200 with an
// empty or HTML body, so success is decided here and not by the transport.
type Validator func([]byte) error

var (
	ErrArtifactTooSmall = errors.New("artifact below minimum size")
	ErrNotPDF           = errors.New("artifact is not a PDF")
)

// MinSize rejects artifacts shorter than n bytes.
func MinSize(n int) Validator {
	return func(b []byte) error {
		if len(b) < n {
			return fmt.Errorf("%w: %d < %d bytes", ErrArtifactTooSmall, len(b), n)
		}
		return nil
	}
}

// PDFSignature requires the %PDF- magic.
func PDFSignature(b []byte) error {
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		return ErrNotPDF
	}
	return nil
}

// PDFStructure parses the artifact and requires at least one page.
func PDFStructure(b []byte) error {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(b), conf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	if ctx.PageCount < 1 {
		return fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	return nil
}

// All runs validators in order and returns the first failure.
func All(vs ...Validator) Validator {
	return func(b []byte) error {
		for _, v := range vs {
			if err := v(b); err != nil {
				return err
			}
		}
		return nil
	}
}

// DefaultValidator is used by the built-in strategies.
func DefaultValidator(minBytes int) Validator {
	return All(MinSize(minBytes), PDFSignature, PDFStructure)
}
