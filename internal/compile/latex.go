package compile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalLatex runs pdflatex on the host in a throwaway directory under TempDir.
type LocalLatex struct {
	Binary    string
	TempDir   string
	Limit     time.Duration
	Validator Validator
}

func (l *LocalLatex) Name() string           { return "pdflatex" }
func (l *LocalLatex) Timeout() time.Duration { return l.Limit }

func (l *LocalLatex) Validate(b []byte) error {
	if l.Validator == nil {
		return PDFSignature(b)
	}
	return l.Validator(b)
}

func (l *LocalLatex) Render(ctx context.Context, documentID, content string) ([]byte, error) {
	if err := os.MkdirAll(l.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(l.TempDir, documentID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	tex := filepath.Join(dir, "document.tex")
	if err := os.WriteFile(tex, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write source: %w", err)
	}

	bin := l.Binary
	if bin == "" {
		bin = "pdflatex"
	}
	cmd := exec.CommandContext(ctx, bin, "-interaction=nonstopmode", "-output-directory="+dir, tex)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	// nonstopmode exits non-zero on recoverable errors but may still produce a PDF
	pdf, err := os.ReadFile(filepath.Join(dir, "document.pdf"))
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("pdflatex: %w: %s", runErr, tail(out.Bytes(), 512))
		}
		return nil, fmt.Errorf("pdflatex produced no output: %w", err)
	}
	return pdf, nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
