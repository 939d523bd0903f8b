package compile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidators(t *testing.T) {
	require.ErrorIs(t, MinSize(10)([]byte("short")), ErrArtifactTooSmall)
	require.NoError(t, MinSize(3)([]byte("long enough")))
	require.ErrorIs(t, PDFSignature([]byte("<html>")), ErrNotPDF)
	require.NoError(t, PDFSignature([]byte("%PDF-1.7")))
	require.ErrorIs(t, PDFStructure([]byte("%PDF-1.7 but not really")), ErrNotPDF)

	v := All(MinSize(4), PDFSignature)
	require.ErrorIs(t, v([]byte("%P")), ErrArtifactTooSmall)
	require.ErrorIs(t, v([]byte("GIF89a")), ErrNotPDF)
}

func TestFileStoreWritesDocumentPDF(t *testing.T) {
	dir := t.TempDir()
	fs := &FileStore{Dir: filepath.Join(dir, "downloads")}
	ref, err := fs.Put(context.Background(), "doc-1", "job-1", goodPDF)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/doc-1.pdf", ref)

	b, err := os.ReadFile(filepath.Join(dir, "downloads", "doc-1.pdf"))
	require.NoError(t, err)
	assert.Equal(t, goodPDF, b)

	entries, err := os.ReadDir(filepath.Join(dir, "downloads"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemoteHTTPSendsContent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("text")
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(goodPDF)
	}))
	defer srv.Close()

	r := &RemoteHTTP{Endpoint: srv.URL + "/compile", Limit: time.Second}
	b, err := r.Render(context.Background(), "doc", `\section{Hi}`)
	require.NoError(t, err)
	assert.Equal(t, goodPDF, b)
	assert.Equal(t, `\section{Hi}`, got)
	assert.NoError(t, r.Validate(b))
	assert.Contains(t, r.Name(), "remote:127.0.0.1")
}

func TestRemoteHTTPRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := &RemoteHTTP{Endpoint: srv.URL, Limit: time.Second}
	_, err := r.Render(context.Background(), "doc", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestLocalLatexRunsBinaryInWorkDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for pdflatex")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-pdflatex")
	script := "#!/bin/sh\n" +
		"for a in \"$@\"; do case \"$a\" in -output-directory=*) out=\"${a#-output-directory=}\";; esac; done\n" +
		"printf '%%PDF-1.4 fake' > \"$out/document.pdf\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	l := &LocalLatex{Binary: bin, TempDir: filepath.Join(dir, "temp"), Limit: 5 * time.Second}
	b, err := l.Render(context.Background(), "doc", `\documentclass{article}`)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(b))

	// work directories are removed afterwards
	entries, err := os.ReadDir(filepath.Join(dir, "temp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalLatexMissingBinary(t *testing.T) {
	l := &LocalLatex{Binary: filepath.Join(t.TempDir(), "nope"), TempDir: t.TempDir(), Limit: time.Second}
	_, err := l.Render(context.Background(), "doc", "x")
	require.Error(t, err)
}
