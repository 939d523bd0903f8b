package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/collab/internal/access"
	"github.com/gogotex/gogotex/backend/collab/internal/collab"
	"github.com/gogotex/gogotex/backend/collab/internal/compile"
	"github.com/gogotex/gogotex/backend/collab/internal/document"
	"github.com/gogotex/gogotex/backend/collab/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab/internal/session"
	"github.com/gogotex/gogotex/backend/collab/internal/tickets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubStrategy struct{}

func (stubStrategy) Name() string            { return "stub" }
func (stubStrategy) Timeout() time.Duration  { return time.Second }
func (stubStrategy) Validate(b []byte) error { return nil }
func (stubStrategy) Render(context.Context, string, string) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func newRouter(t *testing.T) (*gin.Engine, *repository.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryRepo()
	issuer := tickets.NewIssuer("secret", time.Minute, nil)
	gate := access.NewGate(store, bcrypt.MinCost, issuer)
	reg := session.NewRegistry(store, session.Options{DebounceDelay: time.Hour})
	orch, err := compile.NewOrchestrator(reg, []compile.Strategy{stubStrategy{}}, &compile.FileStore{Dir: t.TempDir()}, nil, 0)
	require.NoError(t, err)
	g := gin.New()
	RegisterDocumentRoutes(g, collab.NewService(store, gate, issuer, reg, orch))
	return g, store
}

func do(g *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	g.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCreateAndGetDocument(t *testing.T) {
	g, _ := newRouter(t)

	w := do(g, http.MethodPost, "/api/documents", `{"title":"paper.tex"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	cr := decode(t, w)
	id, _ := cr["documentId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "paper.tex", cr["title"])

	w = do(g, http.MethodGet, "/api/documents/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, false, got["protected"])
	assert.NotContains(t, got, "content")

	w = do(g, http.MethodGet, "/api/documents/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(g, http.MethodPost, "/api/documents", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinAndPasswordChange(t *testing.T) {
	g, _ := newRouter(t)
	w := do(g, http.MethodPost, "/api/documents", `{"title":"t","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["documentId"].(string)

	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodPost, "/api/documents/"+id+"/join", `{"password":"bad"}`, "").Code)
	assert.Equal(t, http.StatusNotFound, do(g, http.MethodPost, "/api/documents/missing/join", `{}`, "").Code)

	w = do(g, http.MethodPost, "/api/documents/"+id+"/join", `{"password":"pw"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	joined := decode(t, w)
	ticket := joined["ticket"].(string)
	assert.Equal(t, float64(60), joined["expiresIn"])

	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodGet, "/api/documents/"+id+"/versions", "", "").Code)
	assert.Equal(t, http.StatusOK, do(g, http.MethodGet, "/api/documents/"+id+"/versions", "", ticket).Code)

	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodPut, "/api/documents/"+id+"/password", `{"currentPassword":"bad","newPassword":""}`, "").Code)
	assert.Equal(t, http.StatusNoContent, do(g, http.MethodPut, "/api/documents/"+id+"/password", `{"currentPassword":"pw","newPassword":""}`, "").Code)

	// unprotected now: no ticket needed, no password needed
	assert.Equal(t, http.StatusOK, do(g, http.MethodGet, "/api/documents/"+id+"/versions", "", "").Code)
	assert.Equal(t, http.StatusOK, do(g, http.MethodPost, "/api/documents/"+id+"/join", "", "").Code)
}

func TestVersionsEndpoints(t *testing.T) {
	g, store := newRouter(t)
	ctx := context.Background()
	d := &document.Document{Title: "t"}
	require.NoError(t, store.CreateDocument(ctx, d))
	for _, c := range []string{"one", "two", "three"} {
		_, err := store.AppendVersion(ctx, &document.Version{DocumentID: d.ID, Content: c, Description: "Applied suggestion"})
		require.NoError(t, err)
	}

	w := do(g, http.MethodGet, "/api/documents/"+d.ID+"/versions?limit=2", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.NotContains(t, list[0], "content")

	w = do(g, http.MethodGet, "/api/versions/"+list[0]["id"].(string), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "three", decode(t, w)["content"])

	assert.Equal(t, http.StatusBadRequest, do(g, http.MethodGet, "/api/documents/"+d.ID+"/versions?limit=x", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(g, http.MethodGet, "/api/versions/nope", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(g, http.MethodGet, "/api/compile/nope", "", "").Code)
}

func TestProtectedVersionDetailNeedsTicket(t *testing.T) {
	g, store := newRouter(t)
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	d := &document.Document{Title: "t", CredentialHash: string(hash)}
	require.NoError(t, store.CreateDocument(ctx, d))
	vid, err := store.AppendVersion(ctx, &document.Version{DocumentID: d.ID, Content: "secret"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodGet, "/api/versions/"+vid, "", "").Code)

	w := do(g, http.MethodPost, "/api/documents/"+d.ID+"/join", `{"password":"pw"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	ticket := decode(t, w)["ticket"].(string)
	assert.Equal(t, http.StatusOK, do(g, http.MethodGet, "/api/versions/"+vid, "", ticket).Code)
}

type discardSink struct{}

func (discardSink) Deliver(session.Event) error { return nil }
func (discardSink) Close() error                { return nil }

func TestCompileJobOfProtectedDocumentNeedsTicket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := repository.NewMemoryRepo()
	issuer := tickets.NewIssuer("secret", time.Minute, nil)
	gate := access.NewGate(store, bcrypt.MinCost, issuer)
	reg := session.NewRegistry(store, session.Options{DebounceDelay: time.Hour})
	orch, err := compile.NewOrchestrator(reg, []compile.Strategy{stubStrategy{}}, &compile.FileStore{Dir: t.TempDir()}, nil, 0)
	require.NoError(t, err)
	svc := collab.NewService(store, gate, issuer, reg, orch)
	g := gin.New()
	RegisterDocumentRoutes(g, svc)

	d, err := svc.CreateDocument(ctx, "secret paper", "pw")
	require.NoError(t, err)
	p := session.NewParticipant("p1", discardSink{}, 0)
	_, err = svc.JoinDocument(ctx, d.ID, "pw", p)
	require.NoError(t, err)
	job, err := svc.RequestCompile(ctx, d.ID, "p1")
	require.NoError(t, err)

	path := "/api/compile/" + job.ID
	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodGet, path, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(g, http.MethodGet, path, "", "forged").Code)

	ticket, _, err := svc.IssueTicket(ctx, d.ID, "pw")
	require.NoError(t, err)
	w := do(g, http.MethodGet, path, "", ticket)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])
}
