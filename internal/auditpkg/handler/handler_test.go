package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"creaturegrc/internal/auditpkg"
	id "creaturegrc/pkg/domain"
)

// stubAssembler writes a fixed archive so tests can follow the bytes.
type stubAssembler struct {
	archive []byte
}

func (a *stubAssembler) Assemble(_ context.Context, client, framework string, period id.Period, w io.Writer) (*auditpkg.Manifest, error) {
	if _, err := w.Write(a.archive); err != nil {
		return nil, err
	}
	return &auditpkg.Manifest{
		PackageName: auditpkg.PackageName(client, framework, period),
		Client:      client,
		Framework:   framework,
		Period:      period,
	}, nil
}

// =============================================================================
// Audit Package Handler Test Suite
// =============================================================================
// Justification for unit tests: the on-disk archive copy is a handler-level
// side effect the assembler suite never sees.

type HandlerSuite struct {
	suite.Suite
	assembler *stubAssembler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.assembler = &stubAssembler{archive: []byte("archive bytes")}
}

func (s *HandlerSuite) generate(dir string) *httptest.ResponseRecorder {
	opts := []Option{}
	if dir != "" {
		opts = append(opts, WithArchiveDir(dir))
	}
	router := chi.NewRouter()
	New(s.assembler, slog.New(slog.DiscardHandler), opts...).Register(router)

	body, err := json.Marshal(GenerateRequest{
		Client:      "acme",
		Framework:   "SOC 2",
		PeriodStart: time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		PeriodEnd:   time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
	})
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/packages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestArchiveDirKeepsACopy() {
	dir := s.T().TempDir()

	rec := s.generate(dir)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal([]byte("archive bytes"), rec.Body.Bytes())

	entries, err := os.ReadDir(dir)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	copied, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	s.Require().NoError(err)
	s.Equal([]byte("archive bytes"), copied)
}

func (s *HandlerSuite) TestNoArchiveDirStreamsOnly() {
	rec := s.generate("")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("application/zip", rec.Header().Get("Content-Type"))
}

func (s *HandlerSuite) TestFailedCopyDoesNotFailTheDownload() {
	// A missing directory makes the copy fail; the download still succeeds.
	rec := s.generate(filepath.Join(s.T().TempDir(), "nonexistent"))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal([]byte("archive bytes"), rec.Body.Bytes())
}
