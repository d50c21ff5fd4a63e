package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gartstein/ymm/internal/registry/auth"
	"github.com/gartstein/ymm/internal/registry/controller"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const testSecret = "secret"

// stubController implements the calls a test needs; any other call panics
// on the nil embedded interface.
type stubController struct {
	RegistryController
	createDocument func(ctx context.Context, actor models.Actor, doc *models.Document) (*models.Document, error)
	listDocuments  func(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	deleteDocument func(ctx context.Context, actor models.Actor, id uuid.UUID) error
	setYearLock    func(ctx context.Context, actor models.Actor, year int, locked bool) (*models.YearLock, error)
	verify         func(ctx context.Context, year int) (*controller.VerifyResult, error)
}

func (s *stubController) CreateDocument(ctx context.Context, actor models.Actor, doc *models.Document) (*models.Document, error) {
	return s.createDocument(ctx, actor, doc)
}

func (s *stubController) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	return s.listDocuments(ctx, filter)
}

func (s *stubController) DeleteDocument(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	return s.deleteDocument(ctx, actor, id)
}

func (s *stubController) SetYearLock(ctx context.Context, actor models.Actor, year int, locked bool) (*models.YearLock, error) {
	return s.setYearLock(ctx, actor, year, locked)
}

func (s *stubController) VerifySequences(ctx context.Context, year int) (*controller.VerifyResult, error) {
	return s.verify(ctx, year)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, ctrl RegistryController, pinger Pinger) *Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	s := NewServer(50061, 18080, true, logger)
	if err := s.RegisterHTTPHandler(NewRegistryHandler(ctrl, logger), pinger, testSecret, time.Second); err != nil {
		t.Fatalf("RegisterHTTPHandler failed: %v", err)
	}
	return s
}

func token(t *testing.T, actor models.Actor) string {
	t.Helper()
	tok, err := auth.GenerateToken(actor, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + tok
}

func serve(s *Server, method, path, body, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return body
}

func TestServer_RegisterHTTPHandler(t *testing.T) {
	s := newTestServer(t, &stubController{}, stubPinger{})
	if s.httpServer.Handler == nil {
		t.Fatal("expected httpServer.Handler to be set")
	}
	if s.httpServer.Addr != s.httpEndpoint {
		t.Errorf("expected httpServer.Addr %q, got %q", s.httpEndpoint, s.httpServer.Addr)
	}

	rec := serve(s, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthz 200, got %d", rec.Code)
	}

	down := newTestServer(t, &stubController{}, stubPinger{err: errors.New("connection refused")})
	rec = serve(down, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected healthz 503, got %d", rec.Code)
	}
}

func TestHTTP_CreateDocument(t *testing.T) {
	customerID := uuid.New()
	var gotActor models.Actor
	ctrl := &stubController{
		createDocument: func(_ context.Context, actor models.Actor, doc *models.Document) (*models.Document, error) {
			gotActor = actor
			doc.ID = uuid.New()
			doc.Serial = 1
			doc.DocNo = "YMM-06105087/GLE/2025-001"
			return doc, nil
		},
	}
	s := newTestServer(t, ctrl, stubPinger{})
	body := fmt.Sprintf(`{"customer_id":%q,"doc_type":"GLE","received_date":"2025-03-14","subject":"Notice"}`, customerID)

	rec := serve(s, http.MethodPost, "/v1/documents", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = serve(s, http.MethodPost, "/v1/documents", body, token(t, models.Actor{Username: "clerk"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc models.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if doc.DocNo != "YMM-06105087/GLE/2025-001" {
		t.Errorf("unexpected doc_no %q", doc.DocNo)
	}
	if doc.CustomerID != customerID || doc.Year != 2025 {
		t.Errorf("request not converted: %+v", doc)
	}
	if gotActor.Username != "clerk" {
		t.Errorf("expected actor clerk, got %q", gotActor.Username)
	}
}

func TestHTTP_RejectsMalformedBodies(t *testing.T) {
	s := newTestServer(t, &stubController{}, stubPinger{})
	clerk := token(t, models.Actor{Username: "clerk"})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"doc_type":`},
		{"unknown field", `{"doc_type":"GLE","colour":"red"}`},
		{"bad doc type", `{"doc_type":"ABC","customer_id":"` + uuid.NewString() + `","received_date":"2025-01-02"}`},
		{"missing received date", `{"doc_type":"GLE","customer_id":"` + uuid.NewString() + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(s, http.MethodPost, "/v1/documents", tt.body, clerk)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decodeError(t, rec); got.Code != int(codes.InvalidArgument) {
				t.Errorf("expected code %d, got %d", codes.InvalidArgument, got.Code)
			}
		})
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   codes.Code
	}{
		{"year locked", fmt.Errorf("%w: 2024 is closed", e.ErrYearLocked), http.StatusBadRequest, codes.FailedPrecondition},
		{"chronology", fmt.Errorf("%w: 2025-03-10 precedes 001", e.ErrChronologyViolation), http.StatusBadRequest, codes.InvalidArgument},
		{"contention", e.ErrCounterContention, http.StatusConflict, codes.Aborted},
		{"duplicate", e.ErrDuplicate, http.StatusConflict, codes.AlreadyExists},
		{"manual override", e.ErrManualOverrideForbidden, http.StatusForbidden, codes.PermissionDenied},
		{"internal", errors.New("boom"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &stubController{
				createDocument: func(context.Context, models.Actor, *models.Document) (*models.Document, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(t, ctrl, stubPinger{})
			body := fmt.Sprintf(`{"customer_id":%q,"doc_type":"GLE","received_date":"2025-03-14"}`, uuid.New())

			rec := serve(s, http.MethodPost, "/v1/documents", body, token(t, models.Actor{Username: "clerk"}))
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			got := decodeError(t, rec)
			if got.Code != int(tt.wantCode) {
				t.Errorf("expected code %d, got %d", tt.wantCode, got.Code)
			}
			if tt.wantCode != codes.Internal && got.Message != tt.err.Error() {
				t.Errorf("expected message %q, got %q", tt.err.Error(), got.Message)
			}
		})
	}
}

func TestHTTP_DeleteDocument(t *testing.T) {
	target := uuid.New()
	ctrl := &stubController{
		deleteDocument: func(_ context.Context, actor models.Actor, id uuid.UUID) error {
			if !actor.IsSuperuser {
				return e.ErrForbidden
			}
			if id != target {
				return e.ErrNotMostRecent
			}
			return nil
		},
	}
	s := newTestServer(t, ctrl, stubPinger{})
	admin := token(t, models.Actor{Username: "admin", IsSuperuser: true})

	rec := serve(s, http.MethodDelete, "/v1/documents/"+target.String(), "", admin)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	rec = serve(s, http.MethodDelete, "/v1/documents/"+uuid.NewString(), "", admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-latest document, got %d", rec.Code)
	}

	rec = serve(s, http.MethodDelete, "/v1/documents/"+target.String(), "", token(t, models.Actor{Username: "clerk"}))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a clerk, got %d", rec.Code)
	}

	rec = serve(s, http.MethodDelete, "/v1/documents/not-a-uuid", "", admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad id, got %d", rec.Code)
	}
}

func TestHTTP_ListDocuments(t *testing.T) {
	customerID := uuid.New()
	var got models.DocumentFilter
	ctrl := &stubController{
		listDocuments: func(_ context.Context, filter models.DocumentFilter) ([]models.Document, error) {
			got = filter
			return nil, nil
		},
	}
	s := newTestServer(t, ctrl, stubPinger{})

	rec := serve(s, http.MethodGet, "/v1/documents?type=GDE&year=2025&include_archived=true&customer_id="+customerID.String(), "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty JSON array, got %s", rec.Body.String())
	}
	if got.DocType != models.DocTypeGDE || got.Year != 2025 || !got.IncludeArchived {
		t.Errorf("unexpected filter %+v", got)
	}
	if got.CustomerID == nil || *got.CustomerID != customerID {
		t.Errorf("customer filter not passed: %v", got.CustomerID)
	}

	rec = serve(s, http.MethodGet, "/v1/documents?year=soon", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad year, got %d", rec.Code)
	}
}

func TestHTTP_YearLockAndVerify(t *testing.T) {
	ctrl := &stubController{
		setYearLock: func(_ context.Context, actor models.Actor, year int, locked bool) (*models.YearLock, error) {
			return &models.YearLock{Year: year, IsLocked: locked, LockedBy: &actor.Username}, nil
		},
		verify: func(_ context.Context, year int) (*controller.VerifyResult, error) {
			if year != 2024 {
				return nil, fmt.Errorf("unexpected year %d", year)
			}
			return &controller.VerifyResult{Scopes: 2, OK: true}, nil
		},
	}
	s := newTestServer(t, ctrl, stubPinger{})

	rec := serve(s, http.MethodPost, "/v1/year-locks", `{"year":2024,"locked":true}`, token(t, models.Actor{Username: "admin", IsSuperuser: true}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var lock models.YearLock
	if err := json.Unmarshal(rec.Body.Bytes(), &lock); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !lock.IsLocked || lock.Year != 2024 || lock.LockedBy == nil || *lock.LockedBy != "admin" {
		t.Errorf("unexpected lock %+v", lock)
	}

	rec = serve(s, http.MethodGet, "/v1/counters/verify?year=2024", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result controller.VerifyResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !result.OK || result.Scopes != 2 || result.Issues == nil {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestHTTP_RequestTimeout(t *testing.T) {
	ctrl := &stubController{
		listDocuments: func(ctx context.Context, _ models.DocumentFilter) ([]models.Document, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				return nil, errors.New("no deadline")
			}
			if time.Until(deadline) > time.Second {
				return nil, errors.New("deadline too far")
			}
			return []models.Document{}, nil
		},
	}
	s := newTestServer(t, ctrl, stubPinger{})

	rec := serve(s, http.MethodGet, "/v1/documents", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, &stubController{}, stubPinger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.WatchHealth(ctx, stubPinger{}, 50*time.Millisecond)

	// Start the server in a separate goroutine.
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	// Give the server a moment to start.
	time.Sleep(200 * time.Millisecond)

	conn, err := grpc.NewClient(
		"localhost"+s.grpcEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to create gRPC client: %v", err)
	}
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 2*time.Second)
	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{})
	checkCancel()
	if err != nil {
		t.Errorf("health check failed: %v", err)
	} else if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.GetStatus())
	}
	conn.Close()

	// Stop the server.
	s.Stop()

	// Wait for Start() to return.
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Server Start returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for server to stop")
	}

	// Verify that the gRPC server has stopped by attempting to listen on the same endpoint.
	lis, err := net.Listen("tcp", s.grpcEndpoint)
	if err != nil {
		t.Errorf("expected to be able to listen on %q after shutdown, but got error: %v", s.grpcEndpoint, err)
	} else {
		lis.Close()
	}
}
