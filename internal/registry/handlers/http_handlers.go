package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gartstein/ymm/internal/registry/auth"
	"github.com/gartstein/ymm/internal/registry/controller"
	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RegistryController defines the business logic interface the HTTP
// handlers invoke.
type RegistryController interface {
	CreateCustomer(ctx context.Context, actor models.Actor, customer *models.Customer) (*models.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, actor models.Actor, update *models.CustomerUpdate) (*models.Customer, error)
	ArchiveCustomer(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Customer, error)

	CreateDocument(ctx context.Context, actor models.Actor, doc *models.Document) (*models.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	UpdateDocument(ctx context.Context, actor models.Actor, update *models.DocumentUpdate) (*models.Document, error)
	ArchiveDocument(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Document, error)
	DeleteDocument(ctx context.Context, actor models.Actor, id uuid.UUID) error

	CreateReport(ctx context.Context, actor models.Actor, report *models.Report) (*models.Report, error)
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	UpdateReport(ctx context.Context, actor models.Actor, update *models.ReportUpdate) (*models.Report, error)
	ArchiveReport(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error)
	DeleteReport(ctx context.Context, actor models.Actor, id uuid.UUID) error

	CreateContract(ctx context.Context, actor models.Actor, contract *models.Contract) (*models.Contract, error)
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListContracts(ctx context.Context, filter models.ContractFilter) ([]models.Contract, error)
	UpdateContract(ctx context.Context, actor models.Actor, update *models.ContractUpdate) (*models.Contract, error)
	ArchiveContract(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Contract, error)
	SyncContractStatus(ctx context.Context, id uuid.UUID) (*models.Contract, error)

	ListCounters(ctx context.Context, year int) (*db.CounterSnapshot, error)
	AdjustCounter(ctx context.Context, actor models.Actor, adj controller.CounterAdjustment) (*controller.CounterAdjustment, error)
	VerifySequences(ctx context.Context, year int) (*controller.VerifyResult, error)

	ListYearLocks(ctx context.Context) ([]models.YearLock, error)
	SetYearLock(ctx context.Context, actor models.Actor, year int, locked bool) (*models.YearLock, error)

	GetSettings(ctx context.Context) (*models.AppSetting, error)
	UpdateSettings(ctx context.Context, actor models.Actor, update controller.SettingsUpdate) (*models.AppSetting, error)

	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// RegistryHandler serves the JSON API on a gateway ServeMux.
type RegistryHandler struct {
	svc    RegistryController
	mux    *runtime.ServeMux
	logger *zap.Logger
}

// NewRegistryHandler constructs a RegistryHandler with the given service and logger.
func NewRegistryHandler(svc RegistryController, logger *zap.Logger) *RegistryHandler {
	return &RegistryHandler{
		svc:    svc,
		logger: logger.Named("http_handler"),
	}
}

type route struct {
	method  string
	pattern string
	handler runtime.HandlerFunc
}

func (h *RegistryHandler) routes() []route {
	return []route{
		{http.MethodPost, "/v1/customers", h.createCustomer},
		{http.MethodGet, "/v1/customers", h.listCustomers},
		{http.MethodGet, "/v1/customers/{id}", h.getCustomer},
		{http.MethodPatch, "/v1/customers/{id}", h.updateCustomer},
		{http.MethodPost, "/v1/customers/{id}/archive", h.archiveCustomer},

		{http.MethodPost, "/v1/documents", h.createDocument},
		{http.MethodGet, "/v1/documents", h.listDocuments},
		{http.MethodGet, "/v1/documents/{id}", h.getDocument},
		{http.MethodPatch, "/v1/documents/{id}", h.updateDocument},
		{http.MethodDelete, "/v1/documents/{id}", h.deleteDocument},
		{http.MethodPost, "/v1/documents/{id}/archive", h.archiveDocument},

		{http.MethodPost, "/v1/reports", h.createReport},
		{http.MethodGet, "/v1/reports", h.listReports},
		{http.MethodGet, "/v1/reports/{id}", h.getReport},
		{http.MethodPatch, "/v1/reports/{id}", h.updateReport},
		{http.MethodDelete, "/v1/reports/{id}", h.deleteReport},
		{http.MethodPost, "/v1/reports/{id}/archive", h.archiveReport},

		{http.MethodPost, "/v1/contracts", h.createContract},
		{http.MethodGet, "/v1/contracts", h.listContracts},
		{http.MethodGet, "/v1/contracts/{id}", h.getContract},
		{http.MethodPatch, "/v1/contracts/{id}", h.updateContract},
		{http.MethodPost, "/v1/contracts/{id}/archive", h.archiveContract},
		{http.MethodPost, "/v1/contracts/{id}/sync", h.syncContract},

		{http.MethodGet, "/v1/counters", h.listCounters},
		{http.MethodPost, "/v1/counters", h.adjustCounter},
		{http.MethodGet, "/v1/counters/verify", h.verifyCounters},

		{http.MethodGet, "/v1/year-locks", h.listYearLocks},
		{http.MethodPost, "/v1/year-locks", h.setYearLock},

		{http.MethodGet, "/v1/settings", h.getSettings},
		{http.MethodPost, "/v1/settings", h.updateSettings},

		{http.MethodGet, "/v1/audit-logs", h.listAuditLogs},
	}
}

// Register binds every API route on mux.
func (h *RegistryHandler) Register(mux *runtime.ServeMux) error {
	h.mux = mux
	for _, rt := range h.routes() {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", e.ErrInvalidInput, err)
	}
	return validateRequest(dst)
}

func (h *RegistryHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func pathID(params map[string]string, what string) (uuid.UUID, error) {
	return parseID(params["id"], what)
}

// Customers

func (h *RegistryHandler) createCustomer(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req customerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.CreateCustomer(r.Context(), actorFrom(r), req.toModel())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, customer)
}

func (h *RegistryHandler) getCustomer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "customer")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customer)
}

func (h *RegistryHandler) listCustomers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customers, err := h.svc.ListCustomers(r.Context(), models.CustomerFilter{
		Search:          q.Search,
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	h.writeJSON(w, http.StatusOK, customers)
}

func (h *RegistryHandler) updateCustomer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "customer")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req customerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.UpdateCustomer(r.Context(), actorFrom(r), req.toUpdate(id))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customer)
}

func (h *RegistryHandler) archiveCustomer(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "customer")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	customer, err := h.svc.ArchiveCustomer(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, customer)
}

// Documents

func (h *RegistryHandler) createDocument(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req documentRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := req.toModel()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateDocument(r.Context(), actorFrom(r), doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) getDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *RegistryHandler) listDocuments(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docs, err := h.svc.ListDocuments(r.Context(), models.DocumentFilter{
		CustomerID:      q.customerID(),
		ContractID:      q.contractID(),
		DocType:         models.DocType(q.Type),
		Year:            q.Year,
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	h.writeJSON(w, http.StatusOK, docs)
}

func (h *RegistryHandler) updateDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req documentRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	update, err := req.toUpdate(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.UpdateDocument(r.Context(), actorFrom(r), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *RegistryHandler) archiveDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.svc.ArchiveDocument(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *RegistryHandler) deleteDocument(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "document")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), actorFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reports

func (h *RegistryHandler) createReport(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req reportRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := req.toModel()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateReport(r.Context(), actorFrom(r), report)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) getReport(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "report")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *RegistryHandler) listReports(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reports, err := h.svc.ListReports(r.Context(), models.ReportFilter{
		CustomerID:      q.customerID(),
		ContractID:      q.contractID(),
		ReportType:      models.ReportType(q.Type),
		Year:            q.Year,
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []models.Report{}
	}
	h.writeJSON(w, http.StatusOK, reports)
}

func (h *RegistryHandler) updateReport(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "report")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reportRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	update, err := req.toUpdate(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.UpdateReport(r.Context(), actorFrom(r), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *RegistryHandler) archiveReport(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "report")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.svc.ArchiveReport(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *RegistryHandler) deleteReport(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "report")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteReport(r.Context(), actorFrom(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Contracts

func (h *RegistryHandler) createContract(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req contractRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	contract, err := req.toModel()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateContract(r.Context(), actorFrom(r), contract)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *RegistryHandler) getContract(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "contract")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contract, err := h.svc.GetContract(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

func (h *RegistryHandler) listContracts(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contracts, err := h.svc.ListContracts(r.Context(), models.ContractFilter{
		CustomerID:      q.customerID(),
		Status:          models.ContractStatus(q.Status),
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if contracts == nil {
		contracts = []models.Contract{}
	}
	h.writeJSON(w, http.StatusOK, contracts)
}

func (h *RegistryHandler) updateContract(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "contract")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req contractRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	update, err := req.toUpdate(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contract, err := h.svc.UpdateContract(r.Context(), actorFrom(r), update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

func (h *RegistryHandler) archiveContract(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "contract")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	contract, err := h.svc.ArchiveContract(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

func (h *RegistryHandler) syncContract(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := pathID(params, "contract")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actorFrom(r).Username == "" {
		h.writeError(w, r, fmt.Errorf("%w: login required", e.ErrUnauthenticated))
		return
	}
	contract, err := h.svc.SyncContractStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// Counters

func (h *RegistryHandler) listCounters(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	snap, err := h.svc.ListCounters(r.Context(), q.Year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshotToViews(snap))
}

func (h *RegistryHandler) adjustCounter(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req counterRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	adj, err := h.svc.AdjustCounter(r.Context(), actorFrom(r), req.toAdjustment())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, adj)
}

func (h *RegistryHandler) verifyCounters(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.svc.VerifySequences(r.Context(), q.Year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if result.Issues == nil {
		result.Issues = []controller.SequenceIssue{}
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Year locks and settings

func (h *RegistryHandler) listYearLocks(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	locks, err := h.svc.ListYearLocks(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if locks == nil {
		locks = []models.YearLock{}
	}
	h.writeJSON(w, http.StatusOK, locks)
}

func (h *RegistryHandler) setYearLock(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req yearLockRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	lock, err := h.svc.SetYearLock(r.Context(), actorFrom(r), req.Year, req.Locked)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lock)
}

func (h *RegistryHandler) getSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	settings, err := h.svc.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *RegistryHandler) updateSettings(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req settingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	settings, err := h.svc.UpdateSettings(r.Context(), actorFrom(r), req.toUpdate())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *RegistryHandler) listAuditLogs(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	entries, err := h.svc.ListAuditLogs(r.Context(), models.AuditFilter{
		Model:    q.Model,
		ObjectID: q.ObjectID,
		Limit:    q.Limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}
