package controller

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/ymm/internal/pkg/utils"
	"github.com/gartstein/ymm/internal/registry/db"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	clerk = models.Actor{Username: "clerk"}
	staff = models.Actor{Username: "staff", IsStaff: true}
	admin = models.Actor{Username: "admin", IsSuperuser: true}
)

// MockProducer records produced events.
type MockProducer struct {
	mu     sync.Mutex
	events []producedEvent
}

type producedEvent struct {
	Type    events.EventType
	Key     string
	Actor   string
	Payload interface{}
}

func (m *MockProducer) Produce(eventType events.EventType, key, actor string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, producedEvent{Type: eventType, Key: key, Actor: actor, Payload: payload})
}

// count returns how many events of the type were produced.
func (m *MockProducer) count(eventType events.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	svc      *Service
	repo     *db.Repository
	producer *MockProducer
	customer *models.Customer
}

// newTestEnv builds a service over a fresh SQLite database with the working
// year 2025 and one customer.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := db.NewRepository(&db.Config{
		Driver:     db.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	logger := zaptest.NewLogger(t)
	producer := &MockProducer{}
	engine := numbering.NewEngine(numbering.DefaultLicenseNo, numbering.DefaultCutoffYear, logger)
	svc := NewService(repo, engine, producer, Options{
		DefaultWorkingYear: 2025,
		Now:                func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) },
	}, logger)

	customer, err := svc.CreateCustomer(context.Background(), clerk, &models.Customer{
		Name:         "Anadolu Tekstil A.S.",
		IdentityType: models.IdentityVKN,
		TaxNo:        utils.Ptr("1234567890"),
	})
	require.NoError(t, err)

	return &testEnv{svc: svc, repo: repo, producer: producer, customer: customer}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func (env *testEnv) newDocument(docType models.DocType, received time.Time) *models.Document {
	return &models.Document{
		CustomerID:   env.customer.ID,
		DocType:      docType,
		Year:         received.Year(),
		ReceivedDate: received,
		Subject:      "correspondence",
	}
}

func (env *testEnv) newReport(reportType models.ReportType, received time.Time) *models.Report {
	return &models.Report{
		CustomerID:   env.customer.ID,
		ReportType:   reportType,
		Year:         received.Year(),
		ReceivedDate: received,
		Subject:      "report",
	}
}

func (env *testEnv) mustCreateDocument(t *testing.T, doc *models.Document) *models.Document {
	t.Helper()
	created, err := env.svc.CreateDocument(context.Background(), clerk, doc)
	require.NoError(t, err)
	return created
}

func (env *testEnv) mustCreateReport(t *testing.T, report *models.Report) *models.Report {
	t.Helper()
	created, err := env.svc.CreateReport(context.Background(), clerk, report)
	require.NoError(t, err)
	return created
}

func (env *testEnv) mustCreateContract(t *testing.T) *models.Contract {
	t.Helper()
	contract, err := env.svc.CreateContract(context.Background(), clerk, &models.Contract{
		CustomerID: env.customer.ID,
		ContractNo: "2025/" + uuid.NewString()[:8],
	})
	require.NoError(t, err)
	return contract
}

// documentCounter reads the stored counter of a document scope.
func (env *testEnv) documentCounter(t *testing.T, docType models.DocType, year int) int {
	t.Helper()
	snap, err := env.repo.ListCounters(context.Background(), year)
	require.NoError(t, err)
	for _, c := range snap.Documents {
		if c.DocType == string(docType) && c.Year == year {
			return c.LastSerial
		}
	}
	return 0
}

func (env *testEnv) reportCounters(t *testing.T, year int) (global, yearly int) {
	t.Helper()
	snap, err := env.repo.ListCounters(context.Background(), year)
	require.NoError(t, err)
	for _, c := range snap.Years {
		if c.Year == year {
			yearly = c.LastSerial
		}
	}
	return snap.Global.LastSerial, yearly
}
