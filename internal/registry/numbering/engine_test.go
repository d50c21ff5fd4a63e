package numbering

import (
	"context"
	"errors"
	"fmt"
	"testing"

	dbmodels "github.com/gartstein/ymm/internal/registry/db/models"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type record struct {
	serial   int
	archived bool
}

// memoryStore is an in-memory CounterStore. Records stand in for the rows
// the live-max queries look at.
type memoryStore struct {
	docCounters  map[string]int
	yearCounters map[int]int
	global       int

	documents   map[string][]record
	yearSerials map[int][]record
	cumulatives []record

	lockErr error
	locks   []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docCounters:  map[string]int{},
		yearCounters: map[int]int{},
		documents:    map[string][]record{},
		yearSerials:  map[int][]record{},
	}
}

func scopeKey(docType models.DocType, year int) string {
	return fmt.Sprintf("%s/%d", docType, year)
}

func maxRecord(records []record, activeOnly bool) int {
	top := 0
	for _, r := range records {
		if activeOnly && r.archived {
			continue
		}
		top = max(top, r.serial)
	}
	return top
}

func (m *memoryStore) LockDocumentCounter(_ context.Context, docType models.DocType, year int) (*dbmodels.DocumentCounter, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locks = append(m.locks, "document:"+scopeKey(docType, year))
	return &dbmodels.DocumentCounter{DocType: string(docType), Year: year, LastSerial: m.docCounters[scopeKey(docType, year)]}, nil
}

func (m *memoryStore) SaveDocumentCounter(_ context.Context, c *dbmodels.DocumentCounter) error {
	m.docCounters[scopeKey(models.DocType(c.DocType), c.Year)] = c.LastSerial
	return nil
}

func (m *memoryStore) MaxDocumentSerial(_ context.Context, docType models.DocType, year int) (int, error) {
	return maxRecord(m.documents[scopeKey(docType, year)], false), nil
}

func (m *memoryStore) MaxActiveDocumentSerial(_ context.Context, docType models.DocType, year int) (int, error) {
	return maxRecord(m.documents[scopeKey(docType, year)], true), nil
}

func (m *memoryStore) LockReportYearCounter(_ context.Context, year int) (*dbmodels.ReportCounterYearAll, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locks = append(m.locks, fmt.Sprintf("year:%d", year))
	return &dbmodels.ReportCounterYearAll{Year: year, LastSerial: m.yearCounters[year]}, nil
}

func (m *memoryStore) SaveReportYearCounter(_ context.Context, c *dbmodels.ReportCounterYearAll) error {
	m.yearCounters[c.Year] = c.LastSerial
	return nil
}

func (m *memoryStore) MaxReportYearSerial(_ context.Context, year int) (int, error) {
	return maxRecord(m.yearSerials[year], false), nil
}

func (m *memoryStore) MaxActiveReportYearSerial(_ context.Context, year int) (int, error) {
	return maxRecord(m.yearSerials[year], true), nil
}

func (m *memoryStore) LockReportGlobalCounter(_ context.Context) (*dbmodels.ReportCounterGlobal, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locks = append(m.locks, "global")
	return &dbmodels.ReportCounterGlobal{ID: dbmodels.GlobalCounterID, LastSerial: m.global}, nil
}

func (m *memoryStore) SaveReportGlobalCounter(_ context.Context, c *dbmodels.ReportCounterGlobal) error {
	m.global = c.LastSerial
	return nil
}

func (m *memoryStore) MaxReportCumulative(_ context.Context) (int, error) {
	return maxRecord(m.cumulatives, false), nil
}

func (m *memoryStore) MaxActiveReportCumulative(_ context.Context) (int, error) {
	return maxRecord(m.cumulatives, true), nil
}

func newTestEngine(t *testing.T) *Engine {
	return NewEngine(DefaultLicenseNo, DefaultCutoffYear, zaptest.NewLogger(t))
}

func TestNewEngine_Defaults(t *testing.T) {
	en := NewEngine("", 0, zaptest.NewLogger(t))
	assert.Equal(t, DefaultLicenseNo, en.LicenseNo())
	assert.Equal(t, DefaultCutoffYear, en.CutoffYear())
}

func TestAssignDocumentNumber(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	ctx := context.Background()

	for i, want := range []string{
		"YMM-06105087/GLE/2025-001",
		"YMM-06105087/GLE/2025-002",
		"YMM-06105087/GLE/2025-003",
	} {
		num, err := en.AssignDocumentNumber(ctx, store, models.DocTypeGLE, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, num.DocNo)
		assert.Equal(t, i+1, num.Serial)
		store.documents["GLE/2025"] = append(store.documents["GLE/2025"], record{serial: num.Serial})
	}
	assert.Equal(t, 3, store.docCounters["GLE/2025"])

	num, err := en.AssignDocumentNumber(ctx, store, models.DocTypeKIT, 2025)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087/KIT/2025-001", num.DocNo)
}

func TestAssignDocumentNumber_LiveMaxWins(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()

	// The counter lags behind rows that are present, archived included.
	store.docCounters["GDE/2024"] = 2
	store.documents["GDE/2024"] = []record{{serial: 1}, {serial: 2}, {serial: 7, archived: true}}

	num, err := en.AssignDocumentNumber(context.Background(), store, models.DocTypeGDE, 2024)
	require.NoError(t, err)
	assert.Equal(t, 8, num.Serial)
	assert.Equal(t, 8, store.docCounters["GDE/2024"])
}

func TestAssignDocumentNumber_InvalidScope(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()

	_, err := en.AssignDocumentNumber(context.Background(), store, "ABC", 2025)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	_, err = en.AssignDocumentNumber(context.Background(), store, models.DocTypeGLE, 0)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	assert.Empty(t, store.locks)
}

func TestAssignDocumentNumber_LockError(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	store.lockErr = fmt.Errorf("%w: lock timeout", e.ErrCounterContention)

	_, err := en.AssignDocumentNumber(context.Background(), store, models.DocTypeGLE, 2025)
	assert.True(t, e.Retryable(err))
}

func TestReserveDocumentNumber(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	ctx := context.Background()

	num, err := en.ReserveDocumentNumber(ctx, store, models.DocTypeGLE, 2024, 40)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087/GLE/2024-040", num.DocNo)
	assert.Equal(t, 40, store.docCounters["GLE/2024"])

	_, err = en.ReserveDocumentNumber(ctx, store, models.DocTypeGLE, 2024, 12)
	require.NoError(t, err)
	assert.Equal(t, 40, store.docCounters["GLE/2024"], "a lower manual serial must not lower the counter")

	tests := []struct {
		name   string
		year   int
		serial int
		want   error
	}{
		{name: "cutoff year", year: 2026, serial: 1, want: e.ErrManualOverrideForbidden},
		{name: "after cutoff", year: 2030, serial: 1, want: e.ErrManualOverrideForbidden},
		{name: "zero serial", year: 2024, serial: 0, want: e.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := en.ReserveDocumentNumber(ctx, store, models.DocTypeGLE, tt.year, tt.serial)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAssignReportNumber(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	ctx := context.Background()

	first, err := en.AssignReportNumber(ctx, store, models.ReportTypeTT, 2025)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087-1/2025-001", first.ReportNo)
	assert.Equal(t, []string{"global", "year:2025"}, store.locks)

	store.cumulatives = append(store.cumulatives, record{serial: 1})
	store.yearSerials[2025] = append(store.yearSerials[2025], record{serial: 1})

	// The cumulative is shared across years, the year serial is not.
	second, err := en.AssignReportNumber(ctx, store, models.ReportTypeKDV, 2026)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087-2/2026-001", second.ReportNo)
	assert.Equal(t, 2, second.TypeCumulative)
	assert.Equal(t, 1, second.YearSerial)
}

func TestReserveReportNumber(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	store.global = 30
	store.yearCounters[2023] = 5

	num, err := en.ReserveReportNumber(context.Background(), store, models.ReportTypeOAR, 2023, 12, 9)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087-12/2023-009", num.ReportNo)
	assert.Equal(t, 30, store.global)
	assert.Equal(t, 9, store.yearCounters[2023])

	_, err = en.ReserveReportNumber(context.Background(), store, models.ReportTypeOAR, 2026, 40, 1)
	assert.ErrorIs(t, err, e.ErrManualOverrideForbidden)
	_, err = en.ReserveReportNumber(context.Background(), store, models.ReportTypeOAR, 2023, 0, 1)
	assert.ErrorIs(t, err, e.ErrInvalidInput)
}

func TestRewindDocumentCounter(t *testing.T) {
	tests := []struct {
		name    string
		counter int
		rows    []record
		deleted int
		want    int
	}{
		{name: "counter at deleted serial", counter: 3, rows: []record{{serial: 1}, {serial: 2}}, deleted: 3, want: 2},
		{name: "counter below deleted serial", counter: 2, rows: []record{{serial: 1}}, deleted: 3, want: 2},
		{name: "archived rows do not count", counter: 3, rows: []record{{serial: 1}, {serial: 2, archived: true}}, deleted: 3, want: 1},
		{name: "scope emptied", counter: 1, rows: nil, deleted: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en := newTestEngine(t)
			store := newMemoryStore()
			store.docCounters["GLE/2025"] = tt.counter
			store.documents["GLE/2025"] = tt.rows

			require.NoError(t, en.RewindDocumentCounter(context.Background(), store, models.DocTypeGLE, 2025, tt.deleted))
			assert.Equal(t, tt.want, store.docCounters["GLE/2025"])
		})
	}
}

func TestRewindReportCounters(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	store.global = 5
	store.yearCounters[2025] = 3
	store.cumulatives = []record{{serial: 1}, {serial: 2}, {serial: 3}, {serial: 4}}
	store.yearSerials[2025] = []record{{serial: 1}, {serial: 2}}

	require.NoError(t, en.RewindReportCounters(context.Background(), store, 2025, 5, 3))
	assert.Equal(t, 4, store.global)
	assert.Equal(t, 2, store.yearCounters[2025])
	assert.Equal(t, []string{"global", "year:2025"}, store.locks)
}

func TestRewind_LockError(t *testing.T) {
	en := newTestEngine(t)
	store := newMemoryStore()
	store.lockErr = errors.New("connection lost")

	assert.Error(t, en.RewindDocumentCounter(context.Background(), store, models.DocTypeGLE, 2025, 1))
	assert.Error(t, en.RewindReportCounters(context.Background(), store, 2025, 1, 1))
}
