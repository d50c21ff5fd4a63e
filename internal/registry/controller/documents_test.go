package controller

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gartstein/ymm/internal/pkg/utils"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDocument_SequentialNumbers(t *testing.T) {
	env := newTestEnv(t)

	want := []string{
		"YMM-06105087/GLE/2025-001",
		"YMM-06105087/GLE/2025-002",
		"YMM-06105087/GLE/2025-003",
	}
	dates := []time.Time{day(2025, time.January, 2), day(2025, time.January, 3), day(2025, time.January, 3)}
	for i, d := range dates {
		doc := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, d))
		assert.Equal(t, want[i], doc.DocNo)
		assert.Equal(t, i+1, doc.Serial)
		assert.False(t, doc.ManuallyNumbered)
		assert.Equal(t, models.DirectionIncoming, doc.Direction)
		assert.Equal(t, "clerk", doc.CreatedBy)
	}

	assert.Equal(t, 3, env.documentCounter(t, models.DocTypeGLE, 2025))
	assert.Equal(t, 3, env.producer.count(events.DocumentNumbered))

	logs, err := env.svc.ListAuditLogs(context.Background(), models.AuditFilter{Model: documentModel})
	require.NoError(t, err)
	assert.Len(t, logs, 3)
	for _, l := range logs {
		assert.Equal(t, models.ActionCreate, l.Action)
	}
}

func TestCreateDocument_ScopesAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.March, 1)))
	env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.March, 1)))
	gde := env.mustCreateDocument(t, env.newDocument(models.DocTypeGDE, day(2025, time.March, 1)))

	assert.Equal(t, "YMM-06105087/GDE/2025-001", gde.DocNo)
	assert.Equal(t, 2, env.documentCounter(t, models.DocTypeGLE, 2025))
	assert.Equal(t, 1, env.documentCounter(t, models.DocTypeGDE, 2025))
}

func TestCreateDocument_Rejections(t *testing.T) {
	env := newTestEnv(t)

	other, err := env.svc.CreateCustomer(context.Background(), clerk, &models.Customer{
		Name:         "Ege Gida Ltd.",
		IdentityType: models.IdentityTCKN,
		NationalID:   utils.Ptr("12345678901"),
	})
	require.NoError(t, err)
	foreign, err := env.svc.CreateContract(context.Background(), clerk, &models.Contract{CustomerID: other.ID})
	require.NoError(t, err)

	tests := []struct {
		name          string
		actor         models.Actor
		mutate        func(*models.Document)
		expectedError error
	}{
		{
			name:          "anonymous",
			actor:         models.Actor{},
			mutate:        func(*models.Document) {},
			expectedError: e.ErrUnauthenticated,
		},
		{
			name:          "unknown type",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.DocType = "XYZ" },
			expectedError: e.ErrInvalidInput,
		},
		{
			name:          "received date outside record year",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.Year = 2024 },
			expectedError: e.ErrInvalidInput,
		},
		{
			name:  "outside working year",
			actor: clerk,
			mutate: func(d *models.Document) {
				d.Year = 2024
				d.ReceivedDate = day(2024, time.December, 30)
			},
			expectedError: e.ErrInvalidInput,
		},
		{
			name:          "missing received date",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.ReceivedDate = time.Time{} },
			expectedError: e.ErrInvalidInput,
		},
		{
			name:          "unknown direction",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.Direction = "SIDEWAYS" },
			expectedError: e.ErrInvalidInput,
		},
		{
			name:          "manual numbering by clerk",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.Serial = 7 },
			expectedError: e.ErrManualOverrideForbidden,
		},
		{
			name:  "manual numbering in cutoff year",
			actor: staff,
			mutate: func(d *models.Document) {
				d.Serial = 7
				d.Year = 2026
				d.ReceivedDate = day(2026, time.January, 5)
			},
			expectedError: e.ErrManualOverrideForbidden,
		},
		{
			name:          "unknown customer",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.CustomerID = uuid.New() },
			expectedError: e.ErrNotFound,
		},
		{
			name:          "contract of another customer",
			actor:         clerk,
			mutate:        func(d *models.Document) { d.ContractID = &foreign.ID },
			expectedError: e.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := env.newDocument(models.DocTypeGLE, day(2025, time.April, 1))
			tt.mutate(doc)

			_, err := env.svc.CreateDocument(context.Background(), tt.actor, doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}

	// No rejected request may consume a serial.
	first := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.April, 1)))
	assert.Equal(t, 1, first.Serial)
}

func TestCreateDocument_Chronology(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	later := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.March, 10)))

	_, err := env.svc.CreateDocument(ctx, clerk, env.newDocument(models.DocTypeGLE, day(2025, time.March, 5)))
	assert.ErrorIs(t, err, e.ErrChronologyViolation)

	// Other document types are a separate scope.
	env.mustCreateDocument(t, env.newDocument(models.DocTypeKIT, day(2025, time.March, 5)))

	// Archived records no longer constrain the order.
	_, err = env.svc.ArchiveDocument(ctx, staff, later.ID)
	require.NoError(t, err)
	doc := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.March, 5)))
	assert.Equal(t, 2, doc.Serial)
}

func TestCreateDocument_ManualChronology(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	manual := func(serial int, received time.Time) (*models.Document, error) {
		doc := env.newDocument(models.DocTypeGLE, received)
		doc.Serial = serial
		return env.svc.CreateDocument(ctx, staff, doc)
	}

	_, err := manual(5, day(2024, time.March, 10))
	require.NoError(t, err)
	_, err = manual(10, day(2024, time.May, 1))
	require.NoError(t, err)

	tests := []struct {
		name          string
		serial        int
		received      time.Time
		expectedError error
	}{
		{name: "between neighbours", serial: 7, received: day(2024, time.April, 1)},
		{name: "dated after a higher serial", serial: 8, received: day(2024, time.June, 1), expectedError: e.ErrChronologyViolation},
		{name: "dated before a lower serial", serial: 3, received: day(2024, time.April, 1), expectedError: e.ErrChronologyViolation},
		{name: "dated before the latest", serial: 12, received: day(2024, time.April, 15), expectedError: e.ErrChronologyViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manual(tt.serial, tt.received)
			if tt.expectedError == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}
}

func TestCreateDocument_ManualOverride(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.newDocument(models.DocTypeGLE, day(2024, time.February, 1))
	doc.Serial = 50
	created, err := env.svc.CreateDocument(ctx, staff, doc)
	require.NoError(t, err)
	assert.Equal(t, "YMM-06105087/GLE/2024-050", created.DocNo)
	assert.True(t, created.ManuallyNumbered)
	assert.Equal(t, 50, env.documentCounter(t, models.DocTypeGLE, 2024))

	// A lower manual serial never lowers the counter.
	doc = env.newDocument(models.DocTypeGLE, day(2024, time.January, 10))
	doc.Serial = 20
	_, err = env.svc.CreateDocument(ctx, staff, doc)
	require.NoError(t, err)
	assert.Equal(t, 50, env.documentCounter(t, models.DocTypeGLE, 2024))

	doc = env.newDocument(models.DocTypeGLE, day(2024, time.February, 1))
	doc.Serial = 50
	_, err = env.svc.CreateDocument(ctx, staff, doc)
	assert.ErrorIs(t, err, e.ErrDuplicate)

	// Automatic numbering continues after the reserved serial.
	_, err = env.svc.UpdateSettings(ctx, staff, SettingsUpdate{WorkingYear: utils.Ptr(2024)})
	require.NoError(t, err)
	next := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2024, time.March, 1)))
	assert.Equal(t, "YMM-06105087/GLE/2024-051", next.DocNo)
}

func TestCreateDocument_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	const workers = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		serials []int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := env.svc.CreateDocument(context.Background(), clerk,
				env.newDocument(models.DocTypeGLE, day(2025, time.May, 2)))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			serials = append(serials, doc.Serial)
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	sort.Ints(serials)
	for i, s := range serials {
		assert.Equal(t, i+1, s)
	}
	assert.Equal(t, workers, env.documentCounter(t, models.DocTypeGLE, 2025))
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.February, 3)))
	contract := env.mustCreateContract(t)

	updated, err := env.svc.UpdateDocument(ctx, clerk, &models.DocumentUpdate{
		ID:             doc.ID,
		Subject:        utils.Ptr("Annual statement"),
		DeliveryMethod: utils.Ptr(models.DeliveryCargo),
		ContractID:     &contract.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Annual statement", updated.Subject)
	assert.Equal(t, models.DeliveryCargo, updated.DeliveryMethod)
	require.NotNil(t, updated.ContractID)
	assert.Equal(t, doc.DocNo, updated.DocNo)

	unlinked, err := env.svc.UpdateDocument(ctx, clerk, &models.DocumentUpdate{ID: doc.ID, ContractID: utils.Ptr(uuid.Nil)})
	require.NoError(t, err)
	assert.Nil(t, unlinked.ContractID)

	immutable := []*models.DocumentUpdate{
		{ID: doc.ID, DocType: utils.Ptr(models.DocTypeGDE)},
		{ID: doc.ID, Serial: utils.Ptr(9)},
		{ID: doc.ID, DocNo: utils.Ptr("YMM-06105087/GLE/2025-009")},
		{ID: doc.ID, Year: utils.Ptr(2024)},
		{ID: doc.ID, ReceivedDate: utils.Ptr(day(2025, time.February, 4))},
	}
	for _, u := range immutable {
		_, err := env.svc.UpdateDocument(ctx, clerk, u)
		assert.ErrorIs(t, err, e.ErrInvalidInput)
	}

	// Repeating the stored values is not a change.
	_, err = env.svc.UpdateDocument(ctx, clerk, &models.DocumentUpdate{ID: doc.ID, Serial: utils.Ptr(doc.Serial)})
	assert.NoError(t, err)

	_, err = env.svc.UpdateDocument(ctx, clerk, &models.DocumentUpdate{ID: uuid.Nil})
	assert.ErrorIs(t, err, e.ErrInvalidInput)
	_, err = env.svc.UpdateDocument(ctx, clerk, &models.DocumentUpdate{ID: uuid.New()})
	assert.ErrorIs(t, err, e.ErrNotFound)
}

func TestArchiveDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.February, 3)))

	_, err := env.svc.ArchiveDocument(ctx, clerk, doc.ID)
	assert.ErrorIs(t, err, e.ErrForbidden)

	archived, err := env.svc.ArchiveDocument(ctx, staff, doc.ID)
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)

	visible, err := env.svc.ListDocuments(ctx, models.DocumentFilter{Year: 2025})
	require.NoError(t, err)
	assert.Empty(t, visible)

	all, err := env.svc.ListDocuments(ctx, models.DocumentFilter{Year: 2025, IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The archived number stays taken.
	next := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.February, 4)))
	assert.Equal(t, 2, next.Serial)
}

func TestDeleteDocument_Rollback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var docs []*models.Document
	for i := 0; i < 3; i++ {
		docs = append(docs, env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.January, 10))))
	}

	err := env.svc.DeleteDocument(ctx, staff, docs[2].ID)
	assert.ErrorIs(t, err, e.ErrForbidden)

	err = env.svc.DeleteDocument(ctx, admin, docs[1].ID)
	assert.ErrorIs(t, err, e.ErrNotMostRecent)

	require.NoError(t, env.svc.DeleteDocument(ctx, admin, docs[2].ID))
	assert.Equal(t, 2, env.documentCounter(t, models.DocTypeGLE, 2025))
	assert.Equal(t, 1, env.producer.count(events.DocumentDeleted))

	_, err = env.svc.GetDocument(ctx, docs[2].ID)
	assert.ErrorIs(t, err, e.ErrNotFound)

	again := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.January, 11)))
	assert.Equal(t, "YMM-06105087/GLE/2025-003", again.DocNo)

	logs, err := env.svc.ListAuditLogs(ctx, models.AuditFilter{Model: documentModel, ObjectID: docs[2].ID.String()})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.ActionDelete, logs[0].Action)
	assert.Equal(t, "admin", logs[0].Actor)
}

func TestDeleteDocument_ArchivedTopKeepsItsNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var docs []*models.Document
	for i := 0; i < 3; i++ {
		docs = append(docs, env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.January, 10))))
	}
	_, err := env.svc.ArchiveDocument(ctx, staff, docs[2].ID)
	require.NoError(t, err)

	err = env.svc.DeleteDocument(ctx, admin, docs[2].ID)
	assert.ErrorIs(t, err, e.ErrNotMostRecent)

	// docs[1] now holds the highest active serial.
	require.NoError(t, env.svc.DeleteDocument(ctx, admin, docs[1].ID))
	assert.Equal(t, 1, env.documentCounter(t, models.DocTypeGLE, 2025))

	// The archived serial 3 is still present, so numbering resumes after it.
	next := env.mustCreateDocument(t, env.newDocument(models.DocTypeGLE, day(2025, time.January, 12)))
	assert.Equal(t, 4, next.Serial)
}
