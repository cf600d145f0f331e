package documents

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgdb "github.com/angelmondragon/duka-backend/pkg/db"
	"github.com/angelmondragon/duka-backend/pkg/db/dbtest"
	"github.com/angelmondragon/duka-backend/pkg/db/models"
	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
)

type fakeUploader struct {
	objects map[string][]byte
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, object string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if contentType != "application/pdf" {
		return "", errors.New("unexpected content type " + contentType)
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[object] = data
	return "https://storage.test/duka-docs/" + object, nil
}

func newDocumentService(t *testing.T, db *gorm.DB, uploader *fakeUploader) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "documents-test", Output: &bytes.Buffer{}})
	svc, err := NewService(ServiceParams{
		TxRunner:        pkgdb.NewFromConn(db, 5*time.Second),
		Repository:      NewRepository(db),
		Generator:       NewGenerator(logg),
		Uploader:        uploader,
		Outbox:          outbox.NewService(outbox.NewRepository(db), logg),
		Logger:          logg,
		TrackingBaseURL: "https://duka.rw/track",
		DocumentsPath:   "/documents/",
	})
	require.NoError(t, err)
	return svc
}

func seedOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:     "ORD-20261017-101500-AB12",
		PaymentMethod:   enums.PaymentMethodCOD,
		Subtotal:        decimal.NewFromInt(10000),
		DeliveryFee:     decimal.NewFromInt(1500),
		Total:           decimal.NewFromInt(11500),
		Currency:        "RWF",
		CustomerName:    "Amina Uwase",
		CustomerPhone:   "0788123456",
		DeliveryAddress: "KG 11 Ave",
		DeliveryCity:    "Kigali",
	}
	require.NoError(t, db.Omit("Items", "Payment", "Delivery").Create(order).Error)
	require.NoError(t, db.Create(&models.OrderItem{
		OrderID:     order.ID,
		ProductID:   uuid.New(),
		ProductName: "Coffee beans",
		UnitPrice:   decimal.NewFromInt(5000),
		Quantity:    2,
		TotalPrice:  decimal.NewFromInt(10000),
	}).Error)
	require.NoError(t, db.Create(&models.Delivery{
		OrderID:        order.ID,
		Status:         enums.DeliveryStatusPending,
		TrackingNumber: "TRK-0A1B2C3D4E",
	}).Error)
	return order
}

func TestGenerateStoresInvoiceAndRecordsURL(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	order := seedOrder(t, db)
	uploader := &fakeUploader{}
	svc := newDocumentService(t, db, uploader)

	url, err := svc.Generate(context.Background(), enums.DocumentTypeInvoice, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.test/duka-docs/documents/ORD-20261017-101500-AB12/invoice.pdf", url)

	data := uploader.objects["documents/ORD-20261017-101500-AB12/invoice.pdf"]
	require.NotEmpty(t, data)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.NotNil(t, reloaded.InvoiceURL)
	assert.Equal(t, url, *reloaded.InvoiceURL)
	assert.Nil(t, reloaded.DeliveryNoteURL)

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events, "aggregate_id = ?", order.ID).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderDocumentReady, events[0].EventType)
}

func TestGenerateDeliveryNoteColumn(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	order := seedOrder(t, db)
	svc := newDocumentService(t, db, &fakeUploader{})

	_, err := svc.Generate(context.Background(), enums.DocumentTypeDeliveryNote, order.ID)
	require.NoError(t, err)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.NotNil(t, reloaded.DeliveryNoteURL)
	assert.Contains(t, *reloaded.DeliveryNoteURL, "/delivery_note.pdf")
}

func TestGenerateUploadFailureLeavesOrderUntouched(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	order := seedOrder(t, db)
	svc := newDocumentService(t, db, &fakeUploader{err: errors.New("503 from storage")})

	_, err := svc.Generate(context.Background(), enums.DocumentTypeInvoice, order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Nil(t, reloaded.InvoiceURL)
	assert.Zero(t, dbtest.Count(t, db, &models.OutboxEvent{}))
}

func TestGenerateMissingOrder(t *testing.T) {
	db := dbtest.OpenSQLite(t)
	svc := newDocumentService(t, db, &fakeUploader{})

	_, err := svc.Generate(context.Background(), enums.DocumentTypeInvoice, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.False(t, pkgerrors.IsRetryable(err))
}
