package documents

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/duka-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/duka-backend/pkg/errors"
	"github.com/angelmondragon/duka-backend/pkg/logger"
	"github.com/angelmondragon/duka-backend/pkg/outbox"
	"github.com/angelmondragon/duka-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/duka-backend/pkg/storage/gcs"
)

const defaultDocumentsPath = "documents"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	TxRunner        txRunner
	Repository      Repository
	Generator       *Generator
	Uploader        gcs.Uploader
	Outbox          outboxPublisher
	Logger          *logger.Logger
	TrackingBaseURL string
	DocumentsPath   string
}

// Service renders an order document, stores it and records its URL on the order.
type Service struct {
	tx           txRunner
	repo         Repository
	generator    *Generator
	uploader     gcs.Uploader
	outbox       outboxPublisher
	logg         *logger.Logger
	trackingBase string
	prefix       string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case params.Repository == nil:
		return nil, errors.New("documents repository required")
	case params.Generator == nil:
		return nil, errors.New("document generator required")
	case params.Uploader == nil:
		return nil, errors.New("document uploader required")
	case params.Outbox == nil:
		return nil, errors.New("outbox publisher required")
	case params.Logger == nil:
		return nil, errors.New("logger required")
	}
	prefix := strings.Trim(strings.TrimSpace(params.DocumentsPath), "/")
	if prefix == "" {
		prefix = defaultDocumentsPath
	}
	return &Service{
		tx:           params.TxRunner,
		repo:         params.Repository,
		generator:    params.Generator,
		uploader:     params.Uploader,
		outbox:       params.Outbox,
		logg:         params.Logger,
		trackingBase: params.TrackingBaseURL,
		prefix:       prefix,
	}, nil
}

// ObjectName is the storage path of an order document.
func (s *Service) ObjectName(orderNumber string, docType enums.DocumentType) string {
	return path.Join(s.prefix, orderNumber, string(docType)+".pdf")
}

// Generate renders docType for the order, uploads it and returns the public URL.
// Running it twice overwrites the same object.
func (s *Service) Generate(ctx context.Context, docType enums.DocumentType, orderID uuid.UUID) (string, error) {
	if !docType.IsValid() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown document type").
			WithDetails(map[string]any{"type": docType})
	}
	order, err := s.repo.LoadOrder(ctx, orderID)
	if err != nil {
		return "", err
	}

	data, err := s.generator.Render(ctx, docType, SnapshotFromOrder(order, s.trackingBase))
	if err != nil {
		return "", err
	}

	object := s.ObjectName(order.OrderNumber, docType)
	url, err := s.uploader.Upload(ctx, object, data, contentType)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload document")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetDocumentURL(ctx, order.ID, docType, url); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDocumentReady,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderDocumentReadyEvent{
				OrderID: order.ID,
				Type:    docType,
				URL:     url,
			},
		})
	})
	if err != nil {
		return "", err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"type":     string(docType),
		"object":   object,
		"bytes":    len(data),
	})
	s.logg.Info(logCtx, "order document stored")
	return url, nil
}
