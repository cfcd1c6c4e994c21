package metrics

import (
	"context"
	"time"

	"github.com/corval/docqa-service/internal/model"
	"github.com/corval/docqa-service/internal/registry/store"
	"github.com/corval/docqa-service/internal/security"
)

// Wrap returns a DocumentStore that records StoreLatency for every operation.
func Wrap(inner store.DocumentStore) store.DocumentStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.DocumentStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) UpsertDocument(ctx context.Context, doc model.Document) (*model.Document, error) {
	defer observe("upsert_document", time.Now())
	return m.inner.UpsertDocument(ctx, doc)
}

func (m *metricsStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	defer observe("get_document", time.Now())
	return m.inner.GetDocument(ctx, id)
}

func (m *metricsStore) GetDocuments(ctx context.Context, ids []string) ([]model.Document, error) {
	defer observe("get_documents", time.Now())
	return m.inner.GetDocuments(ctx, ids)
}

func (m *metricsStore) AppendEmailAllowed(ctx context.Context, docID, email string) (*model.Document, error) {
	defer observe("append_email_allowed", time.Now())
	return m.inner.AppendEmailAllowed(ctx, docID, email)
}

func (m *metricsStore) CreateAccessRequest(ctx context.Context, docID, requestorEmail string) (*model.AccessRequest, error) {
	defer observe("create_access_request", time.Now())
	return m.inner.CreateAccessRequest(ctx, docID, requestorEmail)
}

func (m *metricsStore) GetAccessRequest(ctx context.Context, id string) (*model.AccessRequest, error) {
	defer observe("get_access_request", time.Now())
	return m.inner.GetAccessRequest(ctx, id)
}

func (m *metricsStore) DecideAccessRequest(ctx context.Context, id, status string, decidedAt time.Time) (*model.AccessRequest, error) {
	defer observe("decide_access_request", time.Now())
	return m.inner.DecideAccessRequest(ctx, id, status, decidedAt)
}

func (m *metricsStore) Close() {
	m.inner.Close()
}
