package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/corval/docqa-service/internal/service"
	"github.com/corval/docqa-service/internal/testutil/mem"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTriggerAndDrain(t *testing.T) {
	files := mem.NewFileStore()
	files.Add("D1", "a.txt", "/a.txt", []byte("alpha content"))
	files.Add("D2", "b.txt", "/b.txt", []byte("beta content"))
	store := mem.NewDocStore()
	vs := mem.NewVectorStore()

	in := service.NewIngestor(files, store, &mem.Embedder{}, vs, 100, 10, "admin@example.com")
	s := service.NewScanScheduler(in, 4, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.True(t, s.Trigger())

	require.Eventually(t, func() bool {
		docs, err := store.GetDocuments(context.Background(), []string{"D1", "D2"})
		return err == nil && len(docs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestSchedulerQueueFullDropsNotification(t *testing.T) {
	files := mem.NewFileStore()
	in := service.NewIngestor(files, mem.NewDocStore(), &mem.Embedder{}, mem.NewVectorStore(), 100, 10, "admin@example.com")
	// Queue of 1 with no running drain loop.
	s := service.NewScanScheduler(in, 1, 1)

	require.True(t, s.Trigger())
	require.False(t, s.Trigger())
}
