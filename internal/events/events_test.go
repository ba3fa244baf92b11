package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

type fakeIndexer struct {
	docs map[string]string
	err  error
}

func (f *fakeIndexer) ProcessDocument(ctx context.Context, id, text string) error {
	if f.err != nil {
		return f.err
	}
	f.docs[id] = text
	return nil
}

func (f *fakeIndexer) RemoveDocument(id string) bool {
	_, ok := f.docs[id]
	delete(f.docs, id)
	return ok
}

func encode(t *testing.T, ev DocumentChange) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleDocumentChange(t *testing.T) {
	ctx := context.Background()
	v := vault.NewMemory()
	v.Put("notes/b.md", "body from the vault")
	ix := &fakeIndexer{docs: map[string]string{}}
	handle := HandleDocumentChange(ix, v, metrics.New(nil), nil)

	require.NoError(t, handle(ctx, []byte("a"), encode(t, DocumentChange{ID: "notes/a.md", Op: OpUpsert, Body: "inline body"})))
	require.NoError(t, handle(ctx, []byte("b"), encode(t, DocumentChange{ID: "notes/b.md", Op: OpUpsert})))
	assert.Equal(t, map[string]string{"notes/a.md": "inline body", "notes/b.md": "body from the vault"}, ix.docs)

	require.NoError(t, handle(ctx, nil, encode(t, DocumentChange{ID: "notes/a.md", Op: OpDelete})))
	assert.NotContains(t, ix.docs, "notes/a.md")

	require.NoError(t, handle(ctx, nil, encode(t, DocumentChange{ID: "gone.md"})))
	require.NoError(t, handle(ctx, nil, []byte("{not json")))
	require.NoError(t, handle(ctx, nil, encode(t, DocumentChange{Op: OpUpsert})))
	require.NoError(t, handle(ctx, nil, encode(t, DocumentChange{ID: "x.md", Op: "rename"})))
	assert.Len(t, ix.docs, 1)
}

func TestHandleDocumentChangeErrors(t *testing.T) {
	ctx := context.Background()
	ix := &fakeIndexer{docs: map[string]string{}, err: apperrors.ErrDocumentTooLarge}
	handle := HandleDocumentChange(ix, nil, nil, nil)
	assert.NoError(t, handle(ctx, nil, encode(t, DocumentChange{ID: "big.md", Body: "x"})))

	ix.err = errors.New("disk on fire")
	assert.Error(t, handle(ctx, nil, encode(t, DocumentChange{ID: "a.md", Body: "x"})))
}

type fakePublisher struct {
	events []kafka.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, ev kafka.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	n := NewNotifier(pub, nil)
	require.NoError(t, n.IndexComplete(ctx, IndexComplete{RunID: "run-1", Documents: 42, DurationMS: 1500}))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "run-1", pub.events[0].Key)
	ev := pub.events[0].Value.(IndexComplete)
	assert.Equal(t, 42, ev.Documents)
	assert.WithinDuration(t, time.Now(), ev.CompletedAt, time.Minute)

	pub.err = errors.New("broker down")
	assert.Error(t, n.IndexComplete(ctx, IndexComplete{RunID: "run-2"}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.IndexComplete(ctx, IndexComplete{}))
}
