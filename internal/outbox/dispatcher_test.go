package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	records []Record
	sent    []uuid.UUID
	failed  []uuid.UUID
}

func (m *memRepo) FindPending(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.Status == StatusPending && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) MarkSent(ctx context.Context, id uuid.UUID) error {
	m.sent = append(m.sent, id)
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = StatusSent
		}
	}
	return nil
}

func (m *memRepo) MarkFailed(ctx context.Context, id uuid.UUID, cause error, maxAttempts int) error {
	m.failed = append(m.failed, id)
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Attempts++
			if m.records[i].Attempts >= maxAttempts {
				m.records[i].Status = StatusFailed
			}
		}
	}
	return nil
}

type flakyNotifier struct {
	failFor map[uuid.UUID]error
	sent    []Record
}

func (n *flakyNotifier) Send(ctx context.Context, rec Record) error {
	if err, ok := n.failFor[rec.ID]; ok {
		return err
	}
	n.sent = append(n.sent, rec)
	return nil
}

func TestRunOnceDeliversPending(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	repo := &memRepo{records: []Record{
		{ID: a, Status: StatusPending, Channel: "email"},
		{ID: b, Status: StatusPending, Channel: "whatsapp"},
	}}
	notifier := &flakyNotifier{}

	d := NewDispatcher(repo, notifier, nil)
	require.NoError(t, d.RunOnce(context.Background()))

	assert.Len(t, notifier.sent, 2)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, repo.sent)
}

func TestRunOnceKeepsFailedForRetry(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	repo := &memRepo{records: []Record{
		{ID: a, Status: StatusPending},
		{ID: b, Status: StatusPending},
	}}
	notifier := &flakyNotifier{failFor: map[uuid.UUID]error{a: errors.New("smtp down")}}

	d := NewDispatcher(repo, notifier, nil)
	require.NoError(t, d.RunOnce(context.Background()))

	assert.Equal(t, []uuid.UUID{a}, repo.failed)
	assert.Equal(t, []uuid.UUID{b}, repo.sent)

	// a is still pending, so the next run retries it (at-least-once).
	pending, err := repo.FindPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].ID)
}
