package memchannel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TotoCodeFR/DaaD/channel"
)

func TestSend_AssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	m1, err := s.Send(ctx, "a [1/1]", "payload-a", "")
	require.NoError(t, err)
	m2, err := s.Send(ctx, "b [1/1]", "payload-b", m1.ID)
	require.NoError(t, err)

	assert.Equal(t, "1", m1.ID)
	assert.Equal(t, "2", m2.ID)
	assert.Equal(t, m1.ID, m2.Next)
}

func TestSend_PayloadLimit(t *testing.T) {
	ctx := context.Background()
	s := New(WithMaxPayload(10))

	_, err := s.Send(ctx, "l", strings.Repeat("x", 11), "")
	assert.ErrorIs(t, err, channel.ErrPayloadTooLarge)

	_, err = s.Send(ctx, "l", strings.Repeat("x", 10), "")
	assert.NoError(t, err)
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	m, err := s.Send(ctx, "label", "payload", "")
	require.NoError(t, err)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *m, *got)

	_, err = s.Get(ctx, "999")
	assert.ErrorIs(t, err, channel.ErrNotFound)
}

func TestRecent_MostRecentFirstAndBounded(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, label := range []string{"a", "b", "c"} {
		_, err := s.Send(ctx, label, "p", "")
		require.NoError(t, err)
	}

	msgs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[0].Label)
	assert.Equal(t, "b", msgs[1].Label)

	// Fewer than limit near channel creation
	msgs, err = s.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestRecent_SkipsDeleted(t *testing.T) {
	ctx := context.Background()
	s := New()

	m1, _ := s.Send(ctx, "a", "p", "")
	_, _ = s.Send(ctx, "b", "p", "")

	require.NoError(t, s.Delete(ctx, m1.ID))

	msgs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Label)
}

func TestBulkDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	m1, _ := s.Send(ctx, "a", "p", "")
	m2, _ := s.Send(ctx, "b", "p", "")

	require.NoError(t, s.BulkDelete(ctx, []string{m1.ID, m2.ID}))
	assert.Equal(t, 0, s.Len())
}

func TestBulkDelete_RejectsOldMessages(t *testing.T) {
	ctx := context.Background()
	s := New()

	m1, _ := s.Send(ctx, "a", "p", "")
	m2, _ := s.Send(ctx, "b", "p", "")
	s.AgeMessage(m2.ID, 15*24*time.Hour)

	err := s.BulkDelete(ctx, []string{m1.ID, m2.ID})
	assert.ErrorIs(t, err, channel.ErrBulkRejected)
	assert.Equal(t, 2, s.Len(), "rejection leaves the batch untouched")

	// Single deletes still work past the threshold
	require.NoError(t, s.Delete(ctx, m1.ID))
	require.NoError(t, s.Delete(ctx, m2.ID))
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()

	s.FailSends(channel.ErrPayloadTooLarge)
	_, err := s.Send(ctx, "l", "p", "")
	assert.Error(t, err)
	s.FailSends(nil)

	m, err := s.Send(ctx, "l", "p", "")
	require.NoError(t, err)

	s.RejectBulkDeletes(true)
	assert.ErrorIs(t, s.BulkDelete(ctx, []string{m.ID}), channel.ErrBulkRejected)
}

func TestDelete_NotFound(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Delete(context.Background(), "42"), channel.ErrNotFound)
}
