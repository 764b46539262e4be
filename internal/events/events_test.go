package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

func TestChannelPublisher(t *testing.T) {
	p := NewChannelPublisher(1)
	ev := SubjectReclassified{SubjectID: "s1", Category: model.CategoryFuel}

	require.NoError(t, p.Publish(context.Background(), ev))
	got := <-p.Events()
	assert.Equal(t, ev, got)

	require.NoError(t, p.Publish(context.Background(), ev))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, ev)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.Publish(context.Background(), SubjectReclassified{SubjectID: "s9", Category: model.CategoryElectricity}))
	assert.Contains(t, buf.String(), "subject_id=s9")
	assert.Contains(t, buf.String(), "category=electricity")
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, SubjectReclassified) error {
	f.calls++
	return errors.New("down")
}

func TestMulti(t *testing.T) {
	bad := &failingPublisher{}
	ch := NewChannelPublisher(1)

	err := Multi{bad, ch}.Publish(context.Background(), SubjectReclassified{SubjectID: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, ch.Events(), 1)
}
