package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/api-directory/internal/models"
	"github.com/DeafMist/api-directory/internal/processing"
	"github.com/DeafMist/api-directory/internal/stream"
)

type recordingWriter struct {
	batches [][]kafka.Message
	err     error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	cp := append([]kafka.Message(nil), msgs...)
	w.batches = append(w.batches, cp)
	return nil
}

func dataset(n int) *models.Dataset {
	ds := &models.Dataset{FetchedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	for i := 0; i < n; i++ {
		ds.Records = append(ds.Records, models.APIRecord{Name: string(rune('A' + i)), URL: "https://example.com"})
	}
	return ds
}

func TestPublishDatasetBatches(t *testing.T) {
	w := &recordingWriter{}
	pub := stream.NewPublisher(w, 2, nil)

	n, err := pub.PublishDataset(context.Background(), dataset(5))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Len(t, w.batches, 3)
	require.Len(t, w.batches[2], 1)

	first := w.batches[0][0]
	require.Equal(t, processing.BuildDocumentID(models.APIRecord{Name: "A", URL: "https://example.com"}), string(first.Key))

	decoded, err := stream.Decode(first)
	require.NoError(t, err)
	require.Equal(t, "A", decoded.Record.Name)
	require.Equal(t, 0, decoded.Position)
	require.True(t, decoded.FetchedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPublishSkipsNamelessRecords(t *testing.T) {
	w := &recordingWriter{}
	pub := stream.NewPublisher(w, 10, nil)

	ds := dataset(2)
	ds.Records = append(ds.Records, models.APIRecord{Description: "no name"})

	n, err := pub.PublishDataset(context.Background(), ds)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestPublishPropagatesWriteErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	pub := stream.NewPublisher(&recordingWriter{err: boom}, 10, nil)

	n, err := pub.PublishDataset(context.Background(), dataset(3))
	require.ErrorIs(t, err, boom)
	require.Zero(t, n)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := stream.Decode(kafka.Message{Value: []byte("not json")})
	require.Error(t, err)
}
