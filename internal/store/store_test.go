package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pricefeed/internal/schema"
	"pricefeed/pkg/conn"
	"pricefeed/pkg/exception"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func sampleBatch() Batch {
	return Batch{
		RunID: "0b6f2b3e-4d0f-4f2f-9a59-7c1c6f1f9f10",
		Records: []schema.Record{
			{Symbol: "AAPL", Side: schema.SideBuy, Quantity: 10, Price: 1500, Sequence: 1},
			{Symbol: "MSFT", Side: schema.SideSell, Quantity: 3, Price: 4200, Sequence: 2},
			{Symbol: "MSFT", Side: schema.SideSell, Quantity: 3, Price: 4200, Sequence: 2},
			{Symbol: "AMZN", Side: schema.SideBuy, Quantity: 0, Price: 0, Sequence: 4},
		},
		Missing:     []schema.Sequence{3},
		CompletedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestJSONFileWritesSortedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "output.json")
	sink, err := NewJSONFile(path)
	require.NoError(t, err)

	batch := sampleBatch()
	require.NoError(t, sink.Write(t.Context(), batch))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data),
		`[{"symbol":"AAPL","buySell":"B","quantity":10,"price":1500,"packetSeq":1},`), string(data))
	assert.True(t, strings.HasSuffix(string(data),
		`{"symbol":"AMZN","buySell":"B","quantity":0,"price":0,"packetSeq":4}]`), string(data))

	records, err := ReadJSONFile(path)
	require.NoError(t, err)
	assert.Equal(t, batch.Records, records)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestJSONFileEmptyBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	sink, err := NewJSONFile(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(t.Context(), Batch{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestJSONFileReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	sink, err := NewJSONFile(path)
	require.NoError(t, err)
	require.NoError(t, sink.Write(t.Context(), sampleBatch()))

	records, err := ReadJSONFile(path)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestNewJSONFileRejectsEmptyPath(t *testing.T) {
	_, err := NewJSONFile("")
	assert.True(t, errors.Is(err, exception.ErrEmptyOutputPath))
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	client, err := conn.New(conn.Option{Driver: conn.DriverSQLite, Database: filepath.Join(t.TempDir(), "feed.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sink, err := NewDB(client.DB(), 2)
	require.NoError(t, err)
	return sink
}

func TestDBWriteAndLoad(t *testing.T) {
	sink := openSQLite(t)
	batch := sampleBatch()
	require.NoError(t, sink.Write(t.Context(), batch))

	records, err := sink.Records(t.Context(), batch.RunID)
	require.NoError(t, err)
	assert.Equal(t, batch.Records, records)

	var run RunRow
	require.NoError(t, sink.db.First(&run, "run_id = ?", batch.RunID).Error)
	assert.Equal(t, 4, run.Records)
	assert.Equal(t, 1, run.Missing)
}

func TestDBRejectsDuplicateRun(t *testing.T) {
	sink := openSQLite(t)
	batch := sampleBatch()
	require.NoError(t, sink.Write(t.Context(), batch))
	require.Error(t, sink.Write(t.Context(), batch))

	var count int64
	require.NoError(t, sink.db.Model(&RecordRow{}).Where("run_id = ?", batch.RunID).Count(&count).Error)
	assert.Equal(t, int64(len(batch.Records)), count, "failed write must roll back")
}

func TestDBEmptyBatch(t *testing.T) {
	sink := openSQLite(t)
	require.NoError(t, sink.Write(t.Context(), Batch{RunID: "empty", CompletedAt: time.Now()}))

	records, err := sink.Records(t.Context(), "empty")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewDBRejectsNil(t *testing.T) {
	_, err := NewDB(nil, 0)
	assert.True(t, errors.Is(err, exception.ErrNilInstance))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublishesOneMessagePerRecord(t *testing.T) {
	w := &fakeWriter{}
	sink, err := newKafka(w)
	require.NoError(t, err)

	batch := sampleBatch()
	require.NoError(t, sink.Write(t.Context(), batch))
	require.Len(t, w.msgs, len(batch.Records))

	msg := w.msgs[1]
	assert.Equal(t, []byte("MSFT"), msg.Key)
	assert.JSONEq(t, `{"symbol":"MSFT","buySell":"S","quantity":3,"price":4200,"packetSeq":2}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, headerRunID, msg.Headers[0].Key)
	assert.Equal(t, []byte(batch.RunID), msg.Headers[0].Value)
	assert.Equal(t, []byte("2"), msg.Headers[1].Value)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSkipsEmptyBatch(t *testing.T) {
	w := &fakeWriter{err: errors.New("should not be called")}
	sink, err := newKafka(w)
	require.NoError(t, err)
	assert.NoError(t, sink.Write(t.Context(), Batch{}))
}

func TestKafkaWriteError(t *testing.T) {
	broker := errors.New("broker down")
	sink, err := newKafka(&fakeWriter{err: broker})
	require.NoError(t, err)
	assert.True(t, errors.Is(sink.Write(t.Context(), sampleBatch()), broker))
}

func TestNewKafkaValidates(t *testing.T) {
	_, err := NewKafka(KafkaOption{Topic: "prices"})
	assert.True(t, errors.Is(err, exception.ErrInvalidConfig))
	_, err = NewKafka(KafkaOption{Brokers: []string{"localhost:9092"}})
	assert.True(t, errors.Is(err, exception.ErrInvalidConfig))

	sink, err := NewKafka(KafkaOption{Brokers: []string{"localhost:9092"}, Topic: "prices"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
	assert.NoError(t, sink.Close())

	_, err = newKafka(nil)
	assert.True(t, errors.Is(err, exception.ErrNilWriter))
}

type recordingSink struct {
	name  string
	err   error
	calls *[]string
}

func (s recordingSink) Name() string { return s.name }

func (s recordingSink) Write(context.Context, Batch) error {
	*s.calls = append(*s.calls, s.name)
	return s.err
}

func TestMultiStopsAtFirstFailure(t *testing.T) {
	var calls []string
	fail := errors.New("disk full")
	m := Multi{
		recordingSink{name: "a", calls: &calls},
		recordingSink{name: "b", err: fail, calls: &calls},
		recordingSink{name: "c", calls: &calls},
	}

	err := m.Write(t.Context(), sampleBatch())
	assert.True(t, errors.Is(err, fail))
	assert.Contains(t, err.Error(), "write sink b")
	assert.Equal(t, []string{"a", "b"}, calls)
}
