package tradelog

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/tradecore/testutils"
	"github.com/evdnx/tradecore/types"
)

var at = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

func sample() Record {
	req := types.OrderRequest{Symbol: "EURUSD", Side: types.Buy, Lot: 0.1, Entry: 1.1, StopLoss: 1.099, TakeProfit: 1.102}
	return Opened(42, types.Scalping, req, at)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeExec struct {
	query string
	args  []any
}

func (e *fakeExec) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	e.query, e.args = q, args
	return nil, nil
}

type failingSink struct{ calls int }

func (f *failingSink) Append(context.Context, Record) error { f.calls++; return errors.New("disk full") }
func (f *failingSink) Close() error                         { return nil }

type memorySink struct{ got []Record }

func (m *memorySink) Append(_ context.Context, r Record) error { m.got = append(m.got, r); return nil }
func (m *memorySink) Close() error                             { return nil }

func TestRecordBuilders(t *testing.T) {
	r := sample()
	assert.Equal(t, Open, r.Event)
	assert.Equal(t, "scalping", r.Strategy)
	assert.Equal(t, 1.1, r.Price)

	p := types.Position{Ticket: 7, Symbol: "GBPUSD", Side: types.Sell, Lot: 0.2, OpenPrice: 1.25, Profit: -12.5}
	c := Closed(p, "intraday", at)
	assert.Equal(t, Close, c.Event)
	assert.Equal(t, -12.5, c.Profit)
	assert.Equal(t, "intraday", c.Strategy)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.jsonl")
	s, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sample()))
	require.NoError(t, s.Append(context.Background(), Closed(types.Position{Ticket: 42, Symbol: "EURUSD", Side: types.Buy, Profit: 3}, "scalping", at)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, Open, lines[0].Event)
	assert.Equal(t, 3.0, lines[1].Profit)
	assert.True(t, at.Equal(lines[1].Time))
}

func TestFileSinkHonoursCancellation(t *testing.T) {
	s, err := NewFileSink(filepath.Join(t.TempDir(), "t.jsonl"))
	require.NoError(t, err)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Append(ctx, sample()), context.Canceled)
}

func TestKafkaSinkKeysBySymbol(t *testing.T) {
	w := &fakeWriter{}
	s := &KafkaSink{w: w, topic: "trades"}
	require.NoError(t, s.Append(context.Background(), sample()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("EURUSD"), w.msgs[0].Key)
	assert.Equal(t, "open", string(w.msgs[0].Headers[0].Value))

	w.err = errors.New("leader not available")
	assert.ErrorContains(t, s.Append(context.Background(), sample()), "kafka write trades")
}

func TestNewKafkaSinkNeedsBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "trades"})
	assert.Error(t, err)
	s, err := NewKafkaSink(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "trades", MaxAttempts: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestClickHouseSinkInsert(t *testing.T) {
	e := &fakeExec{}
	s := newClickHouseSink(e, "desk.trades")
	require.NoError(t, s.Append(context.Background(), sample()))
	assert.Contains(t, e.query, "INSERT INTO desk.trades")
	require.Len(t, e.args, 11)
	assert.Equal(t, "open", e.args[1])
	assert.Equal(t, int64(42), e.args[2])
	assert.Equal(t, "BUY", e.args[5])
	assert.NoError(t, s.Close())
}

func TestClickHouseRejectsBadTable(t *testing.T) {
	_, err := NewClickHouseSink(context.Background(), ClickHouseConfig{Table: "trades; DROP TABLE x"})
	assert.ErrorContains(t, err, "invalid table name")
}

func TestMultiContinuesPastFailures(t *testing.T) {
	bad := &failingSink{}
	good := &memorySink{}
	log := testutils.NewMockLogger()
	m := NewMulti(log, Named{"file", bad}, Named{"kafka", good})

	err := m.Append(context.Background(), sample())
	assert.ErrorContains(t, err, "file: disk full")
	assert.Len(t, good.got, 1)
	assert.Equal(t, 1, bad.calls)
	assert.True(t, log.Has("tradelog_append_failed"))
	assert.Equal(t, 2, m.Len())
	assert.NoError(t, m.Close())
}
