package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     chan kafka.Message
	committed []kafka.Message
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{queue: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.queue <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.queue:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Committed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (r *fakeReader) Close() error { return nil }

type countingHandler struct {
	mu      sync.Mutex
	calls   int
	failFor int
}

func (h *countingHandler) Topic() string { return "recalc" }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.calls <= h.failFor {
		return errors.New("boom")
	}
	return nil
}

func (h *countingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testConsumer(retryMax int) *Consumer {
	return newConsumer(&ConsumerConfig{
		WorkerCount: 1,
		BufferSize:  4,
		RetryMax:    retryMax,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}, nil)
}

func TestProducerEncodesAndKeys(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")

	err := p.Publish(context.Background(), "results", []byte("BTC"), map[string]any{"p_rise": 0.61})
	require.NoError(t, err)
	require.NoError(t, p.PublishBatch(context.Background(), "results", []Message{
		{Key: []byte("ETH"), Value: "raw"},
		{Key: []byte("SOL"), Value: []byte(`{"x":1}`), Headers: map[string]string{"run_id": "r1", "direction": "rise"}},
	}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "results", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTC"), w.msgs[0].Key)
	assert.JSONEq(t, `{"p_rise":0.61}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, `{"x":1}`, string(w.msgs[2].Value))
	assert.Equal(t, []kafka.Header{
		{Key: "direction", Value: []byte("rise")},
		{Key: "run_id", Value: []byte("r1")},
	}, w.msgs[2].Headers)
}

func TestProducerRejectsUnencodableBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "snappy")
	err := p.PublishBatch(context.Background(), "results", []Message{
		{Key: []byte("BTC"), Value: "ok"},
		{Key: []byte("ETH"), Value: func() {}},
	})
	assert.ErrorContains(t, err, `encode value for key "ETH"`)
	assert.Empty(t, w.msgs)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestProducerWrapsWriteError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")}, "gzip")
	err := p.Publish(context.Background(), "results", nil, "x")
	assert.ErrorContains(t, err, "write 1 messages to results")
}

func TestProcessRetriesThenCommits(t *testing.T) {
	c := testConsumer(2)
	h := &countingHandler{failFor: 2}
	c.RegisterHandler(h)
	r := newFakeReader()
	c.readers["recalc"] = r

	c.process(kafka.Message{Topic: "recalc", Value: []byte("{}")})

	assert.Equal(t, 3, h.Calls())
	assert.Equal(t, 1, r.Committed())
}

func TestProcessParksOnDLQ(t *testing.T) {
	c := testConsumer(1)
	c.cfg.DLQTopic = "recalc.dlq"
	dlq := &fakeWriter{}
	c.dlq = dlq
	h := &countingHandler{failFor: 10}
	c.RegisterHandler(h)
	r := newFakeReader()
	c.readers["recalc"] = r

	c.process(kafka.Message{Topic: "recalc", Key: []byte("k"), Value: []byte("bad")})

	assert.Equal(t, 2, h.Calls())
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "recalc.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("bad"), dlq.msgs[0].Value)
	assert.Equal(t, 1, r.Committed())
}

func TestProcessWithoutDLQLeavesOffset(t *testing.T) {
	c := testConsumer(0)
	h := &countingHandler{failFor: 1}
	c.RegisterHandler(h)
	r := newFakeReader()
	c.readers["recalc"] = r

	c.process(kafka.Message{Topic: "recalc"})
	assert.Equal(t, 0, r.Committed())
}

func TestConsumerStartStop(t *testing.T) {
	c := testConsumer(0)
	h := &countingHandler{}
	c.RegisterHandler(h)
	r := newFakeReader(kafka.Message{Value: []byte("a")}, kafka.Message{Value: []byte("b")})
	c.newReader = func(string) messageReader { return r }

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return r.Committed() == 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, 2, h.Calls())
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(100*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}
