package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/protodemo/pkg/broker"
	"github.com/ssargent/protodemo/pkg/broker/brokertest"
	"github.com/ssargent/protodemo/pkg/codec"
	"github.com/ssargent/protodemo/pkg/storage"
)

const testTopic = "mqtt/proto/demo"

type recorder struct {
	mu        sync.Mutex
	received  int
	failures  int
	published map[bool]int
	states    []broker.ConnectionState
	stored    int
}

func newRecorder() *recorder {
	return &recorder{published: make(map[bool]int)}
}

func (r *recorder) MessageReceived(int) { r.mu.Lock(); r.received++; r.mu.Unlock() }
func (r *recorder) DecodeFailed()       { r.mu.Lock(); r.failures++; r.mu.Unlock() }
func (r *recorder) Published(ok bool)   { r.mu.Lock(); r.published[ok]++; r.mu.Unlock() }
func (r *recorder) EntriesStored(n int) { r.mu.Lock(); r.stored = n; r.mu.Unlock() }
func (r *recorder) StateChanged(s broker.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (received, failures, stored int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, r.failures, r.stored
}

type capture struct {
	mu    sync.Mutex
	views []View
}

func (c *capture) Broadcast(message []byte) {
	var v View
	if err := json.Unmarshal(message, &v); err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.views = append(c.views, v)
	c.mu.Unlock()
}

func (c *capture) last() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.views) == 0 {
		return View{}, false
	}
	return c.views[len(c.views)-1], true
}

func startSession(t *testing.T, store storage.MessageStore, opts ...Option) (*Service, *brokertest.FakeClient, func()) {
	t.Helper()
	client := brokertest.NewFakeClient()
	svc := New(client, store, testTopic, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	require.Eventually(t, func() bool {
		return svc.Snapshot().State == broker.StateConnected
	}, time.Second, 5*time.Millisecond)

	return svc, client, func() {
		cancel()
		svc.Wait()
	}
}

func TestRawString(t *testing.T) {
	assert.Equal(t, "mqtt/proto/demo: 10,3,97,98,99,16,2",
		RawString(testTopic, []byte{0x0a, 0x03, 'a', 'b', 'c', 0x10, 0x02}))
	assert.Equal(t, "t: ", RawString("t", nil))
}

func TestService_PublishRoundTrip(t *testing.T) {
	rec := newRecorder()
	out := &capture{}
	svc, client, stop := startSession(t, nil, WithRecorder(rec), WithBroadcaster(out))
	defer stop()

	payload, err := svc.Publish(context.Background(), "abc", 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x03, 0x61, 0x62, 0x63, 0x10, 0x02}, payload)

	published := client.Published()
	require.Len(t, published, 1)
	assert.Equal(t, testTopic, published[0].Topic)
	assert.Equal(t, payload, published[0].Payload)

	require.Eventually(t, func() bool { return svc.Snapshot().Received == 1 }, time.Second, 5*time.Millisecond)

	view := svc.Snapshot()
	require.NotNil(t, view.Decoded)
	assert.Equal(t, codec.SimpleRequest{Name: "abc", ID: 2}, *view.Decoded)
	assert.Equal(t, `{"name":"abc","id":2}`, view.DecodedJSON)
	assert.Equal(t, "0a036162631002", view.LastHex)
	assert.Equal(t, "mqtt/proto/demo: 10,3,97,98,99,16,2", view.LastRaw)
	assert.Empty(t, view.DecodeError)
	assert.NotNil(t, view.ReceivedAt)

	require.Eventually(t, func() bool {
		v, ok := out.last()
		return ok && v.Received == 1
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, 1, rec.published[true])
	rec.mu.Unlock()
}

func TestService_MalformedMessageClearsDecoded(t *testing.T) {
	rec := newRecorder()
	svc, client, stop := startSession(t, nil, WithRecorder(rec))
	defer stop()

	require.True(t, client.Deliver(testTopic, []byte{0x08, 0x01}))
	require.Eventually(t, func() bool { return svc.Snapshot().Received == 1 }, time.Second, 5*time.Millisecond)
	assert.NotNil(t, svc.Snapshot().Decoded)

	require.True(t, client.Deliver(testTopic, []byte{0x0a, 0x05, 0x61}))
	require.Eventually(t, func() bool { return svc.Snapshot().Received == 2 }, time.Second, 5*time.Millisecond)

	view := svc.Snapshot()
	assert.Nil(t, view.Decoded)
	assert.Empty(t, view.DecodedJSON)
	assert.Contains(t, view.DecodeError, "malformed input")
	assert.Equal(t, "0a0561", view.LastHex)

	received, failures, _ := rec.snapshot()
	assert.Equal(t, 2, received)
	assert.Equal(t, 1, failures)
}

func TestService_EmptyPayloadDecodesToDefaults(t *testing.T) {
	svc, client, stop := startSession(t, nil)
	defer stop()

	require.True(t, client.Deliver(testTopic, nil))
	require.Eventually(t, func() bool { return svc.Snapshot().Received == 1 }, time.Second, 5*time.Millisecond)

	view := svc.Snapshot()
	require.NotNil(t, view.Decoded)
	assert.Equal(t, codec.SimpleRequest{}, *view.Decoded)
	assert.Equal(t, "{}", view.DecodedJSON)
}

func TestService_HistoryIsStored(t *testing.T) {
	store, err := storage.NewPebbleStore(t.TempDir(), 10)
	require.NoError(t, err)
	defer store.Close()

	rec := newRecorder()
	svc, client, stop := startSession(t, store, WithRecorder(rec))
	defer stop()

	_, err = svc.Publish(context.Background(), "alice", 7)
	require.NoError(t, err)
	require.True(t, client.Deliver(testTopic, []byte{0xff}))

	require.Eventually(t, func() bool {
		_, _, stored := rec.snapshot()
		return stored == 2
	}, time.Second, 5*time.Millisecond)

	items, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "ff", items[0].Hex)
	assert.Nil(t, items[0].Decoded)
	assert.NotEmpty(t, items[0].DecodeError)

	require.NotNil(t, items[1].Decoded)
	assert.Equal(t, "alice", items[1].Decoded.Name)
	assert.Equal(t, int32(7), items[1].Decoded.ID)
}

func TestService_PublishFailure(t *testing.T) {
	rec := newRecorder()
	svc, client, stop := startSession(t, nil, WithRecorder(rec))
	defer stop()

	client.PublishErr = errors.New("broker gone")
	_, err := svc.Publish(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")

	rec.mu.Lock()
	assert.Equal(t, 1, rec.published[false])
	rec.mu.Unlock()
}

func TestService_StartErrors(t *testing.T) {
	t.Run("connect", func(t *testing.T) {
		client := brokertest.NewFakeClient()
		client.ConnectErr = errors.New("refused")
		svc := New(client, nil, testTopic)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err := svc.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refused")
	})

	t.Run("wildcard topic", func(t *testing.T) {
		svc := New(brokertest.NewFakeClient(), nil, "mqtt/#")
		err := svc.Start(context.Background())
		assert.ErrorIs(t, err, broker.ErrInvalidTopic)
	})
}

func TestService_Disconnect(t *testing.T) {
	t.Run("surfaces not connected", func(t *testing.T) {
		svc := New(brokertest.NewFakeClient(), nil, testTopic)
		assert.ErrorIs(t, svc.Disconnect(), broker.ErrNotConnected)
	})

	t.Run("clean disconnect updates state", func(t *testing.T) {
		svc, _, stop := startSession(t, nil)
		defer stop()

		require.NoError(t, svc.Disconnect())
		require.Eventually(t, func() bool {
			return svc.Snapshot().State == broker.StateDisconnected
		}, time.Second, 5*time.Millisecond)
	})
}

func TestService_SnapshotIsACopy(t *testing.T) {
	svc, client, stop := startSession(t, nil)
	defer stop()

	require.True(t, client.Deliver(testTopic, []byte{0x10, 0x05}))
	require.Eventually(t, func() bool { return svc.Snapshot().Received == 1 }, time.Second, 5*time.Millisecond)

	view := svc.Snapshot()
	view.Decoded.ID = 99
	assert.Equal(t, int32(5), svc.Snapshot().Decoded.ID)
}
