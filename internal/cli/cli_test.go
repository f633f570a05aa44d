package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/instacrawl/internal/codec"
	"github.com/shaiso/instacrawl/internal/domain"
	"github.com/shaiso/instacrawl/internal/mq"
	"github.com/shaiso/instacrawl/internal/repo"
)

// --- Fakes ---

// fakeAcknowledger запоминает ack/nack по delivery tag.
type fakeAcknowledger struct {
	acked    []uint64
	requeued []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	if requeue {
		a.requeued = append(a.requeued, tag)
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type publishedMsg struct {
	body    []byte
	headers map[string]any
}

// fakeBroker выдаёт сообщения по очереди; nack с requeue не возвращает
// сообщение в выдачу, как и неподтверждённая доставка в RabbitMQ.
type fakeBroker struct {
	queues     map[mq.Queue][]amqp.Delivery
	ack        *fakeAcknowledger
	published  []publishedMsg
	publishErr error
	nextTag    uint64
	closed     bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		queues: make(map[mq.Queue][]amqp.Delivery),
		ack:    &fakeAcknowledger{},
	}
}

func (b *fakeBroker) push(queue mq.Queue, body []byte, headers amqp.Table) {
	b.queues[queue] = append(b.queues[queue], amqp.Delivery{Body: body, Headers: headers})
}

func (b *fakeBroker) PublishWork(_ context.Context, body []byte, headers map[string]any) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedMsg{body: body, headers: headers})
	return nil
}

func (b *fakeBroker) Get(_ context.Context, queue mq.Queue) (*mq.Delivery, error) {
	q := b.queues[queue]
	if len(q) == 0 {
		return nil, mq.ErrEmptyQueue
	}
	raw := q[0]
	b.queues[queue] = q[1:]

	b.nextTag++
	raw.DeliveryTag = b.nextTag
	raw.Acknowledger = b.ack
	return &mq.Delivery{Raw: raw}, nil
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

type fakeArchive struct {
	inserted  []*domain.ArchivedFailure
	insertErr error
}

func (a *fakeArchive) Insert(_ context.Context, f *domain.ArchivedFailure) error {
	if a.insertErr != nil {
		return a.insertErr
	}
	a.inserted = append(a.inserted, f)
	return nil
}

func (a *fakeArchive) GetByID(_ context.Context, id uuid.UUID) (*domain.ArchivedFailure, error) {
	for _, f := range a.inserted {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (a *fakeArchive) List(_ context.Context, limit int) ([]domain.ArchivedFailure, error) {
	var out []domain.ArchivedFailure
	for _, f := range a.inserted {
		out = append(out, *f)
	}
	return out, nil
}

func deadLetter(t *testing.T, original string) []byte {
	t.Helper()
	body, err := codec.EncodeFailure([]byte(original), "max retries exceeded, last error: boom", time.Unix(1735732800, 0))
	require.NoError(t, err)
	return body
}

// --- Send Tests ---

func TestBuildRequest_DefaultRequestID(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	req, body, err := buildRequest("https://www.instagram.com/reel/ABC123/", "", 1, now)
	require.NoError(t, err)

	assert.Equal(t, "manual-20250304-050607", req.RequestID)
	assert.Equal(t, "ABC123", req.Shortcode)
	assert.Equal(t, domain.ContentKindReel, req.Kind)
	assert.JSONEq(t, `{"instagram_url":"https://www.instagram.com/reel/ABC123/","request_id":"manual-20250304-050607","priority":1}`, string(body))
}

func TestBuildRequest_RejectsInvalidURL(t *testing.T) {
	_, _, err := buildRequest("https://www.facebook.com/x", "r1", 1, time.Now())
	assert.Error(t, err)
}

func TestSendCmd_Publishes(t *testing.T) {
	b := newFakeBroker()
	var stdout, stderr bytes.Buffer

	cmd := NewSendCmd(
		func() (Broker, error) { return b, nil },
		func() *Output { return newOutputTo(true, &stdout, &stderr) },
	)
	cmd.SetArgs([]string{"https://www.instagram.com/p/XYZ/", "--request-id", "r-42", "--priority", "3"})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())
	require.Len(t, b.published, 1)
	assert.JSONEq(t, `{"instagram_url":"https://www.instagram.com/p/XYZ/","request_id":"r-42","priority":3}`, string(b.published[0].body))
	assert.True(t, b.closed)
	assert.Contains(t, stderr.String(), "Request sent")
}

func TestSendCmd_InvalidURLNeverConnects(t *testing.T) {
	cmd := NewSendCmd(
		func() (Broker, error) { return nil, errors.New("should not connect") },
		func() *Output { return newOutputTo(false, &bytes.Buffer{}, &bytes.Buffer{}) },
	)
	cmd.SetArgs([]string{"not a url"})
	cmd.SetContext(context.Background())
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "should not connect")
}

// --- Results Tests ---

func TestDrainResults(t *testing.T) {
	b := newFakeBroker()
	b.push(mq.QueueResults, []byte(`{"url":"https://www.instagram.com/p/A/","author":"chef","timestamp":"2025-01-01T12:00:00Z","media_urls":["m1","m2"],"likes_count":7}`), nil)
	b.push(mq.QueueResults, []byte(`garbage`), nil)
	b.push(mq.QueueResults, []byte(`{"url":"https://www.instagram.com/p/C/","timestamp":"2025-01-01T12:00:00Z"}`), nil)

	rows, err := drainResults(context.Background(), b, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "chef", rows[0].Author)
	assert.Equal(t, 2, rows[0].Media)
	assert.Equal(t, "7", rows[0].Likes)
	assert.Equal(t, "2025-01-01T12:00:00Z", rows[0].Timestamp)

	assert.NotEmpty(t, rows[1].Error)
	assert.Nil(t, rows[1].Raw)

	// limit соблюдается, оба прочитанных сообщения подтверждены
	assert.Equal(t, []uint64{1, 2}, b.ack.acked)
	assert.Len(t, b.queues[mq.QueueResults], 1)
}

// --- DLQ Tests ---

func TestArchiveDeadLetters(t *testing.T) {
	b := newFakeBroker()
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.instagram.com/p/A/"}`), nil)
	b.push(mq.QueueFailed, []byte(`not a dead letter`), nil)

	archive := &fakeArchive{}
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	n, err := archiveDeadLetters(context.Background(), b, archive, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{1, 2}, b.ack.acked)

	require.Len(t, archive.inserted, 2)
	first := archive.inserted[0]
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, "https://www.instagram.com/p/A/", first.SourceURL)
	assert.Equal(t, "max retries exceeded, last error: boom", first.Error)
	assert.True(t, first.FailedAt.Equal(time.Unix(1735732800, 0)))

	second := archive.inserted[1]
	assert.Contains(t, second.Error, "unreadable dead letter")
	assert.JSONEq(t, `"not a dead letter"`, string(second.OriginalMessage))
	assert.True(t, second.FailedAt.Equal(now))
}

func TestArchiveDeadLetters_InsertFailureRequeues(t *testing.T) {
	b := newFakeBroker()
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.instagram.com/p/A/"}`), nil)
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.instagram.com/p/B/"}`), nil)

	archive := &fakeArchive{insertErr: errors.New("db down")}

	n, err := archiveDeadLetters(context.Background(), b, archive, 0, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, b.ack.acked)
	assert.Equal(t, []uint64{1}, b.ack.requeued)
	assert.Len(t, b.queues[mq.QueueFailed], 1, "archiving stops at the first insert failure")
}

func TestArchiveDeadLetters_DuplicateIsAcked(t *testing.T) {
	b := newFakeBroker()
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.instagram.com/p/A/"}`), nil)

	n, err := archiveDeadLetters(context.Background(), b, &fakeArchive{insertErr: repo.ErrAlreadyExists}, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint64{1}, b.ack.acked)
}

func TestReplayDeadLetters(t *testing.T) {
	b := newFakeBroker()
	b.push(mq.QueueFailed,
		deadLetter(t, `[{"instagram_url":"https://www.instagram.com/p/A/","request_id":"r1"}]`),
		amqp.Table{"x-retry-count": int32(3), "x-last-error": "boom", "trace": "t1"},
	)
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.facebook.com/x"}`), nil)
	b.push(mq.QueueFailed, []byte(`garbage`), nil)

	stats, err := replayDeadLetters(context.Background(), b, 0)
	require.NoError(t, err)
	assert.Equal(t, replayStats{Replayed: 1, Skipped: 2}, stats)

	require.Len(t, b.published, 1)
	var msg []map[string]any
	require.NoError(t, json.Unmarshal(b.published[0].body, &msg))
	assert.Equal(t, "r1", msg[0]["request_id"])
	assert.Equal(t, map[string]any{"trace": "t1"}, b.published[0].headers)

	assert.Equal(t, []uint64{1}, b.ack.acked)
	assert.ElementsMatch(t, []uint64{2, 3}, b.ack.requeued)
}

func TestReplayDeadLetters_PublishFailureRequeues(t *testing.T) {
	b := newFakeBroker()
	b.publishErr = errors.New("channel closed")
	b.push(mq.QueueFailed, deadLetter(t, `{"instagram_url":"https://www.instagram.com/p/A/"}`), nil)

	stats, err := replayDeadLetters(context.Background(), b, 0)
	assert.Error(t, err)
	assert.Equal(t, 0, stats.Replayed)
	assert.Empty(t, b.ack.acked)
	assert.Equal(t, []uint64{1}, b.ack.requeued)
}

func TestDLQListCmd_Table(t *testing.T) {
	archive := &fakeArchive{inserted: []*domain.ArchivedFailure{{
		ID:        uuid.MustParse("0b7d9c9e-5c1b-4f7e-9a55-3f2d3c1f0a11"),
		SourceURL: "https://www.instagram.com/p/A/",
		Error:     "boom",
		FailedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}}}
	var stdout bytes.Buffer

	cmd := NewDLQCmd(
		func() (Broker, error) { return nil, errors.New("not used") },
		func(context.Context) (Archive, func(), error) { return archive, func() {}, nil },
		func() *Output { return newOutputTo(false, &stdout, &bytes.Buffer{}) },
	)
	cmd.SetArgs([]string{"list"})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "SOURCE_URL")
	assert.Contains(t, stdout.String(), "0b7d9c9e-5c1b-4f7e-9a55-3f2d3c1f0a11")
	assert.Contains(t, stdout.String(), "2025-01-01T12:00:00Z")
}

func TestDLQShowCmd(t *testing.T) {
	id := uuid.MustParse("0b7d9c9e-5c1b-4f7e-9a55-3f2d3c1f0a11")
	archive := &fakeArchive{inserted: []*domain.ArchivedFailure{{
		ID:              id,
		SourceURL:       "https://www.instagram.com/p/A/",
		OriginalMessage: json.RawMessage(`{"instagram_url":"https://www.instagram.com/p/A/"}`),
		Error:           "max retries exceeded, last error: boom",
		FailedAt:        time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		ArchivedAt:      time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC),
	}}}

	run := func(args ...string) (string, error) {
		var stdout bytes.Buffer
		cmd := NewDLQCmd(
			func() (Broker, error) { return nil, errors.New("not used") },
			func(context.Context) (Archive, func(), error) { return archive, func() {}, nil },
			func() *Output { return newOutputTo(false, &stdout, &bytes.Buffer{}) },
		)
		cmd.SetArgs(append([]string{"show"}, args...))
		cmd.SetContext(context.Background())
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		err := cmd.Execute()
		return stdout.String(), err
	}

	out, err := run(id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "max retries exceeded, last error: boom")
	assert.Contains(t, out, `{"instagram_url":"https://www.instagram.com/p/A/"}`)
	assert.Contains(t, out, "2025-01-02T12:00:00Z")

	_, err = run(uuid.NewString())
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = run("not-a-uuid")
	assert.Error(t, err)
}

// --- Output Tests ---

func TestOutput_Table(t *testing.T) {
	var stdout bytes.Buffer
	out := newOutputTo(false, &stdout, &bytes.Buffer{})

	out.Print([]string{"ID", "NAME"}, [][]string{{"1", "first"}}, nil)

	assert.Equal(t, "ID  NAME\n--  ----\n1   first\n", stdout.String())
}

func TestOutput_JSON(t *testing.T) {
	var stdout bytes.Buffer
	out := newOutputTo(true, &stdout, &bytes.Buffer{})

	out.Print(nil, nil, map[string]int{"n": 1})

	assert.JSONEq(t, `{"n":1}`, stdout.String())
}
