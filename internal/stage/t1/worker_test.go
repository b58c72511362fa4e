package t1

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	listeners []gateway.Listener
	sent      []sentRecord
}

type sentRecord struct {
	topic string
	key   []byte
	value []byte
}

func (f *fakeGateway) SetConsumers(listeners []gateway.Listener) error {
	f.listeners = listeners
	return nil
}
func (f *fakeGateway) Poll(ctx context.Context, timeout time.Duration) error { return nil }
func (f *fakeGateway) Send(ctx context.Context, topic string, key, value []byte, onDelivery func(err error)) error {
	f.sent = append(f.sent, sentRecord{topic: topic, key: key, value: value})
	return nil
}
func (f *fakeGateway) Close(ctx context.Context, flushTimeout time.Duration) error { return nil }

type fakePostings struct {
	received   []models.JobPosting
	newIndices []int
	err        error
}

func (f *fakePostings) UpsertMany(ctx context.Context, postings []models.JobPosting) ([]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.received = postings
	return f.newIndices, nil
}

const samplePageHTML = `<html><body><main>
<a role="button" href="/job-search/111" aria-label="View Software Engineer">card</a>
<a role="button" href="/job-search/222" aria-label="View Data Analyst">card</a>
<a role="button" href="/not-a-job-link" aria-label="View Something">card</a>
<a role="button" href="/job-search/333" aria-label="Missing prefix">card</a>
</main></body></html>`

func TestWorkerOnNotifyUpsertsParsedCards(t *testing.T) {
	fg := &fakeGateway{}
	fp := &fakePostings{newIndices: []int{0, 1}}
	w := &Worker{Gateway: fg, Postings: fp}

	require.NoError(t, w.onNotify(context.Background(), codec.Transform1Cmd{HTML: samplePageHTML}))
	require.Len(t, fp.received, 2)
	require.Equal(t, 111, fp.received[0].JobID)
	require.Equal(t, "Software Engineer", fp.received[0].Role)
	require.Equal(t, "https://app.joinhandshake.com/jobs/111", fp.received[0].URL)
	require.Equal(t, 222, fp.received[1].JobID)
}

func TestWorkerEmitsOnlyNewlyInsertedPostings(t *testing.T) {
	fg := &fakeGateway{}
	fp := &fakePostings{newIndices: []int{1}}
	w := &Worker{Gateway: fg, Postings: fp}

	require.NoError(t, w.onNotify(context.Background(), codec.Transform1Cmd{HTML: samplePageHTML}))
	require.Len(t, fg.sent, 1)
	require.Equal(t, codec.Extract2Topic, fg.sent[0].topic)

	got, err := codec.Extract2Codec{}.Deserialize(fg.sent[0].value)
	require.NoError(t, err)
	require.Equal(t, 222, got.JobID)
}

func TestWorkerSkipsAllWhenNoneNewlyInserted(t *testing.T) {
	fg := &fakeGateway{}
	fp := &fakePostings{newIndices: nil}
	w := &Worker{Gateway: fg, Postings: fp}

	require.NoError(t, w.onNotify(context.Background(), codec.Transform1Cmd{HTML: samplePageHTML}))
	require.Empty(t, fg.sent)
}

func TestParseCardsSkipsMissingIDAndMissingViewPrefix(t *testing.T) {
	cards, err := parseCards(samplePageHTML)
	require.NoError(t, err)
	require.Len(t, cards, 2)
}

func TestCleanRoleStripsViewPrefix(t *testing.T) {
	got, ok := cleanRole("View Software Engineer")
	require.True(t, ok)
	require.Equal(t, "Software Engineer", got)

	_, ok = cleanRole("Software Engineer")
	require.False(t, ok)
}

func TestWorkerPropagatesUpsertError(t *testing.T) {
	fg := &fakeGateway{}
	fp := &fakePostings{err: errors.New("boom")}
	w := &Worker{Gateway: fg, Postings: fp}
	err := w.onNotify(context.Background(), codec.Transform1Cmd{HTML: samplePageHTML})
	require.Error(t, err)
}
