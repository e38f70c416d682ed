package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestItemFromMessage(t *testing.T) {
	item := ItemFromMessage(&gmailv1.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "Big savings inside",
		LabelIds:     []string{"INBOX", "UNREAD"},
		InternalDate: 1700000000000,
		Payload: &gmailv1.MessagePart{Headers: []*gmailv1.MessagePartHeader{
			{Name: "From", Value: `"Shop News" <News@Shop.com>`},
			{Name: "Subject", Value: "Weekly deals"},
			{Name: "List-Unsubscribe", Value: "<mailto:u@shop.com>, <https://shop.com/unsub?id=1>"},
		}},
	})

	assert.Equal(t, "m1", item.ID)
	assert.Equal(t, "t1", item.ThreadID)
	assert.Equal(t, "news@shop.com", item.Sender)
	assert.Equal(t, "shop.com", item.Domain())
	assert.Equal(t, "Weekly deals", item.Subject)
	assert.True(t, item.HasUnsubscribe)
	assert.Equal(t, "https://shop.com/unsub?id=1", item.UnsubscribeLink)
	assert.Equal(t, int64(1700000000), item.ReceivedAt.Unix())
}

func TestItemWithoutPayload(t *testing.T) {
	item := ItemFromMessage(&gmailv1.Message{Id: "m2"})
	assert.Equal(t, "m2", item.ID)
	assert.False(t, item.HasUnsubscribe)
}

func TestCodeFromInput(t *testing.T) {
	code, err := codeFromInput("  4/abc  ")
	require.NoError(t, err)
	assert.Equal(t, "4/abc", code)

	code, err = codeFromInput("http://127.0.0.1:5555/?state=state-token&code=4/xyz")
	require.NoError(t, err)
	assert.Equal(t, "4/xyz", code)

	_, err = codeFromInput("https://127.0.0.1/?state=x")
	assert.Error(t, err)
	_, err = codeFromInput("")
	assert.Error(t, err)
}

// fakeGmail serves the handful of endpoints the client uses
type fakeGmail struct {
	mu       sync.Mutex
	created  []string
	modified []gmailv1.ModifyMessageRequest
	pages    int
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")

	switch {
	case path == "labels" && r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(gmailv1.ListLabelsResponse{Labels: []*gmailv1.Label{
			{Id: "INBOX", Name: "INBOX"},
			{Id: "Label_1", Name: "TRIAGE_REVISIT"},
		}})
	case path == "labels" && r.Method == http.MethodPost:
		var l gmailv1.Label
		json.NewDecoder(r.Body).Decode(&l)
		f.created = append(f.created, l.Name)
		json.NewEncoder(w).Encode(gmailv1.Label{Id: "Label_new", Name: l.Name})
	case strings.HasSuffix(path, "/modify"):
		var req gmailv1.ModifyMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.modified = append(f.modified, req)
		json.NewEncoder(w).Encode(gmailv1.Message{Id: "m1"})
	case path == "messages":
		f.pages++
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(gmailv1.ListMessagesResponse{
				Messages:      []*gmailv1.Message{{Id: "a", ThreadId: "ta"}, {Id: "b", ThreadId: "tb"}},
				NextPageToken: "p2",
			})
			return
		}
		json.NewEncoder(w).Encode(gmailv1.ListMessagesResponse{
			Messages: []*gmailv1.Message{{Id: "c", ThreadId: "tc"}},
		})
	case strings.HasPrefix(path, "threads/"):
		json.NewEncoder(w).Encode(gmailv1.Thread{Id: "t", Messages: []*gmailv1.Message{{Id: "1"}, {Id: "2"}}})
	default:
		http.NotFound(w, r)
	}
}

func newFakeClient(t *testing.T) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gmailv1.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)
	return NewClient(svc, "me", 0, zap.NewNop()), fake
}

func TestModifyResolvesAndCreatesLabels(t *testing.T) {
	c, fake := newFakeClient(t)

	require.NoError(t, c.Modify(context.Background(), "m1", []string{"TRIAGE_REVISIT"}, []string{"INBOX"}))
	require.NoError(t, c.Modify(context.Background(), "m1", []string{"TRIAGE_OPT_OUT"}, []string{"INBOX"}))

	assert.Equal(t, []string{"TRIAGE_OPT_OUT"}, fake.created)
	require.Len(t, fake.modified, 2)
	assert.Equal(t, []string{"Label_1"}, fake.modified[0].AddLabelIds)
	assert.Equal(t, []string{"INBOX"}, fake.modified[0].RemoveLabelIds)
	assert.Equal(t, []string{"Label_new"}, fake.modified[1].AddLabelIds)
}

func TestSearchFollowsPages(t *testing.T) {
	c, fake := newFakeClient(t)

	refs, err := c.Search(context.Background(), "in:inbox", 10)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "tc", refs[2].ThreadID)
	assert.Equal(t, 2, fake.pages)

	ids, err := c.List(context.Background(), "in:inbox", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestThreadSize(t *testing.T) {
	c, _ := newFakeClient(t)
	n, err := c.ThreadSize(context.Background(), "t9")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
