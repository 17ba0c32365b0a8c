package listener

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return &Extractor{Dir: t.TempDir(), HTMLToText: stubHTML}
}

func TestScrapeSinglePlainMessage(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	uid := f.deliver("From: bob@example.com\r\nSubject: Test\r\n\r\nHello\nWorld\n")

	results, err := Scrape(s, newTestExtractor(t), ScrapeOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	rec, ok := results["1_bob@example.com"]
	require.True(t, ok, "keys: %v", results)
	assert.Equal(t, uid, rec.UID)
	assert.Equal(t, "Test", rec.Subject)
	assert.Equal(t, "Hello\nWorld\n", rec.PlainText)
	assert.Empty(t, rec.HTML)
	assert.Empty(t, rec.Attachments)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Subject":"Test","Plain_Text":"Hello\nWorld\n"}`, string(data))

	// fetching marked the message as seen; nothing else touched it
	assert.Empty(t, f.Calls())
	unseen, err := s.Unseen()
	require.NoError(t, err)
	assert.Empty(t, unseen)
}

func TestScrapeEmptyFolder(t *testing.T) {
	t.Parallel()

	s, _ := newFakeSession()

	results, err := Scrape(s, newTestExtractor(t), ScrapeOptions{Move: "Archive", Delete: true})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestScrapeMovePrecedence(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.deliver(testMessage)

	_, err := Scrape(s, newTestExtractor(t), ScrapeOptions{Move: "Archive", Delete: true})
	require.NoError(t, err)

	calls := f.Calls()
	assert.Equal(t, []string{"move 1 Archive", "create Archive", "move 1 Archive"}, calls)
	for _, c := range calls {
		assert.NotContains(t, c, "label", "moved messages are never soft deleted")
	}
	assert.Equal(t, []uint32{1}, f.folderUIDs("Archive"))
}

func TestScrapePostProcessing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  ScrapeOptions
		calls []string
	}{
		{
			name:  "delete",
			opts:  ScrapeOptions{Delete: true},
			calls: []string{`label 1 [\Trash]`, `label 2 [\Trash]`},
		},
		{
			name:  "unread",
			opts:  ScrapeOptions{MarkUnread: true},
			calls: []string{`remove-flags 1 [\Seen]`, `remove-flags 2 [\Seen]`},
		},
		{
			name: "unread and delete",
			opts: ScrapeOptions{MarkUnread: true, Delete: true},
			calls: []string{
				`remove-flags 1 [\Seen]`, `label 1 [\Trash]`,
				`remove-flags 2 [\Seen]`, `label 2 [\Trash]`,
			},
		},
		{
			name: "unread and move",
			opts: ScrapeOptions{MarkUnread: true, Move: "Done", Delete: true},
			calls: []string{
				`remove-flags 1 [\Seen]`, "move 1 Done", "create Done", "move 1 Done",
				`remove-flags 2 [\Seen]`, "move 2 Done",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, f := newFakeSession()
			f.deliver(testMessage)
			f.deliver("From: carol@example.com\r\nSubject: Second\r\n\r\nhi\r\n")

			results, err := Scrape(s, newTestExtractor(t), tt.opts)
			require.NoError(t, err)
			assert.Len(t, results, 2)
			assert.Contains(t, results, "1_bob@example.com")
			assert.Contains(t, results, "2_carol@example.com")
			assert.Equal(t, tt.calls, f.Calls())
		})
	}
}

func TestScrapeUnreadLeavesMessagesUnseen(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.deliver(testMessage)

	_, err := Scrape(s, newTestExtractor(t), ScrapeOptions{MarkUnread: true})
	require.NoError(t, err)

	results, err := Scrape(s, newTestExtractor(t), ScrapeOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1, "the message is scraped again")
}

func TestScrapeAttachments(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.deliver(multipartMessage)
	x := newTestExtractor(t)

	results, err := Scrape(s, x, ScrapeOptions{})
	require.NoError(t, err)

	rec := results["1_alice@example.com"]
	want := filepath.Join(x.Dir, "note.txt")
	assert.Equal(t, []string{want}, rec.Attachments)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "note content", string(data))
}

func TestScrapeAbortsOnExtractionFailure(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.deliver(testMessage)
	f.deliver("this is not a header\r\n\r\nbody")
	f.deliver(testMessage)

	results, err := Scrape(s, newTestExtractor(t), ScrapeOptions{Delete: true})
	require.ErrorIs(t, err, ErrExtraction)
	assert.Nil(t, results)

	// the first message was already post-processed
	assert.Equal(t, []string{`label 1 [\Trash]`}, f.Calls())
}

func TestScrapeAbortsOnMailboxFailure(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.noLabels = true
	f.deliver(testMessage)
	f.deliver(testMessage)

	_, err := Scrape(s, newTestExtractor(t), ScrapeOptions{Delete: true})
	require.ErrorIs(t, err, ErrMailboxOperation)
	assert.ErrorIs(t, err, ErrLabelsUnsupported)
	assert.Equal(t, []string{`label 1 [\Trash]`}, f.Calls())
}

func TestScrapeFetchFailure(t *testing.T) {
	t.Parallel()

	s, f := newFakeSession()
	f.fetchErr = errors.New("connection reset")
	f.deliver(testMessage)

	_, err := Scrape(s, newTestExtractor(t), ScrapeOptions{})
	require.ErrorIs(t, err, ErrMailboxOperation)
}

func TestScrapeNotConnected(t *testing.T) {
	t.Parallel()

	_, err := Scrape(&Session{}, newTestExtractor(t), ScrapeOptions{})
	require.ErrorIs(t, err, ErrNotConnected)
}
