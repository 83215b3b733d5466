package docstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func newMemStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("docs", &pebble.Options{FS: vfs.NewMem()}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearchEmptyStore(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	for _, q := range []string{"", "refund", "anything at all"} {
		results, err := s.Search(ctx, q, 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestSearchRanksAndClamps(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	n, err := s.Add(ctx, []Document{
		{Text: "A refund is processed within five business days.", Source: "policy.md"},
		{Text: "Refund refund refund: contact billing for a refund.", Source: "billing.md"},
		{Text: "Our office is closed on public holidays.", Source: "hours.md"},
		{Text: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := s.Search(ctx, "how do I get a refund?", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "billing.md", results[0].Source)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	results, err = s.Search(ctx, "refund", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = s.Search(ctx, "refund office holidays", 50)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), count)
}

func TestClearAndReopen(t *testing.T) {
	fs := vfs.NewMem()
	ctx := context.Background()

	s, err := Open("docs", &pebble.Options{FS: fs}, testLogger())
	require.NoError(t, err)
	_, err = s.Add(ctx, []Document{{Text: "alpha beta"}, {Text: "gamma delta"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open("docs", &pebble.Options{FS: fs}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = s.Add(ctx, []Document{{Text: "epsilon"}})
	require.NoError(t, err)
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, s.Clear(ctx))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClosedStore(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.Close())
	assert.False(t, s.Ready())

	_, err := s.Search(context.Background(), "x", 3)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoadDirAndReindex(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.md"), []byte("Shipping takes three days."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Support hours are nine to five."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o644))

	docs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "faq.md", docs[0].Source)
	assert.Equal(t, 0, docs[0].ChunkIndex)

	missing, err := LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, missing)

	s := newMemStore(t)
	idx := NewIndexer(s, dir, testLogger())
	n, err := idx.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// reindexing replaces rather than appends
	n, err = idx.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadFileUnsupported(t *testing.T) {
	_, err := LoadFile("report.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDocxText(t *testing.T) {
	xmlBody := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> line</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`<w:p><w:r><w:t>Second</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	text, err := docxText(strings.NewReader(xmlBody))
	require.NoError(t, err)
	assert.Equal(t, "First line\nSecond\n", text)
}
