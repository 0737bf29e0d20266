package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/voicechat/internal/adapters/llm"
	"github.com/PabloGalante/voicechat/internal/adapters/vectorstore"
	"github.com/PabloGalante/voicechat/internal/app/ingest"
	"github.com/PabloGalante/voicechat/internal/app/retrieval"
)

func TestChunkPacksParagraphs(t *testing.T) {
	text := "alpha beta\n\ngamma\r\n\r\ndelta epsilon\n\n\n\n"

	require.Equal(t, []string{"alpha beta\n\ngamma\n\ndelta epsilon"}, ingest.Chunk(text, 100))
	require.Equal(t, []string{"alpha beta\n\ngamma", "delta epsilon"}, ingest.Chunk(text, 20))
	require.Empty(t, ingest.Chunk("  \n\n ", 100))
}

func TestChunkSplitsLongParagraphOnWords(t *testing.T) {
	para := strings.Repeat("word ", 10)

	chunks := ingest.Chunk(para, 12)
	require.Len(t, chunks, 5)
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), 12)
		require.Equal(t, "word word", c)
	}
}

func TestIngestFilesIntoChromem(t *testing.T) {
	dir := t.TempDir()
	manual := filepath.Join(dir, "model-x.txt")
	require.NoError(t, os.WriteFile(manual, []byte(
		"The Model X manual is on the support page.\n\nSupport phone: 555-0100.",
	), 0o600))
	warranty := filepath.Join(dir, "warranty.txt")
	require.NoError(t, os.WriteFile(warranty, []byte("Bananas ripen at room temperature."), 0o600))

	emb := llm.NewHashEmbedder(256)
	store, err := vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{})
	require.NoError(t, err)

	stats, err := ingest.NewIngester(emb, store, 45).IngestFiles(context.Background(), []string{manual, warranty})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Files)
	require.Equal(t, 3, stats.Passages)
	require.Equal(t, 3, store.Count())

	docs, err := retrieval.NewClient(emb, store, 1).Retrieve(context.Background(), "where is the model x manual", "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"The Model X manual is on the support page."}, docs)
}

func TestIngestFilesMissingFile(t *testing.T) {
	store, err := vectorstore.NewChromemSearcher(vectorstore.ChromemConfig{})
	require.NoError(t, err)

	_, err = ingest.NewIngester(llm.NewHashEmbedder(0), store, 0).
		IngestFiles(context.Background(), []string{filepath.Join(t.TempDir(), "missing.txt")})
	require.Error(t, err)
}
