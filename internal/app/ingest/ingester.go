package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PabloGalante/voicechat/internal/domain"
	"github.com/PabloGalante/voicechat/internal/observability"
)

const (
	DefaultChunkRunes  = 1200
	defaultConcurrency = 4
)

// Sink stores embedded passages.
type Sink interface {
	Add(ctx context.Context, passages []domain.Passage) error
}

// Ingester loads text files into a similarity index, one passage per chunk.
type Ingester struct {
	embedder    domain.Embedder
	sink        Sink
	chunkRunes  int
	concurrency int
}

func NewIngester(embedder domain.Embedder, sink Sink, chunkRunes int) *Ingester {
	if chunkRunes <= 0 {
		chunkRunes = DefaultChunkRunes
	}
	return &Ingester{
		embedder:    embedder,
		sink:        sink,
		chunkRunes:  chunkRunes,
		concurrency: defaultConcurrency,
	}
}

type Stats struct {
	Files    int
	Passages int
}

// IngestFiles chunks, embeds and stores every file. The first failure stops
// the remaining work.
func (in *Ingester) IngestFiles(ctx context.Context, paths []string) (Stats, error) {
	log := observability.LoggerFromContext(ctx).With("component", "ingest")
	start := time.Now()

	var files, passages atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			n, err := in.ingestFile(gctx, path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			files.Add(1)
			passages.Add(int64(n))
			log.Debug("file ingested", "path", path, "passages", n)
			return nil
		})
	}
	err := g.Wait()

	stats := Stats{Files: int(files.Load()), Passages: int(passages.Load())}
	log.Info("ingest finished",
		"files", stats.Files,
		"passages", stats.Passages,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return stats, err
}

func (in *Ingester) ingestFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	chunks := Chunk(string(raw), in.chunkRunes)
	batch := make([]domain.Passage, 0, len(chunks))
	for i, text := range chunks {
		vec, err := in.embedder.Embed(ctx, text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		batch = append(batch, domain.Passage{
			ID:        passageID(path, i),
			Text:      text,
			Embedding: vec,
			Metadata: map[string]string{
				"source": filepath.Base(path),
				"chunk":  strconv.Itoa(i),
			},
		})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := in.sink.Add(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// passageID is stable per file and chunk so re-ingesting overwrites.
func passageID(path string, chunk int) string {
	sum := sha256.Sum256([]byte(path + "#" + strconv.Itoa(chunk)))
	return hex.EncodeToString(sum[:8])
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most maxRunes. A paragraph longer than maxRunes is cut at word boundaries.
func Chunk(text string, maxRunes int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
	)
	flush := func() {
		if size > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			size = 0
		}
	}

	for _, para := range splitParagraphs(text) {
		for _, piece := range splitLong(para, maxRunes) {
			n := len([]rune(piece))
			if size > 0 && size+2+n > maxRunes {
				flush()
			}
			if size > 0 {
				cur.WriteString("\n\n")
				size += 2
			}
			cur.WriteString(piece)
			size += n
		}
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitLong(para string, maxRunes int) []string {
	if len([]rune(para)) <= maxRunes {
		return []string{para}
	}
	var (
		out  []string
		cur  []string
		size int
	)
	for _, w := range strings.Fields(para) {
		n := len([]rune(w))
		if size > 0 && size+1+n > maxRunes {
			out = append(out, strings.Join(cur, " "))
			cur, size = nil, 0
		}
		if size > 0 {
			size++
		}
		cur = append(cur, w)
		size += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
