package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imovelworker/internal/checkpoint"
	"imovelworker/internal/engine"
	"imovelworker/internal/export"
	"imovelworker/internal/extractor"
	"imovelworker/internal/fetcher"
	"imovelworker/internal/listing"
	"imovelworker/services/cache"

	"github.com/stretchr/testify/assert"
)

// pageHTML renders one OLX-style result page with count cards, ids starting
// at firstID. count 0 renders a page with no cards.
func pageHTML(firstID, count int) string {
	body := ""
	for i := 0; i < count; i++ {
		id := firstID + i
		body += fmt.Sprintf(`
		<section class="olx-adcard">
			<a class="olx-adcard__link" href="/imovel/casa-teste-%d"></a>
			<h2 class="olx-adcard__title">Casa Teste %d</h2>
			<h3 class="olx-adcard__price">R$ 2.800</h3>
			<p class="olx-adcard__location">São José dos Campos, Jardim Esplanada</p>
		</section>`, id, id)
	}
	return "<!DOCTYPE html><html><body>" + body + "</body></html>"
}

// portalServer serves three pages of listings and empty pages beyond
func portalServer() *httptest.Server {
	pages := map[string]string{
		"":  pageHTML(1001, 4),
		"2": pageHTML(2001, 4),
		"3": pageHTML(3001, 2),
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		html, ok := pages[r.URL.Query().Get("o")]
		if !ok {
			html = pageHTML(0, 0)
		}
		io.WriteString(w, html)
	}))
}

func newPipeline(t *testing.T, serverURL, checkpointDir string, opts engine.Options) *engine.Engine {
	t.Helper()

	cfg, err := fetcher.PortalConfigFor("olx", serverURL)
	assert.NoError(t, err)

	f := fetcher.NewPortalFetcher(cfg, cache.NewMemoryService(), 0, 0)
	ext := extractor.New(cfg.ExtractorConfig())
	store := checkpoint.NewFileStore(checkpointDir, "integration")

	return engine.New(f, ext, store, nil, opts)
}

// TestCollectionRunEndToEnd drives a full run from HTTP fetch to file export
func TestCollectionRunEndToEnd(t *testing.T) {
	server := portalServer()
	defer server.Close()

	dir := t.TempDir()
	eng := newPipeline(t, server.URL, dir, engine.Options{
		MaxPages:       20,
		EmptyPageLimit: 2,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	})

	state, err := eng.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, state)

	results := eng.Results()
	assert.Len(t, results, 10)
	assert.Equal(t, "1001", results[0].ID)
	assert.Equal(t, "3002", results[9].ID)
	assert.Equal(t, "olx", results[0].Portal)
	assert.InDelta(t, 2800.0, results[0].Price, 0.001)
	assert.Equal(t, "Jardim Esplanada", results[0].Neighborhood)

	// Export both formats and read them back
	writer := export.NewWriter(dir)
	assert.NoError(t, writer.WriteJSON("listings.json", results))
	assert.NoError(t, writer.WriteCSV("listings.csv", results))

	data, err := os.ReadFile(filepath.Join(dir, "listings.json"))
	assert.NoError(t, err)
	var decoded []listing.Listing
	assert.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 10)

	csvFile, err := os.Open(filepath.Join(dir, "listings.csv"))
	assert.NoError(t, err)
	defer csvFile.Close()
	rows, err := csv.NewReader(csvFile).ReadAll()
	assert.NoError(t, err)
	assert.Len(t, rows, 11)
	assert.Equal(t, "1001", rows[1][0])
}

// TestCollectionRunInterruptAndResume cancels mid-run and resumes from the
// checkpoint without collecting duplicates.
func TestCollectionRunInterruptAndResume(t *testing.T) {
	server := portalServer()
	defer server.Close()

	dir := t.TempDir()
	opts := engine.Options{
		MaxPages:       20,
		EmptyPageLimit: 2,
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	}

	// First run: cancel before any page so the run pauses with an empty
	// checkpoint on disk.
	ctx, cancel := context.WithCancel(context.Background())
	eng := newPipeline(t, server.URL, dir, opts)
	cancel()
	state, err := eng.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, engine.StatePaused, state)

	// Second run resumes and finishes the inventory
	eng2 := newPipeline(t, server.URL, dir, opts)
	state, err = eng2.Run(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, engine.StateCompleted, state)

	results := eng2.Results()
	assert.Len(t, results, 10)
	seen := map[string]bool{}
	for _, l := range results {
		assert.False(t, seen[l.ID], "duplicate id %s", l.ID)
		seen[l.ID] = true
	}
}
