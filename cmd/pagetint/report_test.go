package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetint/internal/config"
	"pagetint/internal/tab"
)

func TestReport(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><style>
a:hover{color:red}
.card{background-color:#fff}
.card .title{margin:0}
</style></head><body><div class="card"><a class="title">x</a></div></body></html>`)
	}))
	defer page.Close()

	cfg, err := config.Defaults()
	require.NoError(t, err)
	ctx := context.Background()
	doc, err := tab.LoadPage(ctx, page.URL, cfg, nil)
	require.NoError(t, err)
	tb, err := tab.Open(cfg, doc, nil)
	require.NoError(t, err)
	defer tb.Close()
	tb.Settle(ctx, time.Second)

	var out strings.Builder
	report(&out, tb, true, []string{".card", "p["})
	got := out.String()

	assert.Contains(t, got, "quality:   4\n")
	assert.Contains(t, got, "selectors: 2\n")
	assert.Contains(t, got, "indexed:\n  a:hover\n  .card\n")
	assert.Contains(t, got, `match ".card": 1 element(s)`)
	assert.Contains(t, got, "matched: .card\n")
	assert.Contains(t, got, `match "p[":`)
}
