package tab

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetint/internal/background"
	"pagetint/internal/config"
	"pagetint/internal/engine"
	"pagetint/internal/store"
)

// servers starts a stylesheet host without CORS headers and a page that links
// to it.
func servers(t *testing.T) (page, css *httptest.Server) {
	t.Helper()
	css = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, ".remote{background-color:blue}")
	}))
	t.Cleanup(css.Close)
	page = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head>
<style>.inline{color:red}</style>
<link rel="stylesheet" href="`+css.URL+`/a.css">
</head><body><div id="x" class="inline remote"></div></body></html>`)
	}))
	t.Cleanup(page.Close)
	return page, css
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Defaults()
	require.NoError(t, err)
	return cfg
}

func TestSettleLoadsCrossOriginSheets(t *testing.T) {
	page, css := servers(t)
	cfg := testConfig(t)
	ctx := context.Background()

	doc, err := LoadPage(ctx, page.URL+"/", cfg, nil)
	require.NoError(t, err)
	tb, err := Open(cfg, doc, nil)
	require.NoError(t, err)
	defer tb.Close()

	tb.Settle(ctx, 5*time.Second)

	assert.Equal(t, []string{".inline", ".remote"}, tb.Engine.Selectors())
	assert.Contains(t, tb.Engine.StyleRefs(), css.URL+"/a.css")

	els, err := doc.Select("#x")
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Equal(t, []string{".inline", ".remote"}, tb.Engine.ElementMatchedSelectors(els[0]))
}

func TestSettleThroughBackgroundServer(t *testing.T) {
	page, css := servers(t)
	cfg := testConfig(t)
	svc := background.NewService(background.Config{})
	defer svc.Close()
	api := httptest.NewServer(background.NewServer(svc, nil))
	defer api.Close()
	cfg.Background.URL = api.URL

	ctx := context.Background()
	doc, err := LoadPage(ctx, page.URL+"/", cfg, nil)
	require.NoError(t, err)
	tb, err := Open(cfg, doc, nil)
	require.NoError(t, err)
	defer tb.Close()

	tb.Settle(ctx, 5*time.Second)
	assert.Contains(t, tb.Engine.StyleRefs(), css.URL+"/a.css")
	assert.Contains(t, tb.Engine.Selectors(), ".remote")
}

func TestSessionSurvivesRestart(t *testing.T) {
	page, _ := servers(t)
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Kind: "sqlite", Path: filepath.Join(t.TempDir(), "session.db"), Session: "tab-1"}
	ctx := context.Background()

	run := func() []string {
		doc, err := LoadPage(ctx, page.URL+"/", cfg, nil)
		require.NoError(t, err)
		tb, err := Open(cfg, doc, nil)
		require.NoError(t, err)
		tb.Settle(ctx, 5*time.Second)
		els, err := doc.Select("#x")
		require.NoError(t, err)
		got := tb.Engine.PreFilteredSelectors(els[0])
		require.NoError(t, tb.Close())
		return got
	}
	first := run()
	assert.Equal(t, []string{".inline", ".remote"}, first)

	st, err := store.OpenSQLite(cfg.Store.Path, "tab-1", nil)
	require.NoError(t, err)
	defer st.Close()
	data, ok, err := st.Get(engine.SelectorsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"DIV#x.inline remote":[".inline",".remote"]}`, data)

	assert.Equal(t, first, run())
}

func TestSnapshotPersistedWhileOpen(t *testing.T) {
	page, _ := servers(t)
	cfg := testConfig(t)
	cfg.Engine.PersistInterval = 10 * time.Millisecond
	ctx := context.Background()

	doc, err := LoadPage(ctx, page.URL+"/", cfg, nil)
	require.NoError(t, err)
	tb, err := Open(cfg, doc, nil)
	require.NoError(t, err)
	defer tb.Close()

	tb.Settle(ctx, 5*time.Second)
	els, err := doc.Select("#x")
	require.NoError(t, err)
	require.Len(t, els, 1)
	tb.Engine.PreFilteredSelectors(els[0])

	require.Eventually(t, func() bool {
		_, ok, err := tb.Store.Get(engine.SelectorsKey)
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)
	data, _, err := tb.Store.Get(engine.SelectorsKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{"DIV#x.inline remote":[".inline",".remote"]}`, data)
}

func TestOpenStoreKinds(t *testing.T) {
	tests := []struct {
		cfg     config.StoreConfig
		wantErr bool
	}{
		{cfg: config.StoreConfig{Kind: "memory", Quota: 10}},
		{cfg: config.StoreConfig{Kind: "none"}},
		{cfg: config.StoreConfig{Kind: "sqlite", Path: ":memory:"}},
		{cfg: config.StoreConfig{Kind: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Kind, func(t *testing.T) {
			st, closer, err := OpenStore(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, st)
			assert.NoError(t, closer())
		})
	}
}

func TestLoadPageError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := LoadPage(context.Background(), srv.URL, testConfig(t), nil)
	assert.Error(t, err)
}
