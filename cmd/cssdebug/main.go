package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"pagetint/internal/config"
	"pagetint/internal/tab"
)

func main() {
	url := "https://example.com/"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}
	class := ""
	if len(os.Args) > 2 {
		class = os.Args[2]
	}

	cfg, err := config.Load(os.Getenv("PAGETINT_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	cfg.Store.Kind = "memory"
	logger, closeLog, err := cfg.Logging.Prepare()
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	ctx := context.Background()
	log.Printf("fetch %s", url)
	doc, err := tab.LoadPage(ctx, url, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	tb, err := tab.Open(cfg, doc, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer tb.Close()
	tb.Settle(ctx, 20*time.Second)

	q, _ := tb.Engine.SelectorsQuality()
	log.Printf("quality=%d selectors=%d refs=%d", q, tb.Engine.SelectorsCount(), len(tb.Engine.StyleRefs()))

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			el := doc.Element(n)
			if class == "" || hasClass(el.Classes(), class) {
				pre := tb.Engine.PreFilteredSelectors(el)
				if len(pre) > 0 {
					fmt.Printf("node=%s id=%q classes=%v transition=%t\n  prefiltered=%v\n  matched=%v\n",
						n.Data, el.ID(), el.Classes(), el.HasTransition(), pre, tb.Engine.ElementMatchedSelectors(el))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc.Root())
}

func hasClass(classes []string, want string) bool {
	for _, c := range classes {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}
