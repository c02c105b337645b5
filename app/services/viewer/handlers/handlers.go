// Package handlers contains the full set of handler functions and routes
// supported by the viewer.
package handlers

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"

	"github.com/ardanlabs/multichain/business/web/mid"
	"github.com/ardanlabs/multichain/foundation/web"
	"go.uber.org/zap"
)

//go:embed assets/index.html
var assets embed.FS

// Config contains what the viewer needs to know about the node.
type Config struct {
	Shutdown chan os.Signal
	Log      *zap.SugaredLogger
	NodeURL  string
}

// UIMux constructs an http.Handler with all application routes defined.
func UIMux(cfg Config) (*web.App, error) {
	app := web.NewApp(
		cfg.Shutdown,
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
		mid.Panics(),
		mid.Cors("*"),
	)

	ig, err := newIndex(cfg.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("loading index template: %w", err)
	}
	app.Handle(http.MethodGet, "", "/", ig.handler)

	return app, nil
}

// =============================================================================

type index struct {
	tmpl *template.Template
	data struct {
		Node   string
		Events string
	}
}

func newIndex(nodeURL string) (*index, error) {
	u, err := url.Parse(nodeURL)
	if err != nil {
		return nil, fmt.Errorf("node url: %w", err)
	}

	tmpl, err := template.ParseFS(assets, "assets/index.html")
	if err != nil {
		return nil, err
	}

	ig := index{tmpl: tmpl}
	ig.data.Node = u.Host

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/events"
	ig.data.Events = u.String()

	return &ig, nil
}

func (ig *index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ig.tmpl.Execute(w, ig.data); err != nil {
		return fmt.Errorf("rendering index: %w", err)
	}

	return web.SetStatusCode(ctx, http.StatusOK)
}
