package lsp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tektoncd/tekton-lsp/internal/index"
	"github.com/tektoncd/tekton-lsp/internal/metrics"
	"github.com/tektoncd/tekton-lsp/internal/schema"
)

// Visualizer is the debug HTTP endpoint: a live mermaid graph of the
// resources in the index and the references between them, and the
// Prometheus metrics.
type Visualizer struct {
	index   *index.Index
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	focus *index.Key
	srv   *http.Server
}

func NewVisualizer(ix *index.Index, m *metrics.Metrics, logger *zap.Logger) *Visualizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Visualizer{index: ix, metrics: m, logger: logger}
}

// SetFocus narrows the graph to key and its neighbours.
func (v *Visualizer) SetFocus(key index.Key) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.focus = &key
}

func (v *Visualizer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", v.handleIndex)
	mux.HandleFunc("/graph", v.handleGraph)
	if v.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(v.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on addr and serves in the background.
func (v *Visualizer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: v.Handler()}
	v.mu.Lock()
	v.srv = srv
	v.mu.Unlock()

	v.logger.Info("debug server listening", zap.String("url", "http://"+ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			v.logger.Error("debug server failed", zap.Error(err))
		}
	}()
	return nil
}

func (v *Visualizer) Shutdown(ctx context.Context) error {
	v.mu.Lock()
	srv := v.srv
	v.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (v *Visualizer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	html := `
<!DOCTYPE html>
<html>
<head>
    <title>Tekton resources</title>
    <script src="https://cdn.jsdelivr.net/npm/mermaid/dist/mermaid.min.js"></script>
    <script>
        mermaid.initialize({ startOnLoad: true, theme: 'neutral' });
        function refresh() {
            fetch('/graph')
                .then(response => response.text())
                .then(text => {
                    const container = document.getElementById('graph-container');
                    if (container.getAttribute('data-last') === text) return;
                    container.setAttribute('data-last', text);
                    container.removeAttribute('data-processed');
                    container.innerHTML = text;
                    mermaid.run({ nodes: [container] });
                })
                .catch(err => console.error(err));
        }
        setInterval(refresh, 1000);
    </script>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f4f7f6; margin: 0; color: #2c3e50; }
        header { background: #1f3a5f; color: white; padding: 1rem 2.5rem; }
        h1 { margin: 0; font-size: 1.25rem; font-weight: 600; }
        main { padding: 2rem; max-width: 1200px; margin: 0 auto; }
        #graph-container { background: white; padding: 2.5rem; border-radius: 12px; min-height: 500px; border: 1px solid #e2e8f0; }
        .controls { margin-bottom: 1.5rem; color: #64748b; text-align: center; }
    </style>
</head>
<body>
    <header><h1>Tekton workspace</h1></header>
    <main>
        <div class="controls">
            Hover a resource in the editor to focus it. Metrics are at <a href="/metrics">/metrics</a>.
        </div>
        <div id="graph-container" class="mermaid">
            graph LR
            A[Loading...]
        </div>
    </main>
</body>
</html>
`
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(html))
}

func (v *Visualizer) handleGraph(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	var focus *index.Key
	if v.focus != nil {
		k := *v.focus
		focus = &k
	}
	v.mu.Unlock()

	if r.URL.Query().Get("all") != "" {
		focus = nil
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte(v.generateMermaid(focus)))
}

type edge struct {
	from, to index.Key
}

// generateMermaid draws every resource and reference, or only those
// touching focus.
func (v *Visualizer) generateMermaid(focus *index.Key) string {
	resources := v.index.Resources()
	if len(resources) == 0 {
		return "graph LR\n  Start[No resources indexed yet]\n"
	}

	byURI := make(map[string][]index.Resource)
	for _, r := range resources {
		byURI[r.URI] = append(byURI[r.URI], r)
	}

	var edges []edge
	seen := make(map[edge]bool)
	for _, target := range resources {
		for _, ref := range v.index.FindReferences(target.Kind, target.Name) {
			from, ok := owner(byURI[ref.URI], ref)
			if !ok {
				continue
			}
			e := edge{from: from.Key(), to: target.Key()}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}

	nodes := make(map[index.Key]bool)
	for _, r := range resources {
		if focus == nil || r.Key() == *focus {
			nodes[r.Key()] = true
		}
	}
	if focus != nil {
		var kept []edge
		for _, e := range edges {
			if e.from == *focus || e.to == *focus {
				nodes[e.from], nodes[e.to] = true, true
				kept = append(kept, e)
			}
		}
		edges = kept
	}

	keys := make([]index.Key, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Name < keys[j].Name
	})

	var sb strings.Builder
	sb.WriteString("graph LR\n")
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s[\"%s: %s\"]\n", nodeID(k), k.Kind, k.Name))
		sb.WriteString(fmt.Sprintf("  class %s %s\n", nodeID(k), class(k.Kind)))
	}
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("  %s --> %s\n", nodeID(e.from), nodeID(e.to)))
	}
	sb.WriteString("  classDef pipeline fill:#bbf,stroke:#333,stroke-width:2px;\n")
	sb.WriteString("  classDef task fill:#dfd,stroke:#333,stroke-width:1px;\n")
	sb.WriteString("  classDef run fill:#ffd,stroke:#333,stroke-width:1px;\n")
	sb.WriteString("  classDef trigger fill:#f9f,stroke:#333,stroke-width:1px;\n")
	return sb.String()
}

// owner picks the resource of a multi-document file that holds ref: the
// last one whose name comes before it.
func owner(candidates []index.Resource, ref index.Reference) (index.Resource, bool) {
	var best index.Resource
	found := false
	for _, r := range candidates {
		if r.Range.Start.Before(ref.Range.Start) && (!found || best.Range.Start.Before(r.Range.Start)) {
			best, found = r, true
		}
	}
	return best, found
}

func nodeID(k index.Key) string {
	clean := func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}
	return strings.Map(clean, k.Kind.String()+"_"+k.Name)
}

func class(k schema.Kind) string {
	switch k {
	case schema.KindPipeline:
		return "pipeline"
	case schema.KindTask, schema.KindClusterTask:
		return "task"
	case schema.KindPipelineRun, schema.KindTaskRun:
		return "run"
	default:
		return "trigger"
	}
}
