package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/inkwell-notes/inkwell-backend/internal/platform/apierr"
	"github.com/inkwell-notes/inkwell-backend/internal/platform/logger"
)

const (
	// Below this many characters there is nothing worth sending to the
	// model; the caller gets a single-node graph instead of an error.
	graphMinTextLen = 20

	graphLayoutRadius = 200.0
)

const graphSystemPrompt = "You extract a concept graph from a note. Identify the key concepts as " +
	"nodes and the relationships between them as edges. Keep labels short. " +
	"Respond with JSON only."

type GraphPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type GraphNode struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Position GraphPosition `json:"position"`
}

type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphService turns note text into a small concept graph for visualization.
type GraphService interface {
	ExtractGraph(ctx context.Context, text string) (*Graph, error)
}

type graphService struct {
	log *logger.Logger
	ai  AIClient
}

func NewGraphService(baseLog *logger.Logger, ai AIClient) GraphService {
	return &graphService{
		log: baseLog.With("service", "GraphService"),
		ai:  ai,
	}
}

var graphSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    map[string]any{"type": "string"},
					"label": map[string]any{"type": "string"},
					"x":     map[string]any{"type": "number"},
					"y":     map[string]any{"type": "number"},
				},
				"required": []string{"id", "label"},
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"source": map[string]any{"type": "string"},
					"target": map[string]any{"type": "string"},
					"label":  map[string]any{"type": "string"},
				},
				"required": []string{"source", "target"},
			},
		},
	},
	"required": []string{"nodes", "edges"},
}

func (s *graphService) ExtractGraph(ctx context.Context, text string) (*Graph, error) {
	text = NormalizeWhitespace(text)
	if len([]rune(text)) < graphMinTextLen {
		return minimalGraph(text), nil
	}

	raw, err := s.ai.GenerateJSON(ctx, graphSystemPrompt, text, graphSchema)
	if err != nil {
		if apierr.IsKind(err, apierr.KindMalformedOutput) {
			// A garbled model reply degrades to the trivial graph rather
			// than failing the request.
			s.log.Warn("Graph extraction produced malformed output", "error", err.Error())
			return minimalGraph(text), nil
		}
		return nil, err
	}

	g := sanitizeGraph(raw)
	if len(g.Nodes) == 0 {
		return minimalGraph(text), nil
	}
	return g, nil
}

func minimalGraph(text string) *Graph {
	label := strings.TrimSpace(text)
	if label == "" {
		label = "Empty note"
	}
	label = snippet(label, 60)
	return &Graph{
		Nodes: []GraphNode{{ID: "n1", Label: label}},
		Edges: []GraphEdge{},
	}
}

// sanitizeGraph enforces the output contract on whatever the model sent
// back: unique node ids, labels present, positions valid, edges pointing at
// surviving nodes.
func sanitizeGraph(raw map[string]any) *Graph {
	g := &Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}

	seen := map[string]bool{}
	var needLayout []int
	if nodes, ok := raw["nodes"].([]any); ok {
		for _, n := range nodes {
			m, ok := n.(map[string]any)
			if !ok {
				continue
			}
			id := strings.TrimSpace(str(m["id"]))
			label := strings.TrimSpace(str(m["label"]))
			if id == "" || label == "" || seen[id] {
				continue
			}
			seen[id] = true

			pos, posOK := nodePosition(m)
			if !posOK {
				needLayout = append(needLayout, len(g.Nodes))
			}
			g.Nodes = append(g.Nodes, GraphNode{ID: id, Label: label, Position: pos})
		}
	}

	// Only nodes the model left unplaced get the circular fallback;
	// provider-supplied positions are kept as-is.
	n := len(g.Nodes)
	for _, i := range needLayout {
		angle := 2 * math.Pi * float64(i) / float64(n)
		g.Nodes[i].Position = GraphPosition{
			X: graphLayoutRadius * math.Cos(angle),
			Y: graphLayoutRadius * math.Sin(angle),
		}
	}

	if len(g.Nodes) < 2 {
		return g
	}
	if edges, ok := raw["edges"].([]any); ok {
		for _, e := range edges {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			src := strings.TrimSpace(str(m["source"]))
			dst := strings.TrimSpace(str(m["target"]))
			if !seen[src] || !seen[dst] {
				continue
			}
			g.Edges = append(g.Edges, GraphEdge{
				ID:     fmt.Sprintf("edge-%d", len(g.Edges)),
				Source: src,
				Target: dst,
				Label:  strings.TrimSpace(str(m["label"])),
			})
		}
	}
	return g
}

// nodePosition accepts both flat x/y keys and a nested position object.
func nodePosition(m map[string]any) (GraphPosition, bool) {
	if x, xok := num(m["x"]); xok {
		if y, yok := num(m["y"]); yok {
			return GraphPosition{X: x, Y: y}, true
		}
	}
	if nested, ok := m["position"].(map[string]any); ok {
		if x, xok := num(nested["x"]); xok {
			if y, yok := num(nested["y"]); yok {
				return GraphPosition{X: x, Y: y}, true
			}
		}
	}
	return GraphPosition{}, false
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}
