package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ASCIIRenderer renders through the mermaid-ascii binary while it is present
// and healthy, and through RenderASCII otherwise. Repeated CLI failures open
// a Breaker so a broken binary is not spawned for every render.
type ASCIIRenderer struct {
	bin     string
	breaker *Breaker
}

// NewASCIIRenderer creates an ASCIIRenderer. bin is a path or a command name
// looked up in PATH; empty always uses the built-in renderer.
func NewASCIIRenderer(bin string, config BreakerConfig) *ASCIIRenderer {
	return &ASCIIRenderer{bin: bin, breaker: NewBreaker(config)}
}

// Render never fails: any CLI problem falls back to RenderASCII. Calls cut
// short by ctx do not count against the binary.
func (r *ASCIIRenderer) Render(ctx context.Context, model *DiagramModel) string {
	if r.bin == "" || !r.breaker.Allow() {
		return RenderASCII(model)
	}
	binPath, err := exec.LookPath(r.bin)
	if err != nil {
		r.breaker.Failure()
		return RenderASCII(model)
	}
	result, err := RenderASCIIViaCLI(ctx, model, binPath)
	if err != nil {
		// A cancelled request says nothing about the binary.
		if ctx.Err() != nil {
			r.breaker.Release()
		} else {
			r.breaker.Failure()
		}
		return RenderASCII(model)
	}
	r.breaker.Success()
	return result
}

// Breaker exposes the circuit guarding the binary.
func (r *ASCIIRenderer) Breaker() *Breaker { return r.breaker }

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	mermaid := RenderMermaidForCLI(model)

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(mermaid)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates simplified Mermaid syntax compatible with the
// mermaid-ascii CLI tool. Node labels become node ids since mermaid-ascii
// cannot parse ["label"] declarations, and packages are flattened because it
// ignores subgraph blocks. Nodes without any relation are emitted alone.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	displayID := make(map[string]string)
	for _, node := range model.AllNodes() {
		displayID[node.ID] = cliNodeID(node)
	}
	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	linked := make(map[string]bool)
	for _, edge := range model.Edges {
		label := ""
		switch {
		case edge.Label != "":
			label = fmt.Sprintf("|%s|", strings.Trim(edge.Label, "«»"))
		case edge.Dashed():
			label = fmt.Sprintf("|%s|", edge.Kind)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To)))
		linked[edge.From] = true
		linked[edge.To] = true
	}

	for _, node := range model.AllNodes() {
		if !linked[node.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", resolve(node.ID)))
		}
	}

	return b.String()
}

// cliNodeID builds a display ID for the mermaid-ascii CLI.
// Embeds the lint tag into the ID for visibility.
func cliNodeID(node *Node) string {
	id := node.Label
	if id == "" {
		id = node.ID
	}

	if node.Mark != nil {
		if tag := cliMarkTag(node.Mark.Severity); tag != "" {
			id += "-" + tag
		}
	}

	// Replace spaces with dashes for valid Mermaid IDs.
	id = strings.ReplaceAll(id, " ", "-")
	return id
}

// cliMarkTag returns a compact severity indicator for node IDs.
func cliMarkTag(severity string) string {
	switch severity {
	case "error":
		return "ERR"
	case "warning":
		return "WARN"
	case "info":
		return "INFO"
	default:
		return ""
	}
}
