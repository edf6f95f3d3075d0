package repair

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// architectureEdges lists the main edges of the module's package
// dependency graph, in "from -> to" data-flow order, for the benefit of
// ExportArchitecture. It is not the full import graph: lgerrors, hashing,
// canon -> repair and the other imports of ledgerctx, among others, are
// not listed. It is maintained by hand rather than derived via
// go/packages, since the CLI must not shell out to the Go toolchain.
var architectureEdges = [][2]string{
	{"keys", "receipt"},
	{"token", "receipt"},
	{"merkle", "receipt"},
	{"epoch", "receipt"},
	{"ledgerlog", "receipt"},
	{"index", "receipt"},
	{"canon", "receipt"},
	{"receipt", "ledgerctx"},
	{"keys", "verify"},
	{"merkle", "verify"},
	{"epoch", "verify"},
	{"index", "verify"},
	{"canon", "verify"},
	{"verify", "repair"},
	{"merkle", "repair"},
	{"index", "repair"},
	{"ledgerctx", "cmd/ledgerctl"},
	{"receipt", "cmd/ledgerctl"},
	{"verify", "cmd/ledgerctl"},
	{"repair", "cmd/ledgerctl"},
}

// ExportArchitecture writes a Graphviz DOT description of the module's
// package dependency graph to outputPath, for operators who want a
// diagram of how a receipt write or a repair actually flows through the
// system without reading every import block.
func ExportArchitecture(outputPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("digraph ledger_architecture {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, edge := range architectureEdges {
		fmt.Fprintf(&b, "  %q -> %q;\n", edge[0], edge[1])
	}
	b.WriteString("}\n")
	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}
