package repair

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tessrax/ledger/canon"
	"github.com/tessrax/ledger/merkle"
)

// ExportMerkleSVG renders a small SVG showing one box per current peak,
// for dashboards that want a glance at accumulator shape without parsing
// the JSON state file.
func ExportMerkleSVG(state merkle.State, outputPath string, clock func() time.Time) (string, error) {
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<svg xmlns='http://www.w3.org/2000/svg' width='400' height='200'>\n")
	b.WriteString("  <text x='200' y='20' text-anchor='middle' font-size='14'>Merkle State</text>\n")
	for idx, peak := range state.Peaks {
		x := 40 + idx*60
		fmt.Fprintf(&b, "  <rect x='%d' y='60' width='50' height='30' fill='#123' stroke='#0ff'/>\n", x)
		label := peak
		if len(label) > 8 {
			label = label[:8]
		}
		fmt.Fprintf(&b, "  <text x='%d' y='80' text-anchor='middle' font-size='10' fill='#fff'>%s</text>\n", x+25, label)
	}
	root := state.Root()
	if len(root) > 16 {
		root = root[:16]
	}
	fmt.Fprintf(&b, "  <text x='200' y='150' text-anchor='middle' font-size='12'>root=%s updated=%s</text>\n", root, canon.FormatTimestamp(clock()))
	b.WriteString("</svg>")

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}
