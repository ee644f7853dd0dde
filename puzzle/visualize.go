package puzzle

import (
	"fmt"
	"strconv"
	"strings"
)

// Representation selects a text rendering for grids.
type Representation string

const (
	// RepresentationVertical stacks the input grid above the output grid.
	RepresentationVertical Representation = "vertical"
	// RepresentationVerticalNumbered additionally prefixes each row with
	// its 1-based number.
	RepresentationVerticalNumbered Representation = "vertical_with_numbers"
)

// VisualizePair renders an input/output grid pair as text for inclusion
// in a prompt. A nil output renders the input alone, which is how test
// inputs are presented.
func VisualizePair(input, output Grid, rep Representation) (string, error) {
	var numbered bool
	switch rep {
	case RepresentationVertical:
	case RepresentationVerticalNumbered:
		numbered = true
	default:
		return "", fmt.Errorf("unknown representation %q", rep)
	}

	var b strings.Builder
	b.WriteString("Input:\n")
	writeGrid(&b, input, numbered)
	if output != nil {
		b.WriteString("\nOutput:\n")
		writeGrid(&b, output, numbered)
	}
	return b.String(), nil
}

func writeGrid(b *strings.Builder, g Grid, numbered bool) {
	for i, row := range g {
		if numbered {
			fmt.Fprintf(b, "%d: ", i+1)
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strconv.Itoa(v)
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteByte('\n')
	}
}
