package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/armgoto/pkg/waypoint"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type WaypointsCommand struct {
	Spacing float64 `long:"spacing" description:"Grid spacing in metres (overrides config)"`
	JSON    bool    `long:"json" description:"Print the poses as JSON"`
}

func (c *WaypointsCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Spacing != 0 {
		cfg.GridSpacing = c.Spacing
	}
	set, err := buildWaypoints(cfg, stderrLogger())
	if err != nil {
		return err
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(set.Poses())
	}

	fmt.Println(renderWaypoints(set))
	counts := set.Counts()
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d waypoints: %d corners (listed twice), %d grid points, %d side points",
		set.Len(), counts.Corners, counts.Grid, counts.Sides)))
	return nil
}

// waypointKind names the block of the list index i falls in.
func waypointKind(c waypoint.Counts, i int) string {
	switch {
	case i < 2*c.Corners:
		return fmt.Sprintf("corner %d", i%c.Corners)
	case i < 2*c.Corners+c.Grid:
		return "grid"
	default:
		return "side"
	}
}

func waypointRows(set *waypoint.Set) [][]string {
	counts := set.Counts()
	rows := make([][]string, 0, set.Len())
	for i, p := range set.Poses() {
		pos := p.Position()
		rows = append(rows, []string{
			fmt.Sprintf("%d", i),
			waypointKind(counts, i),
			fmt.Sprintf("%.4f", pos.X),
			fmt.Sprintf("%.4f", pos.Y),
			fmt.Sprintf("%.4f", pos.Z),
		})
	}
	return rows
}

func renderWaypoints(set *waypoint.Set) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	kindStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Index", "Kind", "X", "Y", "Z").
		Rows(waypointRows(set)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 1:
				return kindStyle
			default:
				return cellStyle
			}
		}).
		Render()
}
