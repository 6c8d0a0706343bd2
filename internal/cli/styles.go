package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/restyle/pkg/style"
)

type styleRow struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Alpha uint8  `json:"alpha"`
}

// stylesCommand creates the "styles" command that lists available styles.
func (c *CLI) stylesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List available styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := styleRows()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			_, err := fmt.Fprintln(out, stylesTable(rows))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func styleRows() []styleRow {
	styles := style.Styles()
	rows := make([]styleRow, len(styles))
	for i, s := range styles {
		rows[i] = styleRow{Name: s.String(), Color: overlayHex(s), Alpha: s.Overlay().A}
	}
	return rows
}

func stylesTable(rows []styleRow) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	data := make([][]string, len(rows))
	for i, r := range rows {
		data[i] = []string{r.Name, "  ", r.Color, strconv.Itoa(int(r.Alpha))}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Style", "", "Overlay", "Alpha").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			base := lipgloss.NewStyle().Padding(0, 1)
			if row == -1 {
				return headerStyle.Padding(0, 1)
			}
			switch col {
			case 0:
				return base.Foreground(colorCyan)
			case 1:
				return base.Background(lipgloss.Color(rows[row].Color))
			default:
				return base.Foreground(colorGray)
			}
		}).
		Render()
}
