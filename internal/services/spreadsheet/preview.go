package spreadsheet

import (
	"fmt"
	"strings"
)

// Preview renders the table as the text block handed to the model: the
// filename, dimensions, column list and a tab-separated dump of the
// contents. maxRows caps the dumped data rows; maxRows <= 0 dumps the whole
// table.
func Preview(filename string, table *Table, maxRows int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Файл: %s\n\n", filename)
	fmt.Fprintf(&b, "Размер: %d строк, %d колонок\n\n", len(table.Rows), len(table.Columns))
	b.WriteString("Колонки: " + strings.Join(table.Columns, ", ") + "\n\n")
	b.WriteString("Данные:\n")
	b.WriteString(strings.Join(table.Columns, "\t"))

	shown := len(table.Rows)
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}
	for _, row := range table.Rows[:shown] {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, "\t"))
	}
	if shown < len(table.Rows) {
		fmt.Fprintf(&b, "\n... (показаны первые %d строк из %d)", shown, len(table.Rows))
	}
	return b.String()
}
