package schema

import (
	"fmt"
	"strings"
)

// RenderPromptText produces the textual schema description handed to the
// model. Output depends only on the descriptor's tables, so two snapshots of
// the same database render byte-identical text.
func RenderPromptText(d *Descriptor) string {
	if d == nil {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Relationships\n")
	rels := d.Relationships()
	if len(rels) == 0 {
		b.WriteString("- none\n")
	}
	for _, rel := range rels {
		fmt.Fprintf(&b, "- %s.%s → %s.%s\n", rel.Table, rel.Column, rel.RefTable, rel.RefColumn)
	}

	b.WriteString("\n## Tables\n")
	for _, name := range d.TableNames() {
		t := d.Tables[name]
		b.WriteString("\n### ")
		b.WriteString(name)
		if t.Metadata.EstimatedRows > 0 {
			fmt.Fprintf(&b, " (~%d rows)", t.Metadata.EstimatedRows)
		}
		b.WriteString("\n")
		if t.Metadata.Comment != "" {
			fmt.Fprintf(&b, "Description: %s\n", oneLine(t.Metadata.Comment))
		}
		if len(t.PrimaryKeys) > 0 {
			fmt.Fprintf(&b, "Primary key: %s\n", strings.Join(t.PrimaryKeys, ", "))
		} else {
			b.WriteString("Primary key: none\n")
		}
		if len(t.ForeignKeys) > 0 {
			parts := make([]string, 0, len(t.ForeignKeys))
			for _, fk := range t.ForeignKeys {
				parts = append(parts, fmt.Sprintf("%s → %s.%s", fk.Column, fk.RefTable, fk.RefColumn))
			}
			fmt.Fprintf(&b, "Foreign keys: %s\n", strings.Join(parts, "; "))
		}
		b.WriteString("Columns:\n")
		for _, col := range t.Columns {
			fmt.Fprintf(&b, "- %s %s", col.Name, strings.ToUpper(col.DeclaredType))
			if tags := columnTags(col); len(tags) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
			}
			if col.Comment != "" {
				fmt.Fprintf(&b, " -- %s", oneLine(col.Comment))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func columnTags(col Column) []string {
	var tags []string
	if col.IsPrimary {
		tags = append(tags, "PK")
	}
	if !col.Nullable {
		tags = append(tags, "NOT NULL")
	}
	if col.AutoIncrement {
		tags = append(tags, "AUTO_INCREMENT")
	}
	if col.IsUnique {
		tags = append(tags, "UNIQUE")
	}
	return tags
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
