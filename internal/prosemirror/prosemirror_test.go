package prosemirror

import (
	"strings"
	"testing"
)

func txt(s string, marks ...Mark) Node {
	return Node{Type: TypeText, Text: s, Marks: marks}
}

func paragraph(children ...Node) Node {
	return Node{Type: TypeParagraph, Content: children}
}

func TestParseMarkdown(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Node
	}{
		{name: "blank", input: " \n\t", want: nil},
		{
			name:  "paragraph with marks",
			input: "Plain **bold** _em_ ~~gone~~ `code`",
			want: &Node{Type: TypeDoc, Content: []Node{paragraph(
				txt("Plain "),
				txt("bold", Mark{Type: MarkBold}),
				txt(" "),
				txt("em", Mark{Type: MarkItalic}),
				txt(" "),
				txt("gone", Mark{Type: MarkStrike}),
				txt(" "),
				txt("code", Mark{Type: MarkCode}),
			)}},
		},
		{
			name:  "heading and rule",
			input: "## Section\n\n---",
			want: &Node{Type: TypeDoc, Content: []Node{
				{Type: TypeHeading, Attrs: map[string]any{"level": float64(2)}, Content: []Node{txt("Section")}},
				{Type: TypeHorizontalRule},
			}},
		},
		{
			name:  "link keeps href",
			input: "[docs](https://example.com/docs)",
			want: &Node{Type: TypeDoc, Content: []Node{paragraph(
				txt("docs", Mark{Type: MarkLink, Attrs: map[string]any{"href": "https://example.com/docs"}}),
			)}},
		},
		{
			name:  "fenced code",
			input: "```sql\nSELECT 1;\n```",
			want: &Node{Type: TypeDoc, Content: []Node{
				{Type: TypeCodeBlock, Attrs: map[string]any{"language": "sql"}, Content: []Node{txt("SELECT 1;")}},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMarkdown(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("ParseMarkdown() = %s, want nil", Fingerprint(*got))
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseMarkdown() = nil, want %s", Fingerprint(*tt.want))
			}
			if !Equal(*got, *tt.want) {
				t.Errorf("ParseMarkdown() = %s, want %s", Fingerprint(*got), Fingerprint(*tt.want))
			}
		})
	}
}

func TestParseMarkdownTable(t *testing.T) {
	got := ParseMarkdown("| h1 | h2 |\n|----|----|\n| a | b |\n| c | d |")
	if got == nil || len(got.Content) != 1 {
		t.Fatalf("ParseMarkdown() = %v, want one table", got)
	}
	table := got.Content[0]
	if table.Type != TypeTable || len(table.Content) != 3 {
		t.Fatalf("table = %s with %d rows, want table with 3 rows", table.Type, len(table.Content))
	}
	if cell := table.Content[0].Content[0]; cell.Type != TypeTableHeader || strings.TrimSpace(cell.TextContent()) != "h1" {
		t.Errorf("header cell = %s %q", cell.Type, cell.TextContent())
	}
	if cell := table.Content[2].Content[1]; cell.Type != TypeTableCell || strings.TrimSpace(cell.TextContent()) != "d" {
		t.Errorf("body cell = %s %q", cell.Type, cell.TextContent())
	}
}

func TestParseMarkdownTaskList(t *testing.T) {
	got := ParseMarkdown("- [x] shipped\n- [ ] pending")
	if got == nil || len(got.Content) != 1 || got.Content[0].Type != TypeTaskList {
		t.Fatalf("ParseMarkdown() = %v, want one task list", got)
	}
	items := got.Content[0].Content
	want := []struct {
		text    string
		checked bool
	}{{"shipped", true}, {"pending", false}}
	if len(items) != len(want) {
		t.Fatalf("items = %d, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].Type != TypeTaskItem {
			t.Errorf("item %d type = %s, want %s", i, items[i].Type, TypeTaskItem)
		}
		if got := items[i].AttrBool("checked", !w.checked); got != w.checked {
			t.Errorf("item %d checked = %v, want %v", i, got, w.checked)
		}
		if got := strings.TrimSpace(items[i].TextContent()); got != w.text {
			t.Errorf("item %d text = %q, want %q", i, got, w.text)
		}
	}
}

func TestNormalize(t *testing.T) {
	bold := Mark{Type: MarkBold}
	in := paragraph(txt("a"), txt("b"), txt(""), txt("c", bold), txt("d", bold), Node{Type: TypeHardBreak}, txt("e"))
	want := paragraph(txt("ab"), txt("cd", bold), Node{Type: TypeHardBreak}, txt("e"))

	if got := Normalize(in); !Equal(got, want) {
		t.Errorf("Normalize() = %s, want %s", Fingerprint(got), Fingerprint(want))
	}
}

func TestEqualTreatsEmptyAndNilAlike(t *testing.T) {
	a := Node{Type: TypeParagraph, Attrs: map[string]any{}, Content: []Node{}}
	b := Node{Type: TypeParagraph}
	if !Equal(a, b) {
		t.Errorf("Equal(empty, nil) = false, want true")
	}
	c := Node{Type: TypeHeading, Attrs: map[string]any{"level": 2}}
	d := Node{Type: TypeHeading, Attrs: map[string]any{"level": float64(2)}}
	if !Equal(c, d) {
		t.Errorf("Equal(int attr, float attr) = false, want true")
	}
	if Equal(c, Node{Type: TypeHeading, Attrs: map[string]any{"level": float64(3)}}) {
		t.Errorf("Equal(level 2, level 3) = true, want false")
	}
}
