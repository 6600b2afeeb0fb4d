package export

import (
	"fmt"
	"html"
	"strings"

	"docdiff/api/internal/prosemirror"
)

// TreeToHTML renders the body of a document tree.
func TreeToHTML(doc prosemirror.Node) string {
	var b strings.Builder
	renderNode(&b, doc)
	return b.String()
}

// renderNode recursively renders a node to HTML
func renderNode(b *strings.Builder, node prosemirror.Node) {
	switch node.Type {
	case prosemirror.TypeDoc:
		renderContent(b, node)
	case prosemirror.TypeParagraph:
		wrap(b, "<p>", node, "</p>\n")
	case prosemirror.TypeHeading:
		level := node.AttrInt("level", 1)
		if level < 1 || level > 6 {
			level = 1
		}
		fmt.Fprintf(b, "<h%d>", level)
		renderContent(b, node)
		fmt.Fprintf(b, "</h%d>\n", level)
	case prosemirror.TypeBulletList:
		wrap(b, "<ul>\n", node, "</ul>\n")
	case prosemirror.TypeOrderedList:
		if start := node.AttrInt("order", 1); start != 1 {
			fmt.Fprintf(b, "<ol start=\"%d\">\n", start)
		} else {
			b.WriteString("<ol>\n")
		}
		renderContent(b, node)
		b.WriteString("</ol>\n")
	case prosemirror.TypeListItem:
		wrap(b, "<li>", node, "</li>\n")
	case prosemirror.TypeTaskList:
		wrap(b, "<ul class=\"checkbox_list\">\n", node, "</ul>\n")
	case prosemirror.TypeTaskItem:
		if node.AttrBool("checked", false) {
			wrap(b, "<li class=\"checkbox_item checked\">", node, "</li>\n")
		} else {
			wrap(b, "<li class=\"checkbox_item\">", node, "</li>\n")
		}
	case prosemirror.TypeBlockquote:
		wrap(b, "<blockquote>\n", node, "</blockquote>\n")
	case prosemirror.TypeCodeBlock:
		if lang := node.AttrString("language", ""); lang != "" {
			fmt.Fprintf(b, "<pre class=\"code-block\" data-language=\"%s\"><code>", html.EscapeString(lang))
		} else {
			b.WriteString("<pre class=\"code-block\"><code>")
		}
		b.WriteString(html.EscapeString(node.TextContent()))
		b.WriteString("</code></pre>\n")
	case prosemirror.TypeText:
		b.WriteString(renderTextWithMarks(node.Text, node.Marks))
	case prosemirror.TypeHardBreak:
		b.WriteString("<br>")
	case prosemirror.TypeImage:
		fmt.Fprintf(b, "<img src=\"%s\" alt=\"%s\"", html.EscapeString(node.AttrString("src", "")), html.EscapeString(node.AttrString("alt", "")))
		if title := node.AttrString("title", ""); title != "" {
			fmt.Fprintf(b, " title=\"%s\"", html.EscapeString(title))
		}
		b.WriteString(">")
	case prosemirror.TypeTable:
		wrap(b, "<div class=\"table-wrapper\"><table>\n<tbody>\n", node, "</tbody>\n</table></div>\n")
	case prosemirror.TypeTableRow:
		wrap(b, "<tr>\n", node, "</tr>\n")
	case prosemirror.TypeTableCell:
		wrap(b, "<td"+alignment(node)+">", node, "</td>\n")
	case prosemirror.TypeTableHeader:
		wrap(b, "<th"+alignment(node)+">", node, "</th>\n")
	case prosemirror.TypeHorizontalRule:
		b.WriteString("<hr>\n")
	default:
		// Unknown node type - render content if any
		renderContent(b, node)
	}
}

func wrap(b *strings.Builder, open string, node prosemirror.Node, end string) {
	b.WriteString(open)
	renderContent(b, node)
	b.WriteString(end)
}

func renderContent(b *strings.Builder, node prosemirror.Node) {
	for _, child := range node.Content {
		renderNode(b, child)
	}
}

func alignment(node prosemirror.Node) string {
	if align := node.AttrString("alignment", ""); align != "" {
		return fmt.Sprintf(" style=\"text-align: %s\"", html.EscapeString(align))
	}
	return ""
}

// renderTextWithMarks renders text with formatting marks
func renderTextWithMarks(text string, marks []prosemirror.Mark) string {
	if text == "" {
		return ""
	}

	htmlText := html.EscapeString(text)

	// Apply marks from outside in
	for i := len(marks) - 1; i >= 0; i-- {
		mark := marks[i]
		switch mark.Type {
		case prosemirror.MarkBold:
			htmlText = "<strong>" + htmlText + "</strong>"
		case prosemirror.MarkItalic:
			htmlText = "<em>" + htmlText + "</em>"
		case prosemirror.MarkCode:
			htmlText = "<code>" + htmlText + "</code>"
		case prosemirror.MarkLink:
			href, _ := mark.Attrs["href"].(string)
			htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), htmlText)
		case prosemirror.MarkStrike:
			htmlText = "<s>" + htmlText + "</s>"
		}
	}

	return htmlText
}

// TreeToText renders a document tree as plain text, one block per line.
func TreeToText(doc prosemirror.Node) string {
	var lines []string
	collectText(doc, &lines)
	return strings.Join(lines, "\n")
}

func collectText(node prosemirror.Node, lines *[]string) {
	switch node.Type {
	case prosemirror.TypeParagraph, prosemirror.TypeHeading, prosemirror.TypeCodeBlock:
		*lines = append(*lines, node.TextContent())
	case prosemirror.TypeTableRow:
		cells := make([]string, 0, len(node.Content))
		for _, cell := range node.Content {
			cells = append(cells, strings.TrimSpace(cell.TextContent()))
		}
		*lines = append(*lines, strings.Join(cells, "\t"))
	case prosemirror.TypeHorizontalRule:
		*lines = append(*lines, "---")
	default:
		for _, child := range node.Content {
			collectText(child, lines)
		}
	}
}
