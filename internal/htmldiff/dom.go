package htmldiff

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Clone deep-copies n without its parent and siblings.
func Clone(n *html.Node) *html.Node {
	c := shallowClone(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

func shallowClone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	return c
}

// Attr returns the value of attribute key.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute key.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass reports whether n lists class in its class attribute.
func HasClass(n *html.Node, class string) bool {
	v, ok := Attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to the class attribute of n.
func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	if v, ok := Attr(n, "class"); ok && strings.TrimSpace(v) != "" {
		SetAttr(n, "class", v+" "+class)
		return
	}
	SetAttr(n, "class", class)
}

// HasMarker reports whether n or any element below it carries an operation
// index.
func HasMarker(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type == html.ElementNode {
		if _, ok := Attr(n, OperationIndexAttr); ok {
			return true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if HasMarker(c) {
			return true
		}
	}
	return false
}

// FindElement returns the first element below n, in document order, that
// matches.
func FindElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := FindElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element below n that matches, in document order.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			out = append(out, c)
		}
		out = append(out, FindAll(c, match)...)
	}
	return out
}

// ByID matches elements with the given id.
func ByID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		v, ok := Attr(n, "id")
		return ok && v == id
	}
}

// ByTag matches elements with the given tag name.
func ByTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Data == tag
	}
}

// InnerHTML renders the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// ReplaceChildren detaches the children of n and appends nodes in their
// place.
func ReplaceChildren(n *html.Node, nodes []*html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}
