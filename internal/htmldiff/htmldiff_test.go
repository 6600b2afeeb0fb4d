package htmldiff

import (
	"regexp"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

var markerPattern = regexp.MustCompile(`data-operation-index="(\d+)"`)

func markers(s string) []string {
	var out []string
	for _, m := range markerPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   string
	}{
		{
			name:   "identical",
			before: "<p>Same <strong>text</strong></p>",
			after:  "<p>Same <strong>text</strong></p>",
			want:   "<p>Same <strong>text</strong></p>",
		},
		{
			name:   "block inserted",
			before: "<p>a</p>",
			after:  "<p>a</p><p>b</p>",
			want:   `<p>a</p><p data-operation-index="0" class="diff-insert">b</p>`,
		},
		{
			name:   "block removed",
			before: "<p>a</p><p>b</p>",
			after:  "<p>b</p>",
			want:   `<p data-operation-index="0" class="diff-remove">a</p><p>b</p>`,
		},
		{
			name:   "block type changed shares one index",
			before: "<p>a</p>",
			after:  "<h2>a</h2>",
			want:   `<p data-operation-index="0" class="diff-remove">a</p><h2 data-operation-index="0" class="diff-insert">a</h2>`,
		},
		{
			name:   "word changes count up in document order",
			before: "<p>a</p><p>b</p>",
			after:  "<p>x</p><p>y</p>",
			want: `<p><del data-operation-index="0">a</del><ins data-operation-index="0">x</ins></p>` +
				`<p><del data-operation-index="1">b</del><ins data-operation-index="1">y</ins></p>`,
		},
		{
			name:   "inline element inserted",
			before: "<p>a</p>",
			after:  "<p>a<strong>b</strong></p>",
			want:   `<p>a<ins data-operation-index="0"><strong>b</strong></ins></p>`,
		},
		{
			name:   "link target changed",
			before: `<p><a href="https://a.example">go</a></p>`,
			after:  `<p><a href="https://b.example">go</a></p>`,
			want: `<p><del data-operation-index="0"><a href="https://a.example">go</a></del>` +
				`<ins data-operation-index="0"><a href="https://b.example">go</a></ins></p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Diff(tt.before, tt.after)
			if err != nil {
				t.Fatalf("Diff() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Diff() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDiffWordInsertion(t *testing.T) {
	got, err := Diff("<p>Hello world</p>", "<p>Hello brave world</p>")
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if strings.Contains(got, "<del") {
		t.Errorf("Diff() = %s, want no removal", got)
	}
	if m := markers(got); len(m) != 1 || m[0] != "0" {
		t.Errorf("markers = %v, want [0]", m)
	}
	if !strings.Contains(got, "brave") {
		t.Errorf("Diff() = %s, want inserted word", got)
	}
}

func TestDiffUntrackedAttributeChangeHasNoMarkers(t *testing.T) {
	before := `<p><img src="/a.png" alt="one"/></p><table><tbody><tr><td style="text-align: left">x</td></tr></tbody></table>`
	after := `<p><img src="/a.png" alt="two"/></p><table><tbody><tr><td style="text-align: right">x</td></tr></tbody></table>`

	got, err := Diff(before, after)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if m := markers(got); len(m) != 0 {
		t.Errorf("markers = %v, want none in %s", m, got)
	}
	if !strings.Contains(got, `alt="two"`) || !strings.Contains(got, "text-align: right") {
		t.Errorf("Diff() = %s, want the new attributes", got)
	}
}

func TestDiffTableRowKeepsStructure(t *testing.T) {
	before := "<table><tbody><tr><td>a</td></tr></tbody></table>"
	after := "<table><tbody><tr><td>a</td></tr><tr><td>b</td></tr></tbody></table>"

	got, err := Diff(before, after)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	want := `<table><tbody><tr><td>a</td></tr><tr data-operation-index="0" class="diff-insert"><td>b</td></tr></tbody></table>`
	if got != want {
		t.Errorf("Diff() = %s, want %s", got, want)
	}
}

func TestEngineImplementsDiffer(t *testing.T) {
	var d Differ = New()
	got, err := d.DiffHTML("", "<p>new</p>")
	if err != nil {
		t.Fatalf("DiffHTML() error = %v", err)
	}
	if got != `<p data-operation-index="0" class="diff-insert">new</p>` {
		t.Errorf("DiffHTML() = %s", got)
	}
}

func TestDOMHelpers(t *testing.T) {
	nodes, err := parseFragment(`<div id="content"><p class="a">x<span data-operation-index="3">y</span></p><p>z</p></div>`)
	if err != nil {
		t.Fatalf("parseFragment() error = %v", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div"}
	root.AppendChild(nodes[0])

	content := FindElement(root, ByID("content"))
	if content == nil {
		t.Fatal("FindElement(ByID) = nil")
	}
	ps := FindAll(content, ByTag("p"))
	if len(ps) != 2 {
		t.Fatalf("FindAll(p) = %d, want 2", len(ps))
	}
	if !HasMarker(ps[0]) || HasMarker(ps[1]) {
		t.Errorf("HasMarker() = %v, %v, want true, false", HasMarker(ps[0]), HasMarker(ps[1]))
	}

	AddClass(ps[0], "b")
	AddClass(ps[0], "b")
	if v, _ := Attr(ps[0], "class"); v != "a b" {
		t.Errorf("class = %q, want %q", v, "a b")
	}

	c := Clone(content)
	SetAttr(c, "id", "copy")
	if v, _ := Attr(content, "id"); v != "content" {
		t.Errorf("Clone shares attributes: id = %q", v)
	}
	if c.Parent != nil {
		t.Errorf("Clone().Parent = %v, want nil", c.Parent)
	}

	ReplaceChildren(content, []*html.Node{ps[1]})
	got, err := InnerHTML(content)
	if err != nil {
		t.Fatalf("InnerHTML() error = %v", err)
	}
	if got != "<p>z</p>" {
		t.Errorf("InnerHTML() = %s, want <p>z</p>", got)
	}
}
