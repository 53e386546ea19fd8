package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dom mirrors what the page script does with commands.
type dom struct {
	t    *testing.T
	body *html.Node
}

func newDOM(t *testing.T) *dom {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	require.NoError(t, err)
	body := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	require.NotNil(t, body)
	return &dom{t: t, body: body}
}

func (d *dom) apply(cmds ...command) *dom {
	d.t.Helper()
	for _, cmd := range cmds {
		switch cmd.Kind {
		case kindAdd:
			parent := d.body
			if cmd.Parent != "" {
				parent = d.byID(cmd.Parent)
				require.NotNil(d.t, parent, "ADD into missing parent %q", cmd.Parent)
			}
			for _, n := range d.parse(cmd.Data, parent) {
				parent.AppendChild(n)
			}
		case kindReplace:
			old := d.byID(cmd.ID)
			require.NotNil(d.t, old, "REPLACE of missing %q", cmd.ID)
			for _, n := range d.parse(cmd.Data, old.Parent) {
				old.Parent.InsertBefore(n, old)
			}
			old.Parent.RemoveChild(old)
		case kindRemove:
			old := d.byID(cmd.ID)
			require.NotNil(d.t, old, "REMOVE of missing %q", cmd.ID)
			old.Parent.RemoveChild(old)
		default:
			d.t.Fatalf("unknown command kind %q", cmd.Kind)
		}
	}
	return d
}

func (d *dom) parse(data string, context *html.Node) []*html.Node {
	d.t.Helper()
	nodes, err := html.ParseFragment(strings.NewReader(data), context)
	require.NoError(d.t, err)
	return nodes
}

func (d *dom) byID(id ID) *html.Node {
	return find(d.body, func(n *html.Node) bool { return attr(n, "id") == string(id) })
}

// findByTestAttr returns every node whose data-test is value.
func (d *dom) findByTestAttr(value ID) []*html.Node {
	var res []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "data-test") == string(value) {
			res = append(res, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.body)
	return res
}

func (d *dom) text(value ID) string {
	d.t.Helper()
	nodes := d.findByTestAttr(value)
	require.Len(d.t, nodes, 1, "data-test=%q", value)
	return textOf(nodes[0])
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
