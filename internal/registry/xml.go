// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// node is an element under construction while decoding.
type node struct {
	name     string
	children map[string]any
	text     strings.Builder
}

// DecodeXML decodes an XML document into a generic tree keyed by the root
// element's local name. Element content becomes a string when the element
// has neither attributes nor children; otherwise a map holding "@attr" keys,
// child elements and the element text under "#text". Repeated child elements
// become []any in document order. Namespaces are dropped.
func DecodeXML(r io.Reader) (map[string]any, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var (
		stack []*node
		root  map[string]any
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.set("@"+a.Name.Local, a.Value)
			}
			stack = append(stack, n)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("decoding XML: unexpected closing tag %s", t.Name.Local)
			}
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				if root == nil {
					root = map[string]any{n.name: n.value()}
				}
				continue
			}
			stack[len(stack)-1].set(n.name, n.value())
		}
	}

	if root == nil {
		return nil, errors.New("decoding XML: document has no root element")
	}
	return root, nil
}

func (n *node) set(key string, v any) {
	if n.children == nil {
		n.children = make(map[string]any)
	}
	existing, ok := n.children[key]
	if !ok {
		n.children[key] = v
		return
	}
	if list, isList := existing.([]any); isList {
		n.children[key] = append(list, v)
		return
	}
	n.children[key] = []any{existing, v}
}

func (n *node) value() any {
	text := strings.TrimSpace(n.text.String())
	if len(n.children) == 0 {
		return text
	}
	if text != "" {
		n.children["#text"] = text
	}
	return n.children
}
