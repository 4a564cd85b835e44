package resource

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-tmsync/core"
)

type Options struct {
	// Strict fails on elements without a binding instead of skipping them.
	Strict bool
}

type Mapper struct {
	registry *Registry
	options  Options
}

func NewMapper(options Options) *Mapper {
	return &Mapper{registry: DefaultRegistry(), options: options}
}

// NewMapperWithRegistry builds a mapper over a custom registry.
func NewMapperWithRegistry(registry *Registry, options Options) *Mapper {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Mapper{registry: registry, options: options}
}

// Deserialize maps data with the default registry in lenient mode.
func Deserialize(data []byte) (Document, error) {
	return NewMapper(Options{}).Deserialize(data)
}

func (m *Mapper) Registry() *Registry {
	if m == nil || m.registry == nil {
		return DefaultRegistry()
	}
	return m.registry
}

func (m *Mapper) Deserialize(data []byte) (Document, error) {
	if m == nil {
		m = NewMapper(Options{})
	}
	root, err := parseTree(data)
	if err != nil {
		return Document{}, err
	}

	state := &mapState{strict: m.options.Strict}
	doc := Document{Root: root.name}
	if itemType, ok := m.Registry().CollectionItemType(root.name); ok {
		collection, err := m.mapCollection(root, itemType, state)
		if err != nil {
			return Document{}, err
		}
		doc.Collection = collection
	} else if s, ok := m.Registry().resources[root.name]; ok {
		res, err := m.mapResource(root, s, state, root.name)
		if err != nil {
			return Document{}, err
		}
		doc.Resource = res
	} else {
		return Document{}, core.NewError(core.ErrUnknownRootType,
			fmt.Sprintf("resource: unknown root element %q", root.name),
			map[string]any{"root": root.name},
		)
	}
	doc.Warnings = state.warnings
	return doc, nil
}

type mapState struct {
	strict   bool
	warnings []string
}

func (s *mapState) unknown(path string) error {
	if s.strict {
		return core.NewError(core.ErrUnknownFieldType,
			fmt.Sprintf("resource: no mapping for element %s", path),
			map[string]any{"element": path},
		)
	}
	s.warnings = append(s.warnings, "skipped unmapped element "+path)
	return nil
}

func (s *mapState) invalid(path string, err error) error {
	if s.strict {
		return core.NewError(core.ErrMalformedPayload,
			fmt.Sprintf("resource: %s: %v", path, err),
			map[string]any{"element": path},
		)
	}
	s.warnings = append(s.warnings, fmt.Sprintf("skipped invalid element %s: %v", path, err))
	return nil
}

func (m *Mapper) mapCollection(root *node, itemType string, state *mapState) (*Collection, error) {
	collection := &Collection{Type: root.name, ItemType: itemType, Items: []Resource{}}
	for _, child := range root.children {
		path := root.name + "/" + child.name
		if child.name == "Link" {
			link, expansions, err := m.mapLink(child, state, path)
			if err != nil {
				return nil, err
			}
			if link.IsNext() {
				collection.HasNext = true
				collection.NextHref = link.Href
			}
			collection.Links = append(collection.Links, link)
			collection.Items = append(collection.Items, expansions...)
			continue
		}
		s, ok := m.Registry().resources[child.name]
		if !ok {
			if err := state.unknown(path); err != nil {
				return nil, err
			}
			continue
		}
		item, err := m.mapResource(child, s, state, path)
		if err != nil {
			return nil, err
		}
		collection.Items = append(collection.Items, item)
	}
	return collection, nil
}

// mapLink reads link attributes and maps any embedded resources.
func (m *Mapper) mapLink(n *node, state *mapState, path string) (Link, []Resource, error) {
	link := Link{
		Rel:   n.attrs["rel"],
		Href:  n.attrs["href"],
		Title: n.attrs["title"],
		Type:  n.attrs["type"],
	}
	var expansions []Resource
	for _, child := range n.children {
		childPath := path + "/" + child.name
		s, ok := m.Registry().resources[child.name]
		if !ok {
			if err := state.unknown(childPath); err != nil {
				return Link{}, nil, err
			}
			continue
		}
		res, err := m.mapResource(child, s, state, childPath)
		if err != nil {
			return Link{}, nil, err
		}
		if link.Expansion == nil {
			link.Expansion = res
			link.ElementName = child.name
		}
		expansions = append(expansions, res)
	}
	return link, expansions, nil
}

func (m *Mapper) mapResource(n *node, s *schema, state *mapState, path string) (Resource, error) {
	res := s.newFn()
	base := res.meta()
	for _, child := range n.children {
		childPath := path + "/" + child.name
		if child.name == "Link" {
			link, _, err := m.mapLink(child, state, childPath)
			if err != nil {
				return nil, err
			}
			base.Links = append(base.Links, link)
			continue
		}

		v := value{name: child.name}
		if child.isLeaf() {
			v.leaf = true
			v.text = strings.TrimSpace(child.text)
		} else {
			childSchema, ok := m.Registry().resources[child.name]
			if !ok {
				if err := state.unknown(childPath); err != nil {
					return nil, err
				}
				continue
			}
			sub, err := m.mapResource(child, childSchema, state, childPath)
			if err != nil {
				return nil, err
			}
			v.child = sub
		}

		bound, err := s.bind(res, v)
		if err != nil {
			if invalidErr := state.invalid(childPath, err); invalidErr != nil {
				return nil, invalidErr
			}
			continue
		}
		if !bound {
			if err := state.unknown(childPath); err != nil {
				return nil, err
			}
			continue
		}
		if v.leaf {
			base.setValue(child.name, v.text)
		} else {
			base.attach(child.name, v.child)
		}
	}
	return res, nil
}

type node struct {
	name     string
	attrs    map[string]string
	text     string
	children []*node
}

func (n *node) isLeaf() bool {
	return len(n.children) == 0
}

func parseTree(data []byte) (*node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, core.NewError(core.ErrMalformedPayload, "resource: payload is empty", nil)
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true

	var (
		root  *node
		stack []*node
	)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.NewError(core.ErrMalformedPayload,
				fmt.Sprintf("resource: payload is not well-formed xml: %v", err), nil)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if root != nil && len(stack) == 0 {
				return nil, core.NewError(core.ErrMalformedPayload, "resource: payload has multiple root elements", nil)
			}
			n := &node{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, attr := range t.Attr {
				if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
					continue
				}
				n.attrs[attr.Name.Local] = attr.Value
			}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, core.NewError(core.ErrMalformedPayload, "resource: unbalanced end element", nil)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, core.NewError(core.ErrMalformedPayload, "resource: text outside root element", nil)
				}
				continue
			}
			current := stack[len(stack)-1]
			current.text += string(t)
		}
	}
	if root == nil {
		return nil, core.NewError(core.ErrMalformedPayload, "resource: payload has no root element", nil)
	}
	if len(stack) != 0 {
		return nil, core.NewError(core.ErrMalformedPayload, "resource: payload ends inside an element", nil)
	}
	return root, nil
}
