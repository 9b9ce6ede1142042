package tree

import (
	"encoding/json"
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Children maps child keys to nodes in insertion order.
type Children = orderedmap.OrderedMap[string, *Node]

// Node is one topic in the tree. Label keeps the first display text seen
// for the node's key; Comments holds the comments filed at this node.
type Node struct {
	Label    string    `json:"label"`
	Children *Children `json:"children"`
	Comments []string  `json:"comments"`
}

func newNode(label string) *Node {
	return &Node{
		Label:    label,
		Children: orderedmap.New[string, *Node](),
		Comments: []string{},
	}
}

func (n *Node) UnmarshalJSON(data []byte) error {
	type rawNode Node
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Children == nil {
		raw.Children = orderedmap.New[string, *Node]()
	}
	if raw.Comments == nil {
		raw.Comments = []string{}
	}
	*n = Node(raw)
	return nil
}

// Child returns the child stored under key.
func (n *Node) Child(key string) (*Node, bool) {
	return n.Children.Get(key)
}

func (n *Node) childFor(label string) *Node {
	key := Normalize(label)
	if child, ok := n.Children.Get(key); ok {
		return child
	}
	child := newNode(label)
	n.Children.Set(key, child)
	return child
}

func (n *Node) addComment(comment string) {
	if slices.Contains(n.Comments, comment) {
		return
	}
	n.Comments = append(n.Comments, comment)
}

func (n *Node) clone() *Node {
	out := newNode(n.Label)
	out.Comments = append(out.Comments, n.Comments...)
	for pair := n.Children.Oldest(); pair != nil; pair = pair.Next() {
		out.Children.Set(pair.Key, pair.Value.clone())
	}
	return out
}

// Tree is a comment topic tree. Its top-level nodes are the main topics,
// kept in the order they were first inserted.
type Tree struct {
	topics *Children
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{topics: orderedmap.New[string, *Node]()}
}

// Insert files comment under the main topic and under every path below it.
// Labels are matched by their normalized key, so "Sports" and "sports!"
// land on the same node and the first label wins. Each path starts again
// from the main topic; an empty path files the comment on the main topic
// itself. A comment already present at a leaf is not appended twice.
// Every label is checked before the tree is touched.
func (t *Tree) Insert(main string, paths [][]string, comment string) error {
	if !ValidLabel(main) {
		return fmt.Errorf("%w: main topic %q", ErrDegenerateLabel, main)
	}
	for _, path := range paths {
		for _, label := range path {
			if !ValidLabel(label) {
				return fmt.Errorf("%w: subtopic %q", ErrDegenerateLabel, label)
			}
		}
	}

	mainKey := Normalize(main)
	root, ok := t.topics.Get(mainKey)
	if !ok {
		root = newNode(main)
		t.topics.Set(mainKey, root)
	}

	for _, path := range paths {
		node := root
		for _, label := range path {
			node = node.childFor(label)
		}
		node.addComment(comment)
	}
	return nil
}

// MainTopics returns the display labels of the top-level nodes in stored order.
func (t *Tree) MainTopics() []string {
	labels := make([]string, 0, t.topics.Len())
	for pair := t.topics.Oldest(); pair != nil; pair = pair.Next() {
		labels = append(labels, pair.Value.Label)
	}
	return labels
}

// MainKeys returns the normalized keys of the top-level nodes in stored order.
func (t *Tree) MainKeys() []string {
	keys := make([]string, 0, t.topics.Len())
	for pair := t.topics.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of main topics.
func (t *Tree) Len() int {
	return t.topics.Len()
}

// Find walks the tree by keys, starting at a main topic key. The returned
// node belongs to t and must be treated as read-only.
func (t *Tree) Find(keys ...string) (*Node, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	node, ok := t.topics.Get(keys[0])
	if !ok {
		return nil, false
	}
	for _, key := range keys[1:] {
		node, ok = node.Child(key)
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Clone returns a deep copy of t.
func (t *Tree) Clone() *Tree {
	out := New()
	for pair := t.topics.Oldest(); pair != nil; pair = pair.Next() {
		out.topics.Set(pair.Key, pair.Value.clone())
	}
	return out
}

// Leaf is a node that holds comments, addressed by its key path.
type Leaf struct {
	MainKey   string
	MainLabel string
	Keys      []string
	Labels    []string
	Comments  []string
}

// Leaves lists every node holding comments, depth first in stored order.
func (t *Tree) Leaves() []Leaf {
	var leaves []Leaf
	for pair := t.topics.Oldest(); pair != nil; pair = pair.Next() {
		main := pair.Value
		var walk func(n *Node, keys, labels []string)
		walk = func(n *Node, keys, labels []string) {
			if len(n.Comments) > 0 {
				leaves = append(leaves, Leaf{
					MainKey:   pair.Key,
					MainLabel: main.Label,
					Keys:      slices.Clone(keys),
					Labels:    slices.Clone(labels),
					Comments:  slices.Clone(n.Comments),
				})
			}
			for child := n.Children.Oldest(); child != nil; child = child.Next() {
				walk(child.Value, append(keys, child.Key), append(labels, child.Value.Label))
			}
		}
		walk(main, nil, nil)
	}
	return leaves
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	if t == nil || t.topics == nil {
		return []byte("{}"), nil
	}
	return t.topics.MarshalJSON()
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	topics := orderedmap.New[string, *Node]()
	if string(data) != "null" {
		if err := topics.UnmarshalJSON(data); err != nil {
			return err
		}
	}
	t.topics = topics
	return nil
}

// Encode serializes t as an indented JSON document.
func Encode(t *Tree) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tree: %w", err)
	}
	return data, nil
}

// Decode parses a JSON document produced by Encode.
func Decode(data []byte) (*Tree, error) {
	t := New()
	if len(data) == 0 {
		return t, nil
	}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return t, nil
}
