package mapping

import (
	"fmt"
)

// DiffIter invokes the given callback for every node that is different from
// the given mapping, walking both trees in path order. The iteration will
// stop if the callback returns keepGoing==false or an error. Callback
// invocation with added==removed==false signifies nodes whose type or
// settings have changed. Nodes under an added or removed object are
// reported too; subtrees both mappings share are skipped without being
// visited.
func (m *Mapping) DiffIter(
	old *Mapping,
	f func(added, removed bool, path string, addedNode, removedNode Node) (bool, error),
) error {
	if old == nil {
		old = Empty()
	}
	oldStack := newIterItemStack(old.root)
	newStack := newIterItemStack(m.root)
	for {
		o := oldStack.pop()
		n := newStack.pop()
		if o == nil || n == nil {
			if o != nil || n != nil {
				return fmt.Errorf("diff: unbalanced walk")
			}
			break
		}
		var keepGoing bool
		var err error
		switch {
		case o.end && n.end:
			continue
		case n.end || (!o.end && o.node.Name() < n.node.Name()):
			newStack.push(n)
			keepGoing, err = f(false, true, o.node.Path(), nil, o.node)
			oldStack.pushChildren(o.node)
			newStack.pushEnd()
		case o.end || o.node.Name() > n.node.Name():
			oldStack.push(o)
			keepGoing, err = f(true, false, n.node.Path(), n.node, nil)
			oldStack.pushEnd()
			newStack.pushChildren(n.node)
		default:
			if o.node == n.node {
				continue
			}
			keepGoing = true
			oldObj, oldIsObj := o.node.(*ObjectNode)
			newObj, newIsObj := n.node.(*ObjectNode)
			if oldIsObj && newIsObj {
				if oldObj.mode != newObj.mode || oldObj.dynamic != newObj.dynamic || oldObj.enabled != newObj.enabled {
					keepGoing, err = f(false, false, n.node.Path(), n.node, o.node)
				}
				oldStack.pushChildren(oldObj)
				newStack.pushChildren(newObj)
			} else if !equalNodes(o.node, n.node) {
				keepGoing, err = f(false, false, n.node.Path(), n.node, o.node)
			}
		}
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	for i, f0 := range old.metadata {
		f1 := m.metadata[i]
		if equalNodes(f0, f1) {
			continue
		}
		keepGoing, err := f(false, false, f1.name, f1, f0)
		if err != nil {
			return fmt.Errorf("callback: %w", err)
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// Diff summarizes the differences of m from old as sorted path lists.
func (m *Mapping) Diff(old *Mapping) (added, removed, changed []string, err error) {
	err = m.DiffIter(old, func(a, r bool, path string, _, _ Node) (bool, error) {
		switch {
		case a:
			added = append(added, path)
		case r:
			removed = append(removed, path)
		default:
			changed = append(changed, path)
		}
		return true, nil
	})
	return added, removed, changed, err
}

type iterItem struct {
	node Node
	// end marks the end of an object's children.
	end bool
}

type iterItemStack struct {
	things []iterItem
}

func newIterItemStack(root *ObjectNode) iterItemStack {
	return iterItemStack{
		[]iterItem{{node: root}},
	}
}

func (stack *iterItemStack) pop() *iterItem {
	if len(stack.things) > 0 {
		popped := stack.things[len(stack.things)-1]
		stack.things = stack.things[0 : len(stack.things)-1]
		return &popped
	}
	return nil
}

// pushChildren pushes an end marker and then the children of an object so
// that they pop in name order. Leaves only get the marker.
func (stack *iterItemStack) pushChildren(node Node) {
	stack.pushEnd()
	o, ok := node.(*ObjectNode)
	if !ok {
		return
	}
	for i := len(o.children) - 1; i >= 0; i-- {
		stack.push(&iterItem{node: o.children[i]})
	}
}

func (stack *iterItemStack) pushEnd() {
	stack.push(&iterItem{end: true})
}

func (stack *iterItemStack) push(item *iterItem) {
	stack.things = append(stack.things, *item)
}
