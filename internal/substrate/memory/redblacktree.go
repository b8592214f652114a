package memory

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

type color bool

const (
	black, red color = true, false
)

// entry the stored value and the version of the commit that wrote it.
type entry struct {
	value   []byte
	version uint64
}

// redBlackTree main index, ordered by key bytes.
//
// IMPORTANT: redBlackTree does not provide thread safety
type redBlackTree struct {
	root *redBlackNode
	size int
}

// redBlackNode is a tree element
type redBlackNode struct {
	key    []byte
	entry  entry
	color  color
	left   *redBlackNode
	right  *redBlackNode
	parent *redBlackNode
}

// put inserts or replaces key.
func (t *redBlackTree) put(key []byte, e entry) {
	if t.root == nil {
		t.root = &redBlackNode{key: key, entry: e, color: black}
		t.size++
		return
	}

	curNode := t.root
	var inserted *redBlackNode
	for inserted == nil {
		switch c := bytes.Compare(key, curNode.key); {
		case c == 0:
			curNode.entry = e
			return
		case c < 0:
			if curNode.left == nil {
				curNode.left = &redBlackNode{key: key, entry: e, color: red, parent: curNode}
				inserted = curNode.left
			} else {
				curNode = curNode.left
			}
		default:
			if curNode.right == nil {
				curNode.right = &redBlackNode{key: key, entry: e, color: red, parent: curNode}
				inserted = curNode.right
			} else {
				curNode = curNode.right
			}
		}
	}
	t.insertCase1(inserted)
	t.size++
}

// get returns the node of key, nil not found
func (t *redBlackTree) get(key []byte) *redBlackNode {
	curNode := t.root
	for curNode != nil {
		switch c := bytes.Compare(key, curNode.key); {
		case c == 0:
			return curNode
		case c < 0:
			curNode = curNode.left
		default:
			curNode = curNode.right
		}
	}
	return nil
}

// remove deletes key from the tree
func (t *redBlackTree) remove(key []byte) bool {
	delNode := t.get(key)
	if delNode == nil {
		return false
	}

	if delNode.left != nil && delNode.right != nil {
		pred := delNode.left.maximumNode()
		delNode.key = pred.key
		delNode.entry = pred.entry
		delNode = pred
	}

	var childNode *redBlackNode
	if delNode.right == nil {
		childNode = delNode.left
	} else {
		childNode = delNode.right
	}
	if delNode.color == black {
		delNode.color = nodeColor(childNode)
		t.deleteCase1(delNode)
	}
	t.replaceNode(delNode, childNode)
	if delNode.parent == nil && childNode != nil {
		childNode.color = black
	}

	t.size--
	return true
}

// ceiling returns the smallest node with key >= the input key, nil if none.
func (t *redBlackTree) ceiling(key []byte) *redBlackNode {
	var found *redBlackNode
	for curNode := t.root; curNode != nil; {
		switch c := bytes.Compare(key, curNode.key); {
		case c == 0:
			return curNode
		case c < 0:
			found = curNode
			curNode = curNode.left
		default:
			curNode = curNode.right
		}
	}
	return found
}

// String implements Stringer interface
func (t *redBlackTree) String() string {
	str := "RedBlackTree\n"
	if t.root != nil {
		output(t.root, "", true, &str)
	}
	return str
}

func (n *redBlackNode) String() string {
	c := "R"
	if n.color == black {
		c = "B"
	}
	return fmt.Sprintf("%s %s v%d", c, hex.EncodeToString(n.key), n.entry.version)
}

func output(node *redBlackNode, prefix string, isTail bool, str *string) {
	if node.right != nil {
		newPrefix := prefix
		if isTail {
			newPrefix += "│   "
		} else {
			newPrefix += "    "
		}
		output(node.right, newPrefix, false, str)
	}

	*str += prefix
	if isTail {
		*str += "└── "
	} else {
		*str += "┌── "
	}

	*str += node.String() + "\n"
	if node.left != nil {
		newPrefix := prefix
		if isTail {
			newPrefix += "    "
		} else {
			newPrefix += "│   "
		}
		output(node.left, newPrefix, true, str)
	}
}

func (n *redBlackNode) grandparent() *redBlackNode {
	if n != nil && n.parent != nil {
		return n.parent.parent
	}
	return nil
}

func (n *redBlackNode) uncle() *redBlackNode {
	if n == nil || n.parent == nil || n.parent.parent == nil {
		return nil
	}
	return n.parent.sibling()
}

func (n *redBlackNode) sibling() *redBlackNode {
	if n == nil || n.parent == nil {
		return nil
	}
	if n == n.parent.left {
		return n.parent.right
	}
	return n.parent.left
}

func (n *redBlackNode) maximumNode() *redBlackNode {
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

func (n *redBlackNode) minimumNode() *redBlackNode {
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

func (t *redBlackTree) rotateLeft(node *redBlackNode) {
	right := node.right
	t.replaceNode(node, right)
	node.right = right.left
	if right.left != nil {
		right.left.parent = node
	}
	right.left = node
	node.parent = right
}

func (t *redBlackTree) rotateRight(node *redBlackNode) {
	left := node.left
	t.replaceNode(node, left)
	node.left = left.right
	if left.right != nil {
		left.right.parent = node
	}
	left.right = node
	node.parent = left
}

func (t *redBlackTree) replaceNode(old *redBlackNode, new *redBlackNode) {
	if old.parent == nil {
		t.root = new
	} else {
		if old == old.parent.left {
			old.parent.left = new
		} else {
			old.parent.right = new
		}
	}
	if new != nil {
		new.parent = old.parent
	}
}

func (t *redBlackTree) insertCase1(node *redBlackNode) {
	if node.parent == nil {
		node.color = black
	} else {
		t.insertCase2(node)
	}
}

func (t *redBlackTree) insertCase2(node *redBlackNode) {
	if nodeColor(node.parent) == black {
		return
	}
	t.insertCase3(node)
}

func (t *redBlackTree) insertCase3(node *redBlackNode) {
	uncleNode := node.uncle()
	if nodeColor(uncleNode) == red {
		node.parent.color = black
		uncleNode.color = black
		node.grandparent().color = red
		t.insertCase1(node.grandparent())
	} else {
		t.insertCase4(node)
	}
}

func (t *redBlackTree) insertCase4(node *redBlackNode) {
	grandparentNode := node.grandparent()
	if node == node.parent.right && node.parent == grandparentNode.left {
		t.rotateLeft(node.parent)
		node = node.left
	} else if node == node.parent.left && node.parent == grandparentNode.right {
		t.rotateRight(node.parent)
		node = node.right
	}
	t.insertCase5(node)
}

func (t *redBlackTree) insertCase5(node *redBlackNode) {
	node.parent.color = black
	grandparentNode := node.grandparent()
	grandparentNode.color = red
	if node == node.parent.left && node.parent == grandparentNode.left {
		t.rotateRight(grandparentNode)
	} else if node == node.parent.right && node.parent == grandparentNode.right {
		t.rotateLeft(grandparentNode)
	}
}

func (t *redBlackTree) deleteCase1(node *redBlackNode) {
	if node.parent == nil {
		return
	}
	t.deleteCase2(node)
}

func (t *redBlackTree) deleteCase2(node *redBlackNode) {
	siblingNode := node.sibling()
	if nodeColor(siblingNode) == red {
		node.parent.color = red
		siblingNode.color = black
		if node == node.parent.left {
			t.rotateLeft(node.parent)
		} else {
			t.rotateRight(node.parent)
		}
	}
	t.deleteCase3(node)
}

func (t *redBlackTree) deleteCase3(node *redBlackNode) {
	siblingNode := node.sibling()
	if nodeColor(node.parent) == black &&
		nodeColor(siblingNode) == black &&
		nodeColor(siblingNode.left) == black &&
		nodeColor(siblingNode.right) == black {
		siblingNode.color = red
		t.deleteCase1(node.parent)
	} else {
		t.deleteCase4(node)
	}
}

func (t *redBlackTree) deleteCase4(node *redBlackNode) {
	siblingNode := node.sibling()
	if nodeColor(node.parent) == red &&
		nodeColor(siblingNode) == black &&
		nodeColor(siblingNode.left) == black &&
		nodeColor(siblingNode.right) == black {
		siblingNode.color = red
		node.parent.color = black
	} else {
		t.deleteCase5(node)
	}
}

func (t *redBlackTree) deleteCase5(node *redBlackNode) {
	siblingNode := node.sibling()
	if node == node.parent.left &&
		nodeColor(siblingNode) == black &&
		nodeColor(siblingNode.left) == red &&
		nodeColor(siblingNode.right) == black {
		siblingNode.color = red
		siblingNode.left.color = black
		t.rotateRight(siblingNode)
	} else if node == node.parent.right &&
		nodeColor(siblingNode) == black &&
		nodeColor(siblingNode.right) == red &&
		nodeColor(siblingNode.left) == black {
		siblingNode.color = red
		siblingNode.right.color = black
		t.rotateLeft(siblingNode)
	}
	t.deleteCase6(node)
}

func (t *redBlackTree) deleteCase6(node *redBlackNode) {
	siblingNode := node.sibling()
	siblingNode.color = nodeColor(node.parent)
	node.parent.color = black
	if node == node.parent.left && nodeColor(siblingNode.right) == red {
		siblingNode.right.color = black
		t.rotateLeft(node.parent)
	} else if nodeColor(siblingNode.left) == red {
		siblingNode.left.color = black
		t.rotateRight(node.parent)
	}
}

func nodeColor(node *redBlackNode) color {
	if node == nil {
		return black
	}
	return node.color
}
