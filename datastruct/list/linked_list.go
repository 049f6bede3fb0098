package list

type Node struct {
	prev  *Node
	next  *Node
	list  *LinkedList
	Value interface{}
}

func (n *Node) Next() *Node {
	return n.next
}

func (n *Node) Prev() *Node {
	return n.prev
}

type LinkedList struct {
	left  *Node
	right *Node
	size  int
}

func (l *LinkedList) AddRight(val interface{}) *Node {
	n := &Node{
		prev:  nil,
		next:  nil,
		list:  l,
		Value: val,
	}
	if l.right == nil {
		l.right = n
		l.left = n
	} else {
		n.prev = l.right
		l.right.next = n
		l.right = n
	}
	l.size++
	return n
}

func (l *LinkedList) AddLeft(val interface{}) *Node {
	n := &Node{list: l, Value: val}
	if l.left == nil {
		l.left = n
		l.right = n
	} else {
		l.left.prev = n
		n.next = l.left
		l.left = n
	}
	l.size++
	return n
}

func (l *LinkedList) Left() *Node {
	return l.left
}

func (l *LinkedList) Right() *Node {
	return l.right
}

func (l *LinkedList) Size() int {
	return l.size
}

func (l *LinkedList) RemoveLeft() interface{} {
	if l.left == nil {
		return nil
	}
	val := l.left.Value
	l.Remove(l.left)
	return val
}

func (l *LinkedList) RemoveRight() interface{} {
	if l.right == nil {
		return nil
	}
	val := l.right.Value
	l.Remove(l.right)
	return val
}

// Remove 从链表中移除节点n，O(1)。n已经被移除或者不属于当前链表时返回false
func (l *LinkedList) Remove(n *Node) bool {
	if n == nil || n.list != l {
		return false
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.left = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.right = n.prev
	}
	n.prev = nil
	n.next = nil
	n.list = nil
	l.size--
	return true
}

func (l *LinkedList) ForEach(fun func(idx int, value interface{}) bool) {
	n := l.left

	for i := 0; n != nil; i++ {
		if !fun(i, n.Value) {
			break
		}
		n = n.next
	}
}

func NewLinkedList(vals ...interface{}) *LinkedList {
	l := &LinkedList{}
	for _, val := range vals {
		l.AddRight(val)
	}
	return l
}
