package netpoll

// changeList is the intrusive singly-linked list of spec.md §4.2,
// threaded through WaitSlot.nextChange. Enqueue is O(1) at the head;
// there is no dequeue-by-key — cancellation never removes an entry, the
// reconciliation pass simply no-ops on slots whose desired mask already
// matches the installed one (spec.md §3 invariant 3).
type changeList struct {
	head *WaitSlot
}

// enqueue pushes s onto the head of the list if it is not already on it
// (invariant 5: no descriptor appears twice simultaneously).
func (c *changeList) enqueue(s *WaitSlot) {
	if s.onChangeList() {
		return
	}
	if c.head == nil {
		s.nextChange = changeListEnd
	} else {
		s.nextChange = c.head
	}
	c.head = s
}

// drain walks the list head to end, invoking fn on every slot and
// unlinking it (nextChange reset to nil) as it goes, regardless of what
// fn does. Safe to call on an empty list.
func (c *changeList) drain(fn func(s *WaitSlot)) {
	s := c.head
	c.head = nil
	for s != nil && s != changeListEnd {
		next := s.nextChange
		s.nextChange = nil
		fn(s)
		if next == changeListEnd {
			break
		}
		s = next
	}
}
