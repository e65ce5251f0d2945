package cache

import (
	"time"

	"github.com/google/uuid"

	"curio-backend/internal/domain"
	"curio-backend/internal/store"
)

// Comment is a node in a post's comment tree. Content is the only mutable
// field; emptying it tombstones the node in place. A node with empty content
// and no children is logically deleted and is pruned from its parent on the
// next structural edit. Transitions only move forward: live, tombstone,
// pruned.
type Comment struct {
	ID       uuid.UUID
	User     *User
	Level    int
	Content  string
	Created  time.Time
	Children []*Comment
}

func newComment(row store.CommentRow, user *User) *Comment {
	return &Comment{
		ID:      row.ID,
		User:    user,
		Level:   row.Level,
		Content: row.Content,
		Created: row.Created,
	}
}

// Data returns the flattened representation used in thread listings.
func (c *Comment) Data() domain.CommentData {
	data := domain.CommentData{
		ID:      c.ID,
		Content: c.Content,
		Level:   c.Level,
		Created: c.Created,
	}
	if c.User != nil {
		data.User = c.User.Preview()
	}
	return data
}

// Model returns the addressable comment model, or nil if the node is
// logically deleted.
func (c *Comment) Model(postID uuid.UUID, parentID *uuid.UUID) *domain.Comment {
	if c.isEmpty() {
		return nil
	}

	model := &domain.Comment{
		ID:       c.ID,
		PostID:   postID,
		ParentID: parentID,
		Level:    c.Level,
		Content:  c.Content,
		Created:  c.Created,
	}
	if c.User != nil {
		model.User = c.User.Preview()
	}
	return model
}

// isEmpty reports whether the node is logically deleted: no content and
// nothing threaded below it.
func (c *Comment) isEmpty() bool {
	return c.Content == "" && len(c.Children) == 0
}

// count returns the size of the subtree rooted here, self included.
func (c *Comment) count() int {
	n := 1
	for _, child := range c.Children {
		n += child.count()
	}
	return n
}

// decrementCounts debits the author's comment count for this node and, when
// recursive, for every descendant. Already-tombstoned nodes were debited
// when they were deleted.
func (c *Comment) decrementCounts(recursive bool) {
	if c.Content != "" && c.User != nil {
		c.User.Update(func(d *UserData) {
			if d.CommentCount > 0 {
				d.CommentCount--
			}
		})
	}

	if recursive {
		for _, child := range c.Children {
			child.decrementCounts(true)
		}
	}
}

// delete tombstones the node. When recursive, the children are detached and
// returned so the caller can deregister them from the comment index.
func (c *Comment) delete(recursive bool) []*Comment {
	c.decrementCounts(recursive)
	c.Content = ""

	if recursive {
		children := c.Children
		c.Children = nil
		return children
	}
	return nil
}

// push appends a node loaded from the store, descending to the right depth
// via the last child at each level. Rows arrive sorted by level, so the
// parent chain is always the most recent node on each level. The taken child
// index is appended to path at each step.
func (c *Comment) push(comment *Comment, path *[]int) {
	if comment.Level == c.Level+1 {
		*path = append(*path, len(c.Children))
		c.Children = append(c.Children, comment)
	} else {
		*path = append(*path, len(c.Children)-1)
		c.Children[len(c.Children)-1].push(comment, path)
	}
}

// reply appends a new child and returns its index.
func (c *Comment) reply(reply *Comment) int {
	c.Children = append(c.Children, reply)
	return len(c.Children) - 1
}

// thread flattens the subtree for display: self first, then children newest
// first, skipping logically deleted leaves.
func (c *Comment) thread(out *[]domain.CommentData) {
	*out = append(*out, c.Data())

	for i := len(c.Children) - 1; i >= 0; i-- {
		if child := c.Children[i]; !child.isEmpty() {
			child.thread(out)
		}
	}
}
