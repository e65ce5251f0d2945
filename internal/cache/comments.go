package cache

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"curio-backend/internal/domain"
	"curio-backend/internal/errors"
	"curio-backend/internal/store"
)

// Comments is the comment façade. It addresses nodes through the global
// comment index and materializes a post's tree on demand, including for
// comments reached before their owning post was ever cached.
type Comments struct {
	cache *Cache
}

// withComments resolves a comment id to its post's tree and path, loading
// the post and its comments from the store when the index has no live entry.
func (cm Comments) withComments(ctx context.Context, id uuid.UUID, f func(postComments, []int)) error {
	if post, path, ok := cm.cache.comments.get(id); ok {
		return post.withComments(ctx, cm.cache, func(pc postComments) {
			f(pc, path)
		})
	}

	postID, ok, err := cm.cache.store.ReadCommentPost(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound("comment", id)
	}

	post, err := cm.cache.Posts().Get(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return errors.NotFound("comment", id)
	}

	return post.withComments(ctx, cm.cache, func(pc postComments) {
		// Building the tree registered every node; a comment deleted
		// since the store read simply stays unresolved.
		if path, ok := cm.cache.comments.path(id); ok {
			f(pc, path)
		}
	})
}

// Get returns the comment model. Tombstoned leaves and stale paths report
// NotFound.
func (cm Comments) Get(ctx context.Context, id uuid.UUID) (domain.Comment, error) {
	var model *domain.Comment
	if err := cm.withComments(ctx, id, func(pc postComments, path []int) {
		model = pc.get(path)
	}); err != nil {
		return domain.Comment{}, err
	}

	if model == nil {
		return domain.Comment{}, errors.NotFound("comment", id)
	}
	return *model, nil
}

// CanEdit returns nil if user authored the comment; otherwise edits require
// admin.
func (cm Comments) CanEdit(ctx context.Context, id uuid.UUID, user *User) error {
	author, err := cm.user(ctx, id)
	if err != nil {
		return err
	}

	if user != nil && author != nil && *author == user.ID {
		return nil
	}
	if user == nil {
		return errors.ErrUnauthorized
	}
	return user.RequireAdmin()
}

// Reply threads a stored reply under its parent, credits the author, and
// registers the new node in the index. If the parent's post is cached but
// its tree is not materialized, only the denormalized count moves; the node
// appears when the tree is next built.
func (cm Comments) Reply(parent uuid.UUID, row store.CommentRow, user *User) domain.CommentData {
	if user != nil {
		user.Update(func(d *UserData) { d.CommentCount++ })
	}

	comment := newComment(row, user)
	data := comment.Data()

	if post, path, ok := cm.cache.comments.get(parent); ok {
		if index, ok := post.reply(path, comment); ok {
			cm.cache.comments.insert(comment.ID, post, append(slices.Clone(path), index))
		}
	} else if post, ok := cm.cache.posts.Lookup(row.PostID); ok {
		post.IncrementCommentCount()
	}

	return data
}

// Update rewrites a comment's content in place.
func (cm Comments) Update(id uuid.UUID, content string) {
	if post, path, ok := cm.cache.comments.get(id); ok {
		post.updateComment(path, func(c *Comment) { c.Content = content })
	}
}

// Delete tombstones a comment. Non-recursive deletion keeps replies threaded
// under the tombstone; recursive deletion takes the whole subtree. Detached
// nodes are deregistered from the index asynchronously.
func (cm Comments) Delete(id uuid.UUID, recursive bool) {
	if post, path, ok := cm.cache.comments.get(id); ok {
		removed := post.deleteComment(path, recursive)
		cm.cache.comments.deleteAll(removed)
	}
}

func (cm Comments) user(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var author *uuid.UUID
	err := cm.withComments(ctx, id, func(pc postComments, path []int) {
		author = pc.user(path)
	})
	return author, err
}
