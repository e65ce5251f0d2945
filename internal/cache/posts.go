package cache

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"curio-backend/internal/domain"
	"curio-backend/internal/errors"
	"curio-backend/internal/store"
)

// PostData is the mutable portion of a cached post. Objects and tags are
// strong handles resolved through their own caches; related posts stay as
// ids and are hydrated on demand. The comment tree is materialized lazily on
// first use and reused thereafter.
type PostData struct {
	Title        string
	Description  string
	Visibility   domain.Visibility
	Created      time.Time
	Modified     time.Time
	Objects      []*Object
	Posts        []uuid.UUID
	Tags         []*Tag
	CommentCount int

	comments       []*Comment
	commentsLoaded bool
}

// comment walks the path to a node, re-validating every index. A stale path
// yields nil instead of panicking.
func (d *PostData) comment(path []int) *Comment {
	if !d.commentsLoaded || len(path) == 0 {
		return nil
	}
	if path[0] < 0 || path[0] >= len(d.comments) {
		return nil
	}

	node := d.comments[path[0]]
	for _, i := range path[1:] {
		if i < 0 || i >= len(node.Children) {
			return nil
		}
		node = node.Children[i]
	}
	return node
}

// addComment appends a new root comment. The returned path is valid only if
// the tree is materialized.
func (d *PostData) addComment(comment *Comment) ([]int, bool) {
	d.CommentCount++

	if !d.commentsLoaded {
		return nil, false
	}
	d.comments = append(d.comments, comment)
	return []int{len(d.comments) - 1}, true
}

// addTag reports whether the tag was newly attached.
func (d *PostData) addTag(tag *Tag) bool {
	d.Tags = slices.DeleteFunc(d.Tags, func(t *Tag) bool { return t.Deleted() })

	if slices.Contains(d.Tags, tag) {
		return false
	}
	d.Tags = append(d.Tags, tag)
	return true
}

// deleteTag returns the detached tag, or nil if the id was not attached.
func (d *PostData) deleteTag(id uuid.UUID) *Tag {
	var removed *Tag
	d.Tags = slices.DeleteFunc(d.Tags, func(t *Tag) bool {
		if t.ID == id {
			removed = t
		}
		return t.Deleted() || t.ID == id
	})
	return removed
}

func (d *PostData) reply(path []int, reply *Comment) (int, bool) {
	parent := d.comment(path)
	if parent == nil {
		return 0, false
	}

	index := parent.reply(reply)
	d.CommentCount++
	return index, true
}

// deleteComment tombstones the node at path and prunes any ancestor chain
// whose children are now all logically deleted. The returned nodes were
// detached from the tree and must be deregistered from the comment index.
func (d *PostData) deleteComment(path []int, recursive bool) []*Comment {
	target := d.comment(path)
	if target == nil {
		return nil
	}

	count := 1
	if recursive {
		count = target.count()
	}
	removed := target.delete(recursive)

	d.CommentCount -= count
	if d.CommentCount < 0 {
		d.CommentCount = 0
	}

	allEmpty := func(nodes []*Comment) bool {
		for _, node := range nodes {
			if !node.isEmpty() {
				return false
			}
		}
		return true
	}

	pruned := false
	for l := len(path) - 1; l >= 1; l-- {
		ancestor := d.comment(path[:l])
		if ancestor == nil {
			break
		}

		if pruned = allEmpty(ancestor.Children); !pruned {
			break
		}
		removed = append(removed, ancestor.Children...)
		ancestor.Children = nil
	}

	if pruned && allEmpty(d.comments) {
		removed = append(removed, d.comments...)
		d.comments = nil
	}

	return removed
}

// Post is a cached post. The poster back-reference is immutable; everything
// else lives in the mutable slot.
type Post struct {
	ID      uuid.UUID
	Poster  *User
	mutable slot[PostData]
}

// newPost resolves the row's references through the other caches. For a
// newly created post it also registers object back-references and, unless
// the post is a draft, credits poster and tag counters.
func newPost(ctx context.Context, c *Cache, row store.PostRow, isNew bool) (*Post, error) {
	var poster *User
	if row.Poster != nil {
		// A failed poster lookup degrades to an anonymous post.
		poster, _ = c.Users().Get(ctx, *row.Poster)
	}

	objects, err := c.Objects().GetMultiple(ctx, row.Objects)
	if err != nil {
		return nil, err
	}

	tags, err := c.Tags().GetMultiple(ctx, row.Tags)
	if err != nil {
		return nil, err
	}

	if isNew {
		for _, object := range objects {
			object.AddPost(row.ID)
		}

		if row.Visibility != domain.VisibilityDraft {
			if poster != nil {
				poster.Update(func(d *UserData) { d.PostCount++ })
			}
			for _, tag := range tags {
				tag.Update(func(d *TagData) { d.PostCount++ })
			}
		}
	}

	p := &Post{ID: row.ID, Poster: poster}
	p.mutable.init(PostData{
		Title:        row.Title,
		Description:  row.Description,
		Visibility:   row.Visibility,
		Created:      row.Created,
		Modified:     row.Modified,
		Objects:      objects,
		Posts:        row.Posts,
		Tags:         tags,
		CommentCount: row.CommentCount,
	})
	return p, nil
}

// CanEdit returns nil if user is the poster; otherwise edits require admin.
func (p *Post) CanEdit(user *User) error {
	if user == nil {
		return errors.ErrUnauthorized
	}
	if p.Poster == user {
		return nil
	}
	return user.RequireAdmin()
}

// CanView returns NotFound once the post is tombstoned and Unauthorized for
// drafts viewed by anyone but their poster.
func (p *Post) CanView(viewer *User) error {
	isDraft := false
	if !p.mutable.view(func(d *PostData) {
		isDraft = d.Visibility == domain.VisibilityDraft
	}) {
		return errors.NotFound("post", p.ID)
	}

	if !isDraft || (viewer != nil && viewer == p.Poster) {
		return nil
	}
	return errors.ErrUnauthorized
}

// Model returns the full post model with resolved previews, or nil once
// tombstoned. Related-post previews are hydrated outside the slot lock.
func (p *Post) Model(ctx context.Context, c *Cache, viewer *User) (*domain.Post, error) {
	var related []uuid.UUID
	if !p.mutable.view(func(d *PostData) {
		related = slices.Clone(d.Posts)
	}) {
		return nil, nil
	}

	previews, err := c.Posts().Previews(ctx, related, viewer)
	if err != nil {
		return nil, err
	}

	var model *domain.Post
	p.mutable.view(func(d *PostData) {
		model = &domain.Post{
			ID:           p.ID,
			Title:        d.Title,
			Description:  d.Description,
			Visibility:   d.Visibility,
			Created:      d.Created,
			Modified:     d.Modified,
			Posts:        previews,
			CommentCount: d.CommentCount,
		}
		if p.Poster != nil {
			model.Poster = p.Poster.Preview()
		}
		for _, object := range d.Objects {
			model.Objects = append(model.Objects, object.Preview())
		}
		for _, tag := range d.Tags {
			if preview := tag.Preview(); preview != nil {
				model.Tags = append(model.Tags, *preview)
			}
		}
	})
	return model, nil
}

// Preview returns the compact post representation, or nil if the post is
// tombstoned or a draft the viewer may not see.
func (p *Post) Preview(viewer *User) *domain.PostPreview {
	var preview *domain.PostPreview
	p.mutable.view(func(d *PostData) {
		isPoster := viewer != nil && viewer == p.Poster
		if d.Visibility == domain.VisibilityDraft && !isPoster {
			return
		}

		preview = &domain.PostPreview{
			ID:           p.ID,
			Title:        d.Title,
			CommentCount: d.CommentCount,
			ObjectCount:  len(d.Objects),
			Created:      d.Created,
		}
		if p.Poster != nil {
			preview.Poster = p.Poster.Preview()
		}
		if len(d.Objects) > 0 {
			op := d.Objects[0].Preview()
			preview.Preview = &op
		}
	})
	return preview
}

// AddComment records a new root comment, credits the author, and registers
// the node in the comment index if the tree is materialized.
func (p *Post) AddComment(c *Cache, row store.CommentRow, user *User) {
	if user != nil {
		user.Update(func(d *UserData) { d.CommentCount++ })
	}

	comment := newComment(row, user)

	var (
		path []int
		ok   bool
	)
	p.mutable.update(func(d *PostData) {
		path, ok = d.addComment(comment)
	})

	if ok {
		c.comments.insert(comment.ID, p, path)
	}
}

// AddObjects replaces the post's object list, keeping back-references in
// sync.
func (p *Post) AddObjects(objects []*Object, modified time.Time) {
	for _, object := range objects {
		object.AddPost(p.ID)
	}

	p.mutable.update(func(d *PostData) {
		d.Objects = objects
		d.Modified = modified
	})
}

// DeleteObjects removes the given objects from the post and deregisters the
// post from each removed object.
func (p *Post) DeleteObjects(objects []uuid.UUID, modified time.Time) {
	p.mutable.update(func(d *PostData) {
		d.Objects = slices.DeleteFunc(d.Objects, func(object *Object) bool {
			if slices.Contains(objects, object.ID) {
				object.DeletePost(p.ID)
				return true
			}
			return false
		})
		d.Modified = modified
	})
}

// AddTag attaches a tag, dropping tombstoned tags encountered on the way. A
// newly attached tag gains a post unless the post is a draft.
func (p *Post) AddTag(tag *Tag) {
	p.mutable.update(func(d *PostData) {
		if d.addTag(tag) && d.Visibility != domain.VisibilityDraft {
			tag.Update(func(td *TagData) { td.PostCount++ })
		}
	})
}

// DeleteTag detaches a tag by id, taking back its credit unless the post is
// a draft. The debit clamps at zero like every other counter.
func (p *Post) DeleteTag(id uuid.UUID) {
	p.mutable.update(func(d *PostData) {
		tag := d.deleteTag(id)
		if tag == nil || d.Visibility == domain.VisibilityDraft {
			return
		}
		tag.Update(func(td *TagData) {
			if td.PostCount > 0 {
				td.PostCount--
			}
		})
	})
}

// Publish makes a draft public: object back-references are registered, tag
// and poster post counts are credited, and both timestamps are reset to the
// publication time. Counters reflect public posts only, so this is the
// moment they move.
func (p *Post) Publish(timestamp time.Time) {
	ok := p.mutable.update(func(d *PostData) {
		for _, object := range d.Objects {
			object.AddPost(p.ID)
		}
		for _, tag := range d.Tags {
			tag.Update(func(td *TagData) { td.PostCount++ })
		}

		d.Visibility = domain.VisibilityPublic
		d.Created = timestamp
		d.Modified = timestamp
	})

	if ok && p.Poster != nil {
		p.Poster.Update(func(d *UserData) { d.PostCount++ })
	}
}

// SetTitle updates the title and modification time.
func (p *Post) SetTitle(title string, modified time.Time) {
	p.mutable.update(func(d *PostData) {
		d.Title = title
		d.Modified = modified
	})
}

// SetDescription updates the description and modification time.
func (p *Post) SetDescription(description string, modified time.Time) {
	p.mutable.update(func(d *PostData) {
		d.Description = description
		d.Modified = modified
	})
}

// SetRelatedPosts replaces the related-post id list.
func (p *Post) SetRelatedPosts(posts []uuid.UUID) {
	p.mutable.update(func(d *PostData) { d.Posts = posts })
}

// IncrementCommentCount bumps the denormalized count without touching the
// tree, for replies recorded while the tree is not materialized.
func (p *Post) IncrementCommentCount() {
	p.mutable.update(func(d *PostData) { d.CommentCount++ })
}

// Deleted reports whether the post is tombstoned.
func (p *Post) Deleted() bool {
	return p.mutable.deleted()
}

// delete tombstones the post: object back-references are deregistered,
// poster and tag counters are debited for public posts, and a materialized
// comment tree is handed to the index for asynchronous teardown.
func (p *Post) delete(c *Cache) {
	d, ok := p.mutable.take()
	if !ok {
		return
	}

	for _, object := range d.Objects {
		object.DeletePost(p.ID)
	}

	if d.Visibility != domain.VisibilityDraft {
		if p.Poster != nil {
			p.Poster.Update(func(ud *UserData) {
				if ud.PostCount > 0 {
					ud.PostCount--
				}
			})
		}
		for _, tag := range d.Tags {
			tag.Update(func(td *TagData) {
				if td.PostCount > 0 {
					td.PostCount--
				}
			})
		}
	}

	if d.commentsLoaded {
		c.comments.deleteAll(d.comments)
	}
}

// updateComment runs f against the node at path under the write lock.
func (p *Post) updateComment(path []int, f func(*Comment)) bool {
	found := false
	p.mutable.update(func(d *PostData) {
		if node := d.comment(path); node != nil {
			f(node)
			found = true
		}
	})
	return found
}

// reply appends a child under the node at path, returning the new child
// index.
func (p *Post) reply(path []int, comment *Comment) (int, bool) {
	var (
		index int
		ok    bool
	)
	p.mutable.update(func(d *PostData) {
		index, ok = d.reply(path, comment)
	})
	return index, ok
}

// deleteComment tombstones and prunes under the write lock, returning the
// detached nodes.
func (p *Post) deleteComment(path []int, recursive bool) []*Comment {
	var removed []*Comment
	p.mutable.update(func(d *PostData) {
		removed = d.deleteComment(path, recursive)
	})
	return removed
}

// withComments runs f against the post's comment tree, materializing it from
// the store on first use. Returns NotFound once the post is tombstoned.
func (p *Post) withComments(ctx context.Context, c *Cache, f func(postComments)) error {
	done := false
	ok := p.mutable.view(func(d *PostData) {
		if d.commentsLoaded {
			f(postComments{post: p.ID, comments: d.comments})
			done = true
		}
	})
	if !ok {
		return errors.NotFound("post", p.ID)
	}
	if done {
		return nil
	}

	comments, err := p.buildComments(ctx, c)
	if err != nil {
		return err
	}

	f(postComments{post: p.ID, comments: comments})

	// Concurrent builders race here; the first one wins and later trees
	// are discarded. Index entries written by the losers were overwritten
	// by equal paths.
	p.mutable.update(func(d *PostData) {
		if !d.commentsLoaded {
			d.comments = comments
			d.commentsLoaded = true
		}
	})
	return nil
}

// buildComments turns the store's flat rows into a tree. Rows arrive sorted
// by level then parent id, so each level splits into contiguous sibling runs
// and a stack of per-run cursors walks the tree depth-first without ever
// searching backwards. Every node is registered in the comment index with
// its path as it is placed.
func (p *Post) buildComments(ctx context.Context, c *Cache) ([]*Comment, error) {
	rows, err := c.store.ReadComments(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	users := make(map[uuid.UUID]*User)
	var userIDs []uuid.UUID
	for _, row := range rows {
		if row.UserID != nil {
			if _, ok := users[*row.UserID]; !ok {
				users[*row.UserID] = nil
				userIDs = append(userIDs, *row.UserID)
			}
		}
	}

	resolved, err := c.Users().GetMultiple(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, user := range resolved {
		users[user.ID] = user
	}

	var levels [][]store.CommentRow
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].Level == rows[i].Level {
			j++
		}
		levels = append(levels, rows[i:j])
		i = j
	}

	type cursor struct {
		rows []store.CommentRow
		next int
	}

	var result []*Comment
	var stack []*cursor
	if len(levels) > 0 {
		stack = append(stack, &cursor{rows: levels[0]})
	}

	for {
		var row *store.CommentRow
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next < len(top.rows) {
				row = &top.rows[top.next]
				top.next++
				break
			}
			stack = stack[:len(stack)-1]
		}
		if row == nil {
			break
		}

		var user *User
		if row.UserID != nil {
			user = users[*row.UserID]
		}
		node := newComment(*row, user)

		var path []int
		if node.Level == 0 {
			result = append(result, node)
			path = []int{len(result) - 1}
		} else {
			path = []int{len(result) - 1}
			result[len(result)-1].push(node, &path)
		}

		c.comments.insert(row.ID, p, path)

		// Push this node's children: the contiguous run on the next
		// level whose parent id matches.
		if len(stack) < len(levels) {
			next := levels[len(stack)]
			for i := 0; i < len(next); {
				j := i
				for j < len(next) && sameParent(next[j].ParentID, next[i].ParentID) {
					j++
				}
				if next[i].ParentID != nil && *next[i].ParentID == row.ID {
					stack = append(stack, &cursor{rows: next[i:j]})
					break
				}
				i = j
			}
		}
	}

	return result, nil
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// postComments is a read view over a materialized comment tree. It is only
// valid inside the callback that received it.
type postComments struct {
	post     uuid.UUID
	comments []*Comment
}

func (pc postComments) comment(path []int) *Comment {
	if len(path) == 0 || path[0] < 0 || path[0] >= len(pc.comments) {
		return nil
	}

	node := pc.comments[path[0]]
	for _, i := range path[1:] {
		if i < 0 || i >= len(node.Children) {
			return nil
		}
		node = node.Children[i]
	}
	return node
}

// get projects the node at path into the external comment model, tracking
// the parent id along the walk. Stale paths and tombstoned leaves yield nil.
func (pc postComments) get(path []int) *domain.Comment {
	if len(path) == 0 || path[0] < 0 || path[0] >= len(pc.comments) {
		return nil
	}

	var parent *uuid.UUID
	node := pc.comments[path[0]]
	for _, i := range path[1:] {
		if i < 0 || i >= len(node.Children) {
			return nil
		}
		id := node.ID
		parent = &id
		node = node.Children[i]
	}
	return node.Model(pc.post, parent)
}

// all flattens the whole tree for display, roots newest first.
func (pc postComments) all() []domain.CommentData {
	var result []domain.CommentData
	for i := len(pc.comments) - 1; i >= 0; i-- {
		if root := pc.comments[i]; !root.isEmpty() {
			root.thread(&result)
		}
	}
	return result
}

// user returns the author id of the node at path.
func (pc postComments) user(path []int) *uuid.UUID {
	node := pc.comment(path)
	if node == nil || node.User == nil {
		return nil
	}
	id := node.User.ID
	return &id
}

// Posts is the post-cache façade.
type Posts struct {
	cache *Cache
}

// Get returns the cached post, fetching from the store on miss. A nil result
// with a nil error means the post does not exist.
func (p Posts) Get(ctx context.Context, id uuid.UUID) (*Post, error) {
	return p.cache.posts.Get(ctx, id, func(ctx context.Context) (*Post, error) {
		row, err := p.cache.store.ReadPost(ctx, id)
		if err != nil || row == nil {
			return nil, err
		}
		return newPost(ctx, p.cache, *row, false)
	})
}

// GetMultiple hydrates an id list, preserving order and skipping ids that do
// not exist.
func (p Posts) GetMultiple(ctx context.Context, ids []uuid.UUID) ([]*Post, error) {
	return p.cache.posts.GetMultiple(ctx, ids, func(ctx context.Context, misses []uuid.UUID) ([]*Post, error) {
		rows, err := p.cache.store.ReadPosts(ctx, misses)
		if err != nil {
			return nil, err
		}

		posts := make([]*Post, len(rows))
		for i, row := range rows {
			if posts[i], err = newPost(ctx, p.cache, row, false); err != nil {
				return nil, err
			}
		}
		return posts, nil
	})
}

// Previews hydrates an id list into previews visible to the viewer.
func (p Posts) Previews(ctx context.Context, ids []uuid.UUID, viewer *User) ([]domain.PostPreview, error) {
	posts, err := p.GetMultiple(ctx, ids)
	if err != nil {
		return nil, err
	}

	previews := make([]domain.PostPreview, 0, len(posts))
	for _, post := range posts {
		if preview := post.Preview(viewer); preview != nil {
			previews = append(previews, *preview)
		}
	}
	return previews, nil
}

// Insert caches a freshly created post, wiring back-references and counters
// for it.
func (p Posts) Insert(ctx context.Context, row store.PostRow) (*Post, error) {
	post, err := newPost(ctx, p.cache, row, true)
	if err != nil {
		return nil, err
	}
	return p.cache.posts.Insert(post), nil
}

// Remove tombstones the post and clears its identity-map slot.
func (p Posts) Remove(post *Post) {
	post.delete(p.cache)
	p.cache.posts.Remove(post.ID)
}
