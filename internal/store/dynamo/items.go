package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"curio-backend/internal/auth"
	"curio-backend/internal/domain"
	"curio-backend/internal/store"
)

// Ids are stored as strings; DynamoDB has no native UUID type and strings
// keep items inspectable.

type profileItem struct {
	Name        string    `dynamodbav:"name"`
	Aliases     []string  `dynamodbav:"aliases,omitempty"`
	Description string    `dynamodbav:"description,omitempty"`
	Avatar      string    `dynamodbav:"avatar,omitempty"`
	Banner      string    `dynamodbav:"banner,omitempty"`
	Created     time.Time `dynamodbav:"created"`
}

func (p profileItem) row() (store.ProfileRow, error) {
	avatar, err := optionalID(p.Avatar)
	if err != nil {
		return store.ProfileRow{}, err
	}
	banner, err := optionalID(p.Banner)
	if err != nil {
		return store.ProfileRow{}, err
	}

	return store.ProfileRow{
		Name:        p.Name,
		Aliases:     p.Aliases,
		Description: p.Description,
		Avatar:      avatar,
		Banner:      banner,
		Created:     p.Created,
	}, nil
}

type userItem struct {
	PK           string      `dynamodbav:"PK"`
	SK           string      `dynamodbav:"SK"`
	ID           string      `dynamodbav:"id"`
	Email        string      `dynamodbav:"email"`
	Admin        bool        `dynamodbav:"admin"`
	Profile      profileItem `dynamodbav:"profile"`
	PostCount    int         `dynamodbav:"post_count"`
	CommentCount int         `dynamodbav:"comment_count"`
	TagCount     int         `dynamodbav:"tag_count"`
}

func (u userItem) row() (store.UserRow, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return store.UserRow{}, fmt.Errorf("invalid user id %q: %w", u.ID, err)
	}
	profile, err := u.Profile.row()
	if err != nil {
		return store.UserRow{}, err
	}

	return store.UserRow{
		ID:           id,
		Email:        u.Email,
		Admin:        u.Admin,
		Profile:      profile,
		PostCount:    u.PostCount,
		CommentCount: u.CommentCount,
		TagCount:     u.TagCount,
	}, nil
}

type tagItem struct {
	PK        string      `dynamodbav:"PK"`
	SK        string      `dynamodbav:"SK"`
	ID        string      `dynamodbav:"id"`
	Profile   profileItem `dynamodbav:"profile"`
	Creator   string      `dynamodbav:"creator,omitempty"`
	PostCount int         `dynamodbav:"post_count"`
}

func (t tagItem) row() (store.TagRow, error) {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return store.TagRow{}, fmt.Errorf("invalid tag id %q: %w", t.ID, err)
	}
	profile, err := t.Profile.row()
	if err != nil {
		return store.TagRow{}, err
	}
	creator, err := optionalID(t.Creator)
	if err != nil {
		return store.TagRow{}, err
	}

	return store.TagRow{
		ID:        id,
		Profile:   profile,
		Creator:   creator,
		PostCount: t.PostCount,
	}, nil
}

type postItem struct {
	PK           string    `dynamodbav:"PK"`
	SK           string    `dynamodbav:"SK"`
	ID           string    `dynamodbav:"id"`
	Poster       string    `dynamodbav:"poster,omitempty"`
	Title        string    `dynamodbav:"title,omitempty"`
	Description  string    `dynamodbav:"description,omitempty"`
	Visibility   string    `dynamodbav:"visibility"`
	Created      time.Time `dynamodbav:"created"`
	Modified     time.Time `dynamodbav:"modified"`
	Objects      []string  `dynamodbav:"objects,omitempty"`
	Posts        []string  `dynamodbav:"posts,omitempty"`
	Tags         []string  `dynamodbav:"tags,omitempty"`
	CommentCount int       `dynamodbav:"comment_count"`
}

func (p postItem) row() (store.PostRow, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return store.PostRow{}, fmt.Errorf("invalid post id %q: %w", p.ID, err)
	}
	poster, err := optionalID(p.Poster)
	if err != nil {
		return store.PostRow{}, err
	}
	objects, err := idList(p.Objects)
	if err != nil {
		return store.PostRow{}, err
	}
	posts, err := idList(p.Posts)
	if err != nil {
		return store.PostRow{}, err
	}
	tags, err := idList(p.Tags)
	if err != nil {
		return store.PostRow{}, err
	}

	return store.PostRow{
		ID:           id,
		Poster:       poster,
		Title:        p.Title,
		Description:  p.Description,
		Visibility:   domain.Visibility(p.Visibility),
		Created:      p.Created,
		Modified:     p.Modified,
		Objects:      objects,
		Posts:        posts,
		Tags:         tags,
		CommentCount: p.CommentCount,
	}, nil
}

type objectItem struct {
	PK        string   `dynamodbav:"PK"`
	SK        string   `dynamodbav:"SK"`
	ID        string   `dynamodbav:"id"`
	PreviewID string   `dynamodbav:"preview_id,omitempty"`
	Posts     []string `dynamodbav:"posts,omitempty"`
}

func (o objectItem) row() (store.ObjectRow, error) {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return store.ObjectRow{}, fmt.Errorf("invalid object id %q: %w", o.ID, err)
	}
	preview, err := optionalID(o.PreviewID)
	if err != nil {
		return store.ObjectRow{}, err
	}
	posts, err := idList(o.Posts)
	if err != nil {
		return store.ObjectRow{}, err
	}

	return store.ObjectRow{ID: id, PreviewID: preview, Posts: posts}, nil
}

type commentItem struct {
	PK       string    `dynamodbav:"PK"`
	SK       string    `dynamodbav:"SK"`
	GSI1PK   string    `dynamodbav:"GSI1PK"`
	ID       string    `dynamodbav:"id"`
	PostID   string    `dynamodbav:"post_id"`
	ParentID string    `dynamodbav:"parent_id,omitempty"`
	UserID   string    `dynamodbav:"user_id,omitempty"`
	Level    int       `dynamodbav:"level"`
	Content  string    `dynamodbav:"content"`
	Created  time.Time `dynamodbav:"created"`
}

func (c commentItem) row() (store.CommentRow, error) {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return store.CommentRow{}, fmt.Errorf("invalid comment id %q: %w", c.ID, err)
	}
	postID, err := uuid.Parse(c.PostID)
	if err != nil {
		return store.CommentRow{}, fmt.Errorf("invalid post id %q: %w", c.PostID, err)
	}
	parent, err := optionalID(c.ParentID)
	if err != nil {
		return store.CommentRow{}, err
	}
	user, err := optionalID(c.UserID)
	if err != nil {
		return store.CommentRow{}, err
	}

	return store.CommentRow{
		ID:       id,
		PostID:   postID,
		ParentID: parent,
		UserID:   user,
		Level:    c.Level,
		Content:  c.Content,
		Created:  c.Created,
	}, nil
}

type sessionItem struct {
	PK      string    `dynamodbav:"PK"`
	SK      string    `dynamodbav:"SK"`
	UserID  string    `dynamodbav:"user_id"`
	Expires time.Time `dynamodbav:"expires"`
}

// commentSortKey orders a post's comments by level, then parent id, then
// creation time. Writers and the tree builder both rely on this layout.
func commentSortKey(level int, parent *uuid.UUID, created time.Time) string {
	parentPart := "ROOT"
	if parent != nil {
		parentPart = parent.String()
	}
	return fmt.Sprintf("%s%03d#%s#%020d", commentPrefix, level, parentPart, created.UnixNano())
}

func optionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return &id, nil
}

func idList(ss []string) ([]uuid.UUID, error) {
	if len(ss) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(ss))
	for i, s := range ss {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", s, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func (s *Store) ReadUser(ctx context.Context, id uuid.UUID) (*store.UserRow, error) {
	item, err := getItem[userItem](ctx, s, userKey(id))
	if err != nil || item == nil {
		return nil, err
	}
	row, err := item.row()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ReadUsers(ctx context.Context, ids []uuid.UUID) ([]store.UserRow, error) {
	items, err := batchGet[userItem](ctx, s, keys(ids, userKey))
	if err != nil {
		return nil, err
	}
	return rows(items, userItem.row)
}

func (s *Store) ReadTag(ctx context.Context, id uuid.UUID) (*store.TagRow, error) {
	item, err := getItem[tagItem](ctx, s, tagKey(id))
	if err != nil || item == nil {
		return nil, err
	}
	row, err := item.row()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ReadTags(ctx context.Context, ids []uuid.UUID) ([]store.TagRow, error) {
	items, err := batchGet[tagItem](ctx, s, keys(ids, tagKey))
	if err != nil {
		return nil, err
	}
	return rows(items, tagItem.row)
}

func (s *Store) ReadPost(ctx context.Context, id uuid.UUID) (*store.PostRow, error) {
	item, err := getItem[postItem](ctx, s, postKey(id))
	if err != nil || item == nil {
		return nil, err
	}
	row, err := item.row()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ReadPosts(ctx context.Context, ids []uuid.UUID) ([]store.PostRow, error) {
	items, err := batchGet[postItem](ctx, s, keys(ids, postKey))
	if err != nil {
		return nil, err
	}
	return rows(items, postItem.row)
}

func (s *Store) ReadObject(ctx context.Context, id uuid.UUID) (*store.ObjectRow, error) {
	item, err := getItem[objectItem](ctx, s, objectKey(id))
	if err != nil || item == nil {
		return nil, err
	}
	row, err := item.row()
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) ReadObjects(ctx context.Context, ids []uuid.UUID) ([]store.ObjectRow, error) {
	items, err := batchGet[objectItem](ctx, s, keys(ids, objectKey))
	if err != nil {
		return nil, err
	}
	return rows(items, objectItem.row)
}

// ReadComments returns every comment of a post in sort-key order, which is
// level then parent id then creation time.
func (s *Store) ReadComments(ctx context.Context, postID uuid.UUID) ([]store.CommentRow, error) {
	items, err := s.queryPartition(ctx, postKey(postID), commentPrefix)
	if err != nil {
		return nil, err
	}

	result := make([]store.CommentRow, 0, len(items))
	for _, raw := range items {
		var item commentItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal comment: %w", err)
		}
		row, err := item.row()
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, nil
}

// ReadCommentPost resolves a comment id to its post through the comment
// index.
func (s *Store) ReadCommentPost(ctx context.Context, commentID uuid.UUID) (uuid.UUID, bool, error) {
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(commentKey(commentID)))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to build query: %w", err)
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to resolve comment %s: %w", commentID, err)
	}
	if len(out.Items) == 0 {
		return uuid.Nil, false, nil
	}

	var item commentItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to unmarshal comment: %w", err)
	}

	postID, err := uuid.Parse(item.PostID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid post id %q: %w", item.PostID, err)
	}
	return postID, true, nil
}

func (s *Store) ReadUserSession(ctx context.Context, digest auth.Digest) (*store.SessionRow, error) {
	item, err := getItem[sessionItem](ctx, s, sessionKey(digest))
	if err != nil || item == nil {
		return nil, err
	}

	userID, err := uuid.Parse(item.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", item.UserID, err)
	}

	return &store.SessionRow{Digest: digest, UserID: userID, Expires: item.Expires}, nil
}

func (s *Store) DeleteUserSession(ctx context.Context, digest auth.Digest) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       metadataKey(sessionKey(digest)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func keys(ids []uuid.UUID, key func(uuid.UUID) string) []string {
	pks := make([]string, len(ids))
	for i, id := range ids {
		pks[i] = key(id)
	}
	return pks
}

func rows[I, R any](items []I, row func(I) (R, error)) ([]R, error) {
	result := make([]R, len(items))
	for i, item := range items {
		r, err := row(item)
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}
