package dynamo

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"curio-backend/internal/auth"
	"curio-backend/internal/domain"
)

// fakeAPI is an in-memory single-table DynamoDB. Key conditions built by the
// expression package bind the partition value to ":0" and the sort-key prefix
// to ":1", which is all the fake needs to evaluate them.
type fakeAPI struct {
	items map[string]map[string]map[string]types.AttributeValue

	// batchLimit caps keys served per BatchGetItem call; the rest come
	// back unprocessed. pageSize caps items per Query page.
	batchLimit int
	pageSize   int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func (f *fakeAPI) put(item map[string]types.AttributeValue) {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value

	if f.items[pk] == nil {
		f.items[pk] = make(map[string]map[string]types.AttributeValue)
	}
	f.items[pk][sk] = item
}

func stringKey(key map[string]types.AttributeValue, name string) string {
	if v, ok := key[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item := f.items[stringKey(in.Key, "PK")][stringKey(in.Key, "SK")]
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeAPI) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	out := &dynamodb.BatchGetItemOutput{
		Responses:       make(map[string][]map[string]types.AttributeValue),
		UnprocessedKeys: make(map[string]types.KeysAndAttributes),
	}

	for table, req := range in.RequestItems {
		keys := req.Keys
		if f.batchLimit > 0 && len(keys) > f.batchLimit {
			out.UnprocessedKeys[table] = types.KeysAndAttributes{Keys: keys[f.batchLimit:]}
			keys = keys[:f.batchLimit]
		}

		for _, key := range keys {
			if item := f.items[stringKey(key, "PK")][stringKey(key, "SK")]; item != nil {
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	values := in.ExpressionAttributeValues

	if in.IndexName != nil {
		target := values[":0"].(*types.AttributeValueMemberS).Value
		for _, partition := range f.items {
			for _, item := range partition {
				if g, ok := item["GSI1PK"].(*types.AttributeValueMemberS); ok && g.Value == target {
					return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
				}
			}
		}
		return &dynamodb.QueryOutput{}, nil
	}

	pk := values[":0"].(*types.AttributeValueMemberS).Value
	prefix := ""
	if v, ok := values[":1"].(*types.AttributeValueMemberS); ok {
		prefix = v.Value
	}

	var sks []string
	for sk := range f.items[pk] {
		if len(sk) >= len(prefix) && sk[:len(prefix)] == prefix {
			sks = append(sks, sk)
		}
	}
	sort.Strings(sks)

	if in.ExclusiveStartKey != nil {
		after := stringKey(in.ExclusiveStartKey, "SK")
		for len(sks) > 0 && sks[0] <= after {
			sks = sks[1:]
		}
	}

	out := &dynamodb.QueryOutput{}
	for i, sk := range sks {
		if f.pageSize > 0 && i == f.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: sks[i-1]},
			}
			break
		}
		out.Items = append(out.Items, f.items[pk][sk])
	}
	return out, nil
}

func (f *fakeAPI) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items[stringKey(in.Key, "PK")], stringKey(in.Key, "SK"))
	return &dynamodb.DeleteItemOutput{}, nil
}

func mustMarshal(t *testing.T, v any) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func putUser(t *testing.T, f *fakeAPI, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.put(mustMarshal(t, userItem{
		PK:    userKey(id),
		SK:    skMetadata,
		ID:    id.String(),
		Email: name + "@example.com",
		Profile: profileItem{
			Name:    name,
			Created: time.Now().UTC().Truncate(time.Second),
		},
		PostCount: 3,
	}))
	return id
}

func newTestStore() (*fakeAPI, *Store) {
	f := newFakeAPI()
	return f, New(f, "curio-test", "GSI1")
}

func TestReadUserRoundTrip(t *testing.T) {
	f, s := newTestStore()
	id := putUser(t, f, "alice")

	row, err := s.ReadUser(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, id, row.ID)
	require.Equal(t, "alice@example.com", row.Email)
	require.Equal(t, "alice", row.Profile.Name)
	require.Equal(t, 3, row.PostCount)
}

func TestReadUserMissing(t *testing.T) {
	_, s := newTestStore()

	row, err := s.ReadUser(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestReadUsersRequestOrderWithUnprocessedKeys(t *testing.T) {
	f, s := newTestStore()
	f.batchLimit = 2

	a := putUser(t, f, "alice")
	b := putUser(t, f, "bob")
	c := putUser(t, f, "carol")

	rows, err := s.ReadUsers(context.Background(), []uuid.UUID{c, uuid.New(), a, b})
	require.NoError(t, err)

	// Missing ids are skipped; the rest come back in request order even
	// though the batch was split by the unprocessed-keys limit.
	require.Len(t, rows, 3)
	require.Equal(t, c, rows[0].ID)
	require.Equal(t, a, rows[1].ID)
	require.Equal(t, b, rows[2].ID)
}

func TestReadPostRoundTrip(t *testing.T) {
	f, s := newTestStore()

	id := uuid.New()
	poster := uuid.New()
	object := uuid.New()
	created := time.Now().UTC().Truncate(time.Second)

	f.put(mustMarshal(t, postItem{
		PK:           postKey(id),
		SK:           skMetadata,
		ID:           id.String(),
		Poster:       poster.String(),
		Title:        "sunset",
		Visibility:   string(domain.VisibilityPublic),
		Created:      created,
		Modified:     created,
		Objects:      []string{object.String()},
		CommentCount: 2,
	}))

	row, err := s.ReadPost(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "sunset", row.Title)
	require.Equal(t, domain.VisibilityPublic, row.Visibility)
	require.NotNil(t, row.Poster)
	require.Equal(t, poster, *row.Poster)
	require.Equal(t, []uuid.UUID{object}, row.Objects)
	require.Equal(t, 2, row.CommentCount)
}

func TestReadPostRejectsBadID(t *testing.T) {
	f, s := newTestStore()

	id := uuid.New()
	f.put(mustMarshal(t, postItem{
		PK:         postKey(id),
		SK:         skMetadata,
		ID:         id.String(),
		Poster:     "not-a-uuid",
		Visibility: string(domain.VisibilityPublic),
	}))

	_, err := s.ReadPost(context.Background(), id)
	require.Error(t, err)
}

func putComment(t *testing.T, f *fakeAPI, postID uuid.UUID, parent *uuid.UUID, level int, content string, created time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	item := commentItem{
		PK:      postKey(postID),
		SK:      commentSortKey(level, parent, created),
		GSI1PK:  commentKey(id),
		ID:      id.String(),
		PostID:  postID.String(),
		Level:   level,
		Content: content,
		Created: created,
	}
	if parent != nil {
		item.ParentID = parent.String()
	}
	f.put(mustMarshal(t, item))
	return id
}

func TestReadCommentsSortedByLevelThenParent(t *testing.T) {
	f, s := newTestStore()
	postID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	// Inserted out of order on purpose; the sort key must bring them
	// back as level, then parent, then creation time.
	r1 := putComment(t, f, postID, nil, 0, "first root", base)
	r2 := putComment(t, f, postID, nil, 0, "second root", base.Add(time.Minute))
	c2 := putComment(t, f, postID, &r1, 1, "second child", base.Add(3*time.Minute))
	c1 := putComment(t, f, postID, &r1, 1, "first child", base.Add(2*time.Minute))
	g1 := putComment(t, f, postID, &c2, 2, "grandchild", base.Add(4*time.Minute))

	rows, err := s.ReadComments(context.Background(), postID)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	require.Equal(t, []uuid.UUID{r1, r2}, []uuid.UUID{rows[0].ID, rows[1].ID})
	require.Nil(t, rows[0].ParentID)

	// Siblings under one parent stay in creation order.
	require.Equal(t, c1, rows[2].ID)
	require.Equal(t, c2, rows[3].ID)
	require.Equal(t, r1, *rows[2].ParentID)

	require.Equal(t, g1, rows[4].ID)
	require.Equal(t, 2, rows[4].Level)
}

func TestReadCommentsFollowsPagination(t *testing.T) {
	f, s := newTestStore()
	f.pageSize = 2
	postID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		putComment(t, f, postID, nil, 0, "root", base.Add(time.Duration(i)*time.Minute))
	}

	rows, err := s.ReadComments(context.Background(), postID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
}

func TestReadCommentPost(t *testing.T) {
	f, s := newTestStore()
	postID := uuid.New()
	id := putComment(t, f, postID, nil, 0, "hello", time.Now().UTC())

	got, found, err := s.ReadCommentPost(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, postID, got)

	_, found, err = s.ReadCommentPost(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, found)
}

func TestSessionLifecycle(t *testing.T) {
	f, s := newTestStore()
	ctx := context.Background()

	id, err := auth.NewSessionID()
	require.NoError(t, err)
	digest := id.Digest()
	userID := uuid.New()
	expires := time.Now().UTC().Truncate(time.Second).Add(time.Hour)

	f.put(mustMarshal(t, sessionItem{
		PK:      sessionKey(digest),
		SK:      skMetadata,
		UserID:  userID.String(),
		Expires: expires,
	}))

	row, err := s.ReadUserSession(ctx, digest)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, userID, row.UserID)
	require.True(t, expires.Equal(row.Expires))

	require.NoError(t, s.DeleteUserSession(ctx, digest))

	row, err = s.ReadUserSession(ctx, digest)
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestCommentSortKeyOrdersLexicographically(t *testing.T) {
	now := time.Now()
	parent := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	// Zero-padded levels keep double-digit levels after single-digit
	// ones, and zero-padded timestamps order siblings by creation.
	require.Less(t, commentSortKey(2, &parent, now), commentSortKey(10, &parent, now))
	require.Less(t, commentSortKey(0, nil, now), commentSortKey(1, nil, now))
	require.Less(t, commentSortKey(1, &parent, now), commentSortKey(1, &parent, now.Add(time.Second)))
}
