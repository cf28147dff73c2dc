package notion

import (
	"context"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func keyFilter(want string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == PropKey && pf.RichText != nil && pf.RichText.Equals == want && req.PageSize == 1
	})
}

func TestHasLead(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", keyFilter("https://x.com/a")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p1"}}}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", keyFilter("https://x.com/b")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", keyFilter("https://x.com/c")).
		Return(nil, assert.AnError).Once()

	ok, err := HasLead(ctx, mc, "db-1", "https://x.com/a")
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasLead(ctx, mc, "db-1", "https://x.com/b")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = HasLead(ctx, mc, "db-1", "https://x.com/c")
	assert.Error(t, err)
	mc.AssertExpectations(t)
}

func TestAppendLead_CreatesPage(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()
	page := LeadPage{Name: "Jane", Platform: "linkedin", URL: "https://x.com/jane", Score: 75, Rationale: "ceo"}

	mc.On("QueryDatabase", ctx, "db-1", keyFilter("https://x.com/jane")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	mc.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		key, ok := req.Properties[PropKey].(notionapi.RichTextProperty)
		url, ok2 := req.Properties[PropURL].(notionapi.URLProperty)
		return ok && ok2 && key.RichText[0].Text.Content == "https://x.com/jane" &&
			url.URL == "https://x.com/jane" && req.Parent.DatabaseID == notionapi.DatabaseID("db-1")
	})).Return(&notionapi.Page{ID: "p1"}, nil).Once()

	created, err := AppendLead(ctx, mc, "db-1", page)
	require.NoError(t, err)
	assert.True(t, created)
	mc.AssertExpectations(t)
}

func TestAppendLead_SkipsExisting(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.Anything).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "p1"}}}, nil).Once()

	created, err := AppendLead(ctx, mc, "db-1", LeadPage{URL: "https://x.com/jane"})
	require.NoError(t, err)
	assert.False(t, created)
	mc.AssertNotCalled(t, "CreatePage", mock.Anything, mock.Anything)
}

func TestLeadPage_TruncatesRationale(t *testing.T) {
	props := LeadPage{Rationale: strings.Repeat("é", richTextLimit+10)}.Properties()
	rt := props[PropRationale].(notionapi.RichTextProperty)
	assert.Len(t, []rune(rt.RichText[0].Text.Content), richTextLimit)
}
