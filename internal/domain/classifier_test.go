package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRoutesToDomain(t *testing.T) {
	c := NewClassifier()

	matches := c.Detect("build a naver news summary workflow")
	require.NotEmpty(t, matches)
	assert.Equal(t, "naver", matches[0].Domain)
	assert.Greater(t, matches[0].Score, 0.0)
}

func TestDetectRanksSpecificTermsHigher(t *testing.T) {
	c := NewClassifier()

	// "kakaotalk" plus "kakao" beat the single generic "news" hit.
	matches := c.Detect("send kakaotalk news alerts")
	require.GreaterOrEqual(t, len(matches), 2)
	assert.Equal(t, "kakao", matches[0].Domain)
}

func TestDetectUnknownQueryIsEmpty(t *testing.T) {
	c := NewClassifier()
	assert.Empty(t, c.Detect("completely unrelated topic"))
	assert.Empty(t, c.Detect("   "))
	assert.Equal(t, "", c.Primary("completely unrelated topic"))
}

func TestDetectKoreanAliases(t *testing.T) {
	c := NewClassifier()
	matches := c.Detect("네이버 뉴스 가져오기")
	require.NotEmpty(t, matches)
	assert.Equal(t, "naver", matches[0].Domain)
}

func TestRegisterExtendsRegistry(t *testing.T) {
	c := NewClassifier()
	c.Register("slack", "slack", "webhook channel")

	assert.Contains(t, c.Domains(), "slack")
	assert.Equal(t, "slack", c.Primary("post to the slack channel"))

	// Re-registering the same term does not inflate scores.
	before := c.Detect("slack message")[0].Score
	c.Register("slack", "slack")
	after := c.Detect("slack message")[0].Score
	assert.Equal(t, before, after)
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"naver", "naver"},
		{"Naver News", "naver_news"},
		{"weather-api", "weather_api"},
		{"ab", "collection_ab"},
		{"", "common"},
		{"!!!", "common"},
		{"  Google  ", "google"},
		{"a--b__c", "a_b_c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CollectionName(tt.in), "input %q", tt.in)
	}
}

func TestCollectionNameLengthBounds(t *testing.T) {
	long := strings.Repeat("verylongdomain", 10)
	got := CollectionName(long)
	assert.LessOrEqual(t, len(got), 63)
	assert.GreaterOrEqual(t, len(got), 3)
}
