package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockEvent_CategoryLabel(t *testing.T) {
	ev := BlockEvent{Domain: "ads.example.com"}
	assert.Equal(t, UnknownCategory, ev.CategoryLabel())

	ev.Categories = []string{"Advertisements", "Tracking"}
	assert.Equal(t, "Advertisements, Tracking", ev.CategoryLabel())
}

func TestBlockEvent_Time(t *testing.T) {
	ev := BlockEvent{Timestamp: 1700000000}
	assert.True(t, ev.Time().Equal(time.Unix(1700000000, 0)))
}

func TestBlockEvent_IsBlockedUpstream(t *testing.T) {
	assert.True(t, BlockEvent{Status: StatusBlockedUpstream}.IsBlockedUpstream())
	assert.False(t, BlockEvent{Status: 3}.IsBlockedUpstream())
	assert.Equal(t, "blocked-upstream", StatusBlockedUpstream.String())
	assert.Equal(t, "QueryStatus(3)", QueryStatus(3).String())
}

func TestBlockEvent_WithCategoriesCopies(t *testing.T) {
	cats := []string{"Malware"}
	orig := BlockEvent{ID: 1}
	got := orig.WithCategories(cats)
	cats[0] = "changed"

	assert.Empty(t, orig.Categories, "original must not be touched")
	assert.Equal(t, []string{"Malware"}, got.Categories)
}

func TestMaxID(t *testing.T) {
	assert.Equal(t, int64(0), MaxID(nil))
	assert.Equal(t, int64(44), MaxID([]BlockEvent{{ID: 42}, {ID: 44}, {ID: 43}}))
}
