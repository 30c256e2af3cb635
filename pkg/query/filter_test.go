package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestPart7FilterSinglePassageType(t *testing.T) {
	q := Part7Filter{SetType: "Single", PassageTypes: []string{"Email"}}.query()

	want := bson.M{"setType": "Single", "passages.type": "Email"}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("unexpected query shape (-want +got):\n%s", diff)
	}
}

// Multiple passage types must select sets containing every listed type, not
// any of them: a Double set with [Email, Letter] is not a match for
// Email+Notice.
func TestPart7FilterMultiplePassageTypesRequireAll(t *testing.T) {
	q := Part7Filter{SetType: "Double", PassageTypes: []string{"Email", "Notice"}}.query()

	want := bson.M{
		"setType": "Double",
		"$and": bson.A{
			bson.M{"passages.type": "Email"},
			bson.M{"passages.type": "Notice"},
		},
	}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("unexpected query shape (-want +got):\n%s", diff)
	}
}

func TestPart7FilterEmpty(t *testing.T) {
	q := Part7Filter{}.query()
	assert.Empty(t, q)
}

func TestClampPart7Limit(t *testing.T) {
	cases := []struct {
		setType string
		limit   int
		want    int
	}{
		{"Single", 10, 5},
		{"Single", 3, 3},
		{"Double", 10, 2},
		{"Triple", 10, 2},
		{"", 10, 1},
		{"Quadruple", 10, 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClampPart7Limit(c.setType, c.limit),
			"set type %q limit %d", c.setType, c.limit)
	}
}
