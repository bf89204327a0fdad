package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selimozcann/WhereGoes/internal/model"
)

func noteTypes(notes []model.Note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.Type
	}
	return out
}

func TestAnnotate(t *testing.T) {
	res := model.Result{
		Target: "https://www.example.com",
		Chain: []model.Hop{
			{Index: 0, URL: "https://www.example.com/go", Status: 302},
			{Index: 1, URL: "https://example.com/welcome", Status: 301},
			{Index: 2, URL: "http://other.test/landing", Status: 302},
			{Index: 3, URL: "http://127.0.0.1/admin", Status: 200},
		},
		Reason: "final",
	}
	notes := Annotate(res)
	assert.Equal(t, []string{TypeHTTPSDowngrade, TypeCrossDomain, TypeInternalHost, TypeCrossDomain}, noteTypes(notes))
	assert.Equal(t, 2, notes[0].AtHop)
	assert.Equal(t, "example.com -> other.test", notes[1].Detail)
	assert.Equal(t, 3, notes[2].AtHop)
}

func TestAnnotateTermini(t *testing.T) {
	ceiling := model.Result{Chain: []model.Hop{{URL: "https://a.test/", Status: 302}}, Reason: "ceiling"}
	assert.Equal(t, []string{TypeCeiling}, noteTypes(Annotate(ceiling)))

	bare := model.Result{Chain: []model.Hop{{URL: "https://a.test/", Status: 302}}, Reason: "no-location"}
	assert.Equal(t, []string{TypeNoLocation}, noteTypes(Annotate(bare)))

	assert.Empty(t, Annotate(model.Result{}))
}
