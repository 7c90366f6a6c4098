package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crm-clients/models"
)

func TestNewIsEmpty(t *testing.T) {
	r := New()
	assert.NotNil(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
}

func TestReplaceIsWholesale(t *testing.T) {
	r := New()
	first := []models.Client{{ID: 1, Name: "Ana"}, {ID: 2, Name: "Bob"}}
	r.Replace(first)

	old := r.Snapshot()
	r.Replace([]models.Client{{ID: 3, Name: "Cid"}})

	assert.Len(t, old, 2, "earlier snapshot must stay intact")
	assert.Equal(t, 1, r.Len())

	_, ok := r.Find(1)
	assert.False(t, ok)
	c, ok := r.Find(3)
	assert.True(t, ok)
	assert.Equal(t, "Cid", c.Name)
}

func TestReplaceCopiesInput(t *testing.T) {
	r := New()
	in := []models.Client{{ID: 1, Name: "Ana"}}
	r.Replace(in)
	in[0].Name = "changed"

	c, _ := r.Find(1)
	assert.Equal(t, "Ana", c.Name)
}
