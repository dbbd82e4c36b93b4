package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateReturnsCopy(t *testing.T) {
	s := NewStore(Options{})

	got := s.Update(1, func(d *Draft) {
		d.Name = "Nova"
		d.AddPhotos(10, "f1", "f2")
	})
	got.ProductPhotos[0] = "mutated"

	d := s.Get(1)
	assert.Equal(t, "Nova", d.Name)
	assert.Equal(t, []string{"f1", "f2"}, d.ProductPhotos)
	assert.Equal(t, TargetProduct, d.PhotoTarget)
}

func TestAddPhotosRespectsTargetAndLimit(t *testing.T) {
	var d Draft
	assert.Equal(t, 2, d.AddPhotos(3, "a", "b", "a"))
	assert.Equal(t, 1, d.AddPhotos(3, "c", "d"))
	assert.Equal(t, []string{"a", "b", "c"}, d.ProductPhotos)

	d.PhotoTarget = TargetReference
	d.AddPhotos(3, "r1")
	assert.Equal(t, []string{"r1"}, d.ReferencePhotos)
	assert.Len(t, d.ProductPhotos, 3)
}

func TestToggleTags(t *testing.T) {
	var d Draft
	d.ToggleStyle("Minimalist")
	d.ToggleStyle("Cinematic")
	d.ToggleStyle("Minimalist")
	d.ToggleConstraint(" ")
	assert.Equal(t, []string{"Cinematic"}, d.Styles)
	assert.Empty(t, d.Constraints)
}

func TestClearKeepsMenuMessage(t *testing.T) {
	s := NewStore(Options{})
	s.Update(7, func(d *Draft) {
		d.Name = "Nova"
		d.MessageID = 99
	})

	s.Clear(7)
	d := s.Get(7)
	assert.Empty(t, d.Name)
	assert.Equal(t, 99, d.MessageID)
}

func TestPrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(Options{MaxIdle: time.Hour, Now: func() time.Time { return now }})

	s.Update(1, func(d *Draft) {})
	now = now.Add(2 * time.Hour)
	s.Update(2, func(d *Draft) {})

	assert.Equal(t, 1, s.Prune())
	assert.Empty(t, s.Get(2).Name)
	s.mu.Lock()
	_, ok := s.drafts[1]
	s.mu.Unlock()
	assert.False(t, ok)
}
