// Package session keeps the bot's in-progress product form per chat until it
// is submitted to the wizard.
package session

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Field is the form field the next text message fills in.
type Field string

const (
	FieldNone                 Field = ""
	FieldName                 Field = "name"
	FieldDetails              Field = "details"
	FieldReferenceDescription Field = "reference_description"
	FieldEdit                 Field = "edit"
)

// PhotoTarget decides where incoming photos go.
type PhotoTarget string

const (
	TargetProduct   PhotoTarget = "product"
	TargetReference PhotoTarget = "reference"
)

type Draft struct {
	ChatID int64

	Name                 string
	Details              string
	ProductPhotos        []string
	ReferencePhotos      []string
	ReferenceDescription string
	UseReference         bool
	Styles               []string
	Constraints          []string

	Awaiting    Field
	PhotoTarget PhotoTarget
	Menu        string
	MessageID   int

	UpdatedAt time.Time
}

// AddPhotos appends file ids to the current target, keeping at most max.
// It returns how many were accepted.
func (d *Draft) AddPhotos(max int, fileIDs ...string) int {
	list := &d.ProductPhotos
	if d.PhotoTarget == TargetReference {
		list = &d.ReferencePhotos
	}
	accepted := 0
	for _, id := range fileIDs {
		if id == "" || slices.Contains(*list, id) {
			continue
		}
		if max > 0 && len(*list) >= max {
			break
		}
		*list = append(*list, id)
		accepted++
	}
	return accepted
}

// ToggleStyle and ToggleConstraint flip membership of a tag.
func (d *Draft) ToggleStyle(tag string) {
	d.Styles = toggle(d.Styles, tag)
}

func (d *Draft) ToggleConstraint(tag string) {
	d.Constraints = toggle(d.Constraints, tag)
}

func (d Draft) clone() Draft {
	out := d
	out.ProductPhotos = slices.Clone(d.ProductPhotos)
	out.ReferencePhotos = slices.Clone(d.ReferencePhotos)
	out.Styles = slices.Clone(d.Styles)
	out.Constraints = slices.Clone(d.Constraints)
	return out
}

type Options struct {
	// MaxIdle drops drafts untouched for longer than this. Zero keeps them.
	MaxIdle time.Duration
	Now     func() time.Time
}

type Store struct {
	mu      sync.Mutex
	drafts  map[int64]*Draft
	maxIdle time.Duration
	now     func() time.Time
}

func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		drafts:  make(map[int64]*Draft),
		maxIdle: opts.MaxIdle,
		now:     now,
	}
}

// Get returns a copy of the chat's draft, creating an empty one if needed.
func (s *Store) Get(chatID int64) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(chatID).clone()
}

// Update applies fn to the chat's draft under the lock and returns a copy of
// the result.
func (s *Store) Update(chatID int64, fn func(*Draft)) Draft {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.getOrCreateLocked(chatID)
	fn(d)
	d.UpdatedAt = s.now()
	return d.clone()
}

// Clear resets the chat's form but keeps the menu message so it can be
// edited in place.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgID := 0
	if d, ok := s.drafts[chatID]; ok {
		msgID = d.MessageID
	}
	s.drafts[chatID] = &Draft{ChatID: chatID, PhotoTarget: TargetProduct, MessageID: msgID, UpdatedAt: s.now()}
}

// Prune removes idle drafts and returns how many were dropped.
func (s *Store) Prune() int {
	if s.maxIdle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.maxIdle)
	n := 0
	for id, d := range s.drafts {
		if d.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
			n++
		}
	}
	return n
}

func (s *Store) getOrCreateLocked(chatID int64) *Draft {
	if d, ok := s.drafts[chatID]; ok {
		return d
	}
	d := &Draft{ChatID: chatID, PhotoTarget: TargetProduct, UpdatedAt: s.now()}
	s.drafts[chatID] = d
	return d
}

func toggle(tags []string, tag string) []string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return tags
	}
	if i := slices.Index(tags, tag); i >= 0 {
		return slices.Delete(slices.Clone(tags), i, i+1)
	}
	return append(tags, tag)
}
