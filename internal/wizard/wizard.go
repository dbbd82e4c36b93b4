// Package wizard drives the three-step poster flow: product input, proposal
// selection and the final poster with its edits and analysis.
package wizard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"poster-studio/internal/catalog"
	"poster-studio/internal/dataurl"
	"poster-studio/internal/poster"
)

// Service is the generative backend. *gemini.Client satisfies it.
type Service interface {
	RequestProposals(ctx context.Context, sub poster.Submission) ([]poster.Proposal, error)
	RequestPosterImage(ctx context.Context, p poster.Proposal, cfg poster.GenerationConfig, refs []dataurl.Image) (dataurl.Image, error)
	RequestPosterEdit(ctx context.Context, current dataurl.Image, instruction string) (dataurl.Image, error)
	RequestAnalysis(ctx context.Context, current dataurl.Image) (string, error)
}

type Options struct {
	Service Service
	Catalog *catalog.Catalog
	Logger  zerolog.Logger
}

type requestKind int

const (
	kindPoster requestKind = iota
	kindEdit
	kindAnalysis
)

func (k requestKind) String() string {
	switch k {
	case kindPoster:
		return "poster"
	case kindEdit:
		return "edit"
	default:
		return "analysis"
	}
}

func (f *InFlight) set(k requestKind, v bool) {
	switch k {
	case kindPoster:
		f.Poster = v
	case kindEdit:
		f.Edit = v
	case kindAnalysis:
		f.Analysis = v
	}
}

// Controller holds one wizard session. All methods are safe for concurrent
// use; requests run on the caller's goroutine without holding the lock.
//
// Every request remembers the generation it was issued in. Back, Reset and
// the step-advancing operations start a new generation, and a response that
// comes back for an older one is dropped with ErrStale.
type Controller struct {
	service  Service
	catalog  *catalog.Catalog
	validate *validator.Validate
	logger   zerolog.Logger

	mu         sync.Mutex
	step       Step
	submission *poster.Submission
	proposals  []poster.Proposal
	selected   *poster.Proposal
	config     poster.GenerationConfig
	artifact   *poster.Artifact
	inFlight   InFlight
	lastError  string
	generation uint64
	revision   uint64
	versions   int

	listeners    map[uint64]func(Snapshot)
	nextListener uint64
}

func New(opts Options) (*Controller, error) {
	if opts.Service == nil {
		return nil, errors.New("wizard: service is required")
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &Controller{
		service:   opts.Service,
		catalog:   cat,
		validate:  newValidator(),
		logger:    opts.Logger.With().Str("component", "wizard").Logger(),
		config:    poster.DefaultGenerationConfig(),
		listeners: make(map[uint64]func(Snapshot)),
	}, nil
}

func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// Submit validates the product input and asks for proposals. On success the
// wizard moves to the proposal step; on failure it stays on input.
func (c *Controller) Submit(ctx context.Context, sub poster.Submission) error {
	sub = sub.Normalized()

	c.mu.Lock()
	if c.inFlight.Proposals {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepInput {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if err := validateSubmission(c.validate, sub); err != nil {
		c.lastError = err.Error()
		c.unlockAndPublish()
		return err
	}
	c.inFlight.Proposals = true
	c.lastError = ""
	gen := c.generation
	c.unlockAndPublish()

	c.logger.Info().
		Str("product", sub.Name).
		Int("product_images", len(sub.ProductImages)).
		Bool("use_reference", sub.UseReference).
		Msg("requesting proposals")
	proposals, err := c.service.RequestProposals(ctx, sub)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Info().Msg("discarding stale proposals")
		return ErrStale
	}
	c.inFlight.Proposals = false
	if err != nil {
		c.lastError = userMessage(err)
		c.unlockAndPublish()
		c.logger.Warn().Err(err).Msg("proposal request failed")
		return err
	}
	c.submission = &sub
	c.proposals = slices.Clone(proposals)
	c.step = StepProposal
	c.generation++
	c.unlockAndPublish()

	c.logger.Info().Int("proposals", len(proposals)).Msg("proposals ready")
	return nil
}

// SelectProposal enters the final step and generates the first poster for the
// chosen proposal. The final step is published before the request is made.
func (c *Controller) SelectProposal(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.inFlight.Proposals {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepProposal {
		c.mu.Unlock()
		return ErrWrongStep
	}
	idx := slices.IndexFunc(c.proposals, func(p poster.Proposal) bool { return p.ID == id })
	if idx < 0 {
		c.mu.Unlock()
		return ErrUnknownProposal
	}

	chosen := c.proposals[idx]
	c.selected = &chosen
	c.step = StepFinal
	c.artifact = nil
	c.generation++
	c.lastError = ""
	c.inFlight.set(kindPoster, true)
	gen, cfg, refs := c.generation, c.config, c.productImagesLocked()
	c.unlockAndPublish()

	c.logger.Info().Str("proposal", chosen.ID).Str("model", string(cfg.Model)).Msg("proposal selected")
	img, err := c.service.RequestPosterImage(ctx, chosen, cfg, refs)
	return c.finishImage(gen, kindPoster, img, err)
}

// Regenerate stores cfg and renders the selected proposal again.
func (c *Controller) Regenerate(ctx context.Context, cfg poster.GenerationConfig) error {
	c.mu.Lock()
	if c.inFlight.Proposals {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepFinal || c.selected == nil {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if err := validateConfig(c.catalog, cfg); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.inFlight.Poster {
		c.mu.Unlock()
		return ErrBusy
	}
	c.config = cfg
	c.lastError = ""
	c.inFlight.set(kindPoster, true)
	gen, chosen, refs := c.generation, *c.selected, c.productImagesLocked()
	c.unlockAndPublish()

	c.logger.Info().
		Str("proposal", chosen.ID).
		Str("model", string(cfg.Model)).
		Str("aspect_ratio", cfg.AspectRatio).
		Msg("regenerating poster")
	img, err := c.service.RequestPosterImage(ctx, chosen, cfg, refs)
	return c.finishImage(gen, kindPoster, img, err)
}

// SetConfig changes the generation settings without regenerating.
func (c *Controller) SetConfig(cfg poster.GenerationConfig) error {
	c.mu.Lock()
	if c.inFlight.Proposals {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.step != StepFinal {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if err := validateConfig(c.catalog, cfg); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.config == cfg {
		c.mu.Unlock()
		return nil
	}
	c.config = cfg
	c.unlockAndPublish()
	return nil
}

// Edit applies instruction to the current poster. It does nothing when there
// is no poster or the instruction is blank.
func (c *Controller) Edit(ctx context.Context, instruction string) error {
	instruction = strings.TrimSpace(instruction)

	c.mu.Lock()
	if c.artifact == nil || instruction == "" {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight.Edit {
		c.mu.Unlock()
		return ErrBusy
	}
	c.lastError = ""
	c.inFlight.set(kindEdit, true)
	gen, base := c.generation, c.artifact.Image
	c.unlockAndPublish()

	c.logger.Info().Str("instruction", instruction).Msg("editing poster")
	img, err := c.service.RequestPosterEdit(ctx, base, instruction)
	return c.finishImage(gen, kindEdit, img, err)
}

// Analyze requests a critique of the current poster. It does nothing when
// there is no poster.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.artifact == nil {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight.Analysis {
		c.mu.Unlock()
		return ErrBusy
	}
	c.lastError = ""
	c.inFlight.set(kindAnalysis, true)
	gen, base, version := c.generation, c.artifact.Image, c.artifact.Version
	c.unlockAndPublish()

	text, err := c.service.RequestAnalysis(ctx, base)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return ErrStale
	}
	c.inFlight.set(kindAnalysis, false)
	if err != nil {
		c.lastError = userMessage(err)
		c.unlockAndPublish()
		c.logger.Warn().Err(err).Msg("analysis failed")
		return err
	}
	if c.artifact == nil || c.artifact.Version != version {
		// The poster changed while the analysis was running.
		c.unlockAndPublish()
		return ErrStale
	}
	c.artifact.Analysis = text
	c.unlockAndPublish()
	return nil
}

// Back moves one step backwards, discarding everything produced after it.
func (c *Controller) Back() error {
	c.mu.Lock()
	if c.inFlight.Proposals {
		c.mu.Unlock()
		return ErrBusy
	}
	switch c.step {
	case StepProposal:
		c.step = StepInput
		c.proposals = nil
	case StepFinal:
		c.step = StepProposal
		c.selected = nil
		c.artifact = nil
	default:
		c.mu.Unlock()
		return ErrWrongStep
	}
	c.inFlight = InFlight{}
	c.lastError = ""
	c.generation++
	c.unlockAndPublish()
	return nil
}

// Reset discards the whole session and returns to the input step. It is
// allowed at any time.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.step = StepInput
	c.submission = nil
	c.proposals = nil
	c.selected = nil
	c.artifact = nil
	c.config = poster.DefaultGenerationConfig()
	c.inFlight = InFlight{}
	c.lastError = ""
	c.generation++
	c.unlockAndPublish()
}

func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Artifact returns a copy of the current poster.
func (c *Controller) Artifact() (poster.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		return poster.Artifact{}, false
	}
	out := *c.artifact
	out.Image.Data = slices.Clone(c.artifact.Image.Data)
	return out, true
}

// Subscribe registers fn to receive a snapshot after every state change. The
// returned function removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) finishImage(gen uint64, kind requestKind, img dataurl.Image, err error) error {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Info().Str("request", kind.String()).Msg("discarding stale response")
		return ErrStale
	}
	c.inFlight.set(kind, false)
	if err != nil {
		c.lastError = userMessage(err)
		c.unlockAndPublish()
		c.logger.Warn().Err(err).Str("request", kind.String()).Msg("image request failed")
		return err
	}
	c.versions++
	c.artifact = &poster.Artifact{Image: img, Version: c.versions}
	version := c.versions
	c.unlockAndPublish()

	c.logger.Info().Str("request", kind.String()).Int("version", version).Int("bytes", len(img.Data)).Msg("poster updated")
	return nil
}

// unlockAndPublish records a state change, releases the lock and then calls
// the listeners with the new snapshot.
func (c *Controller) unlockAndPublish() {
	c.revision++
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Revision:   c.revision,
		Generation: c.generation,
		Step:       c.step,
		Submission: summarize(c.submission),
		Proposals:  slices.Clone(c.proposals),
		Config:     c.config,
		InFlight:   c.inFlight,
		LastError:  c.lastError,
	}
	if c.selected != nil {
		p := *c.selected
		snap.Selected = &p
	}
	if c.artifact != nil {
		snap.Artifact = &ArtifactInfo{
			MimeType: c.artifact.Image.MimeType,
			Bytes:    len(c.artifact.Image.Data),
			Version:  c.artifact.Version,
		}
		snap.Analysis = c.artifact.Analysis
	}
	return snap
}

func (c *Controller) productImagesLocked() []dataurl.Image {
	if c.submission == nil {
		return nil
	}
	return slices.Clone(c.submission.ProductImages)
}

// userMessage prefers the explanation an upstream error carries for people.
func userMessage(err error) string {
	var explained interface{ UserMessage() string }
	if errors.As(err, &explained) {
		if msg := strings.TrimSpace(explained.UserMessage()); msg != "" {
			return msg
		}
	}
	return err.Error()
}
