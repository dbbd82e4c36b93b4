package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poster-studio/internal/dataurl"
	"poster-studio/internal/gemini"
	"poster-studio/internal/mediagroup"
	"poster-studio/internal/poster"
	"poster-studio/internal/session"
	"poster-studio/internal/telegram"
	"poster-studio/internal/wizard"
)

// Messenger is the part of the Telegram client the handler needs.
type Messenger interface {
	SendTyping(chatID int64)
	SendUploading(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhoto(chatID int64, img dataurl.Image, caption string, kb *telegram.Keyboard) error
	SendDocument(chatID int64, img dataurl.Image, name, caption string) error
	DownloadImage(ctx context.Context, fileID string) (dataurl.Image, error)
}

type Options struct {
	Telegram Messenger
	Wizard   *wizard.Controller
	Drafts   *session.Store
	// OwnerID is the only Telegram user allowed to drive the wizard.
	OwnerID int64
	Logger  zerolog.Logger
}

type Handler struct {
	tg         Messenger
	wiz        *wizard.Controller
	drafts     *session.Store
	ownerID    int64
	logger     zerolog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	drafts := opts.Drafts
	if drafts == nil {
		drafts = session.NewStore(session.Options{})
	}
	return &Handler{
		tg:      opts.Telegram,
		wiz:     opts.Wizard,
		drafts:  drafts,
		ownerID: opts.OwnerID,
		logger:  opts.Logger.With().Str("component", "handlers").Logger(),
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	if msg.From.ID != h.ownerID {
		h.logger.Warn().Int64("user_id", msg.From.ID).Msg("message from unknown user")
		return h.tg.SendText(chatID, "🔒 This poster studio is private.")
	}

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(chatID, msg)
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, msg.Text)
	}

	return nil
}

// HandleMediaGroup adds a whole album to the draft at once.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if group.UserID != h.ownerID {
		return
	}
	if err := h.addPhotos(group.ChatID, group.Caption, group.FileIDs); err != nil {
		h.logger.Error().Err(err).Str("media_group", group.MediaGroupID).Msg("media group processing failed")
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return h.render(chatID, 0, false)
	case "help":
		return h.tg.SendText(chatID,
			"🖼 Poster Studio\n\n"+
				"1. Send product photos and set a name.\n"+
				"2. Pick styles and constraints, then tap Generate.\n"+
				"3. Choose one of the proposals and refine the poster.\n\n"+
				"Commands:\n"+
				"/start - Show the current step\n"+
				"/new - Start over\n"+
				"/name <text> - Set the product name\n"+
				"/details <text> - Set product details\n"+
				"/edit <instruction> - Edit the current poster\n"+
				"/analyze - Critique the current poster\n"+
				"/poster - Send the current poster again\n"+
				"/back - Go one step back\n"+
				"/cancel - Stop waiting for text input",
		)
	case "new", "reset":
		h.reset(chatID)
		return h.render(chatID, 0, false)
	case "name":
		return h.setField(chatID, session.FieldName, args)
	case "details":
		return h.setField(chatID, session.FieldDetails, args)
	case "cancel":
		h.drafts.Update(chatID, func(d *session.Draft) { d.Awaiting = session.FieldNone })
		return h.render(chatID, 0, true)
	case "back":
		if err := h.back(chatID); err != nil {
			return h.reportError(chatID, err)
		}
		return h.render(chatID, 0, false)
	case "edit":
		if args == "" {
			h.drafts.Update(chatID, func(d *session.Draft) { d.Awaiting = session.FieldEdit })
			return h.tg.SendText(chatID, "✏️ Describe the change, e.g. \"make the background warmer\".")
		}
		return h.applyEdit(ctx, chatID, args)
	case "analyze":
		return h.analyze(ctx, chatID)
	case "poster":
		return h.sendPoster(chatID, "")
	default:
		return h.tg.SendText(chatID, "❓ Unknown command. See /help.")
	}
}

func (h *Handler) handlePhoto(chatID int64, msg *tgbotapi.Message) error {
	if h.wiz.Step() != wizard.StepInput {
		return h.tg.SendText(chatID, "📷 Photos can only be added while describing the product. Use /back or /new first.")
	}

	// The last size is the largest.
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       msg.From.ID,
			MessageID:    msg.MessageID,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	return h.addPhotos(chatID, msg.Caption, []string{fileID})
}

func (h *Handler) addPhotos(chatID int64, caption string, fileIDs []string) error {
	caption = strings.TrimSpace(caption)

	var accepted int
	d := h.drafts.Update(chatID, func(d *session.Draft) {
		limit := poster.MaxProductImages
		if d.PhotoTarget == session.TargetReference {
			limit = poster.MaxReferenceImages
		}
		accepted = d.AddPhotos(limit, fileIDs...)
		if caption != "" && d.Name == "" {
			d.Name = caption
		}
	})

	kind, total := "product", len(d.ProductPhotos)
	if d.PhotoTarget == session.TargetReference {
		kind, total = "reference", len(d.ReferencePhotos)
	}
	text := fmt.Sprintf("📷 Added %d %s photo(s), %d in total.", accepted, kind, total)
	if skipped := len(fileIDs) - accepted; skipped > 0 {
		text += fmt.Sprintf(" %d skipped (duplicates or over the limit of 10).", skipped)
	}
	if err := h.tg.SendText(chatID, text); err != nil {
		return err
	}
	return h.render(chatID, 0, true)
}

func (h *Handler) handleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	d := h.drafts.Get(chatID)
	switch d.Awaiting {
	case session.FieldName, session.FieldDetails, session.FieldReferenceDescription:
		return h.setField(chatID, d.Awaiting, text)
	case session.FieldEdit:
		h.drafts.Update(chatID, func(d *session.Draft) { d.Awaiting = session.FieldNone })
		return h.applyEdit(ctx, chatID, text)
	}

	switch h.wiz.Step() {
	case wizard.StepFinal:
		// Free text on the final step is an edit instruction.
		return h.applyEdit(ctx, chatID, text)
	case wizard.StepInput:
		if d.Name == "" {
			return h.setField(chatID, session.FieldName, text)
		}
	}
	return h.tg.SendText(chatID, "Use the buttons below, or /help.")
}

// setField stores value, or asks for it when value is empty.
func (h *Handler) setField(chatID int64, field session.Field, value string) error {
	if h.wiz.Step() != wizard.StepInput {
		return h.reportError(chatID, wizard.ErrWrongStep)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		h.drafts.Update(chatID, func(d *session.Draft) { d.Awaiting = field })
		return h.tg.SendText(chatID, fieldPrompt(field))
	}

	h.drafts.Update(chatID, func(d *session.Draft) {
		switch field {
		case session.FieldName:
			d.Name = value
		case session.FieldDetails:
			d.Details = value
		case session.FieldReferenceDescription:
			d.ReferenceDescription = value
		}
		d.Awaiting = session.FieldNone
	})
	return h.render(chatID, 0, false)
}

func (h *Handler) reset(chatID int64) {
	h.wiz.Reset()
	h.drafts.Clear(chatID)
}

func (h *Handler) back(chatID int64) error {
	if err := h.wiz.Back(); err != nil {
		return err
	}
	h.drafts.Update(chatID, func(d *session.Draft) {
		d.Awaiting = session.FieldNone
		d.Menu = ""
	})
	return nil
}

// downloadAll fetches photos concurrently, keeping their order.
func (h *Handler) downloadAll(ctx context.Context, fileIDs []string) ([]dataurl.Image, error) {
	images := make([]dataurl.Image, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			img, err := h.tg.DownloadImage(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// reportError turns err into one message for the user.
func (h *Handler) reportError(chatID int64, err error) error {
	var (
		verr *wizard.ValidationError
		gerr *gemini.Error
		text string
	)
	switch {
	case errors.As(err, &verr):
		text = "⚠️ Please fix the following:\n• " + strings.Join(verr.Problems, "\n• ")
	case errors.Is(err, wizard.ErrBusy):
		text = "⏳ Still working on the previous request."
	case errors.Is(err, wizard.ErrStale):
		text = "ℹ️ That result arrived after you moved on, so it was discarded."
	case errors.Is(err, wizard.ErrWrongStep):
		text = "That action is not available at this step."
	case errors.Is(err, wizard.ErrUnknownProposal):
		text = "That proposal is no longer available."
	case errors.Is(err, context.DeadlineExceeded):
		text = "⌛ The request timed out. Please try again."
	case errors.As(err, &gerr):
		text = "❌ " + gerr.UserMessage()
	default:
		text = "❌ Something went wrong. Please try again."
	}

	h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("request failed")
	return h.tg.SendText(chatID, text)
}

func fieldPrompt(field session.Field) string {
	switch field {
	case session.FieldName:
		return "✏️ Send the product name (cancel: /cancel)."
	case session.FieldDetails:
		return "📝 Send product details: materials, audience, price, anything useful (cancel: /cancel)."
	case session.FieldReferenceDescription:
		return "🎯 Describe what to take from the reference images (cancel: /cancel)."
	default:
		return "Send the text (cancel: /cancel)."
	}
}
