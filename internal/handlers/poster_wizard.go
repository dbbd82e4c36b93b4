package handlers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"poster-studio/internal/catalog"
	"poster-studio/internal/poster"
	"poster-studio/internal/session"
	"poster-studio/internal/wizard"
)

const callbackPrefix = "pv"

const (
	menuMain        = ""
	menuStyles      = "styles"
	menuConstraints = "constraints"
	menuAspect      = "aspect"
	menuSize        = "size"
	menuModel       = "model"
)

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return nil
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID || ownerID != h.ownerID {
		_ = h.tg.AnswerCallback(q.ID, "This menu is not for you.", true)
		return nil
	}

	action := parts[2]
	args := parts[3:]
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	cat := h.wiz.Catalog()

	h.drafts.Update(chatID, func(d *session.Draft) {
		d.MessageID = msgID

		switch action {
		case "menu":
			d.Menu = argAt(args, 0)
		case "style":
			if tag, ok := pick(cat.Styles, argAt(args, 0)); ok {
				d.ToggleStyle(tag)
			}
		case "constraint":
			if tag, ok := pick(cat.Constraints, argAt(args, 0)); ok {
				d.ToggleConstraint(tag)
			}
		case "ref":
			d.UseReference = !d.UseReference
		case "target":
			if argAt(args, 0) == string(session.TargetReference) {
				d.PhotoTarget = session.TargetReference
			} else {
				d.PhotoTarget = session.TargetProduct
			}
		case "clear_photos":
			if d.PhotoTarget == session.TargetReference {
				d.ReferencePhotos = nil
			} else {
				d.ProductPhotos = nil
			}
		case "ask":
			d.Awaiting = session.Field(argAt(args, 0))
		}
	})

	switch action {
	case "ask":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.SendText(chatID, fieldPrompt(session.Field(argAt(args, 0))))
	case "generate":
		_ = h.tg.AnswerCallback(q.ID, "Generating proposals…", false)
		return h.submitDraft(ctx, chatID)
	case "pick":
		_ = h.tg.AnswerCallback(q.ID, "Rendering poster…", false)
		return h.pickProposal(ctx, chatID, argAt(args, 0))
	case "aspect", "size", "model":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		if err := h.changeConfig(chatID, cat, action, argAt(args, 0)); err != nil {
			return h.reportError(chatID, err)
		}
	case "regen":
		_ = h.tg.AnswerCallback(q.ID, "Rendering poster…", false)
		return h.regenerate(ctx, chatID)
	case "edit":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		h.drafts.Update(chatID, func(d *session.Draft) { d.Awaiting = session.FieldEdit })
		return h.tg.SendText(chatID, "✏️ Describe the change, e.g. \"make the background warmer\" (cancel: /cancel).")
	case "analyze":
		_ = h.tg.AnswerCallback(q.ID, "Analyzing…", false)
		return h.analyze(ctx, chatID)
	case "download":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.sendDownload(chatID)
	case "back":
		_ = h.tg.AnswerCallback(q.ID, "", false)
		if err := h.back(chatID); err != nil {
			return h.reportError(chatID, err)
		}
	case "reset":
		_ = h.tg.AnswerCallback(q.ID, "Starting over", false)
		h.reset(chatID)
	default:
		_ = h.tg.AnswerCallback(q.ID, "", false)
	}

	return h.render(chatID, msgID, true)
}

func (h *Handler) submitDraft(ctx context.Context, chatID int64) error {
	d := h.drafts.Get(chatID)

	h.tg.SendTyping(chatID)
	products, err := h.downloadAll(ctx, d.ProductPhotos)
	if err != nil {
		h.logger.Error().Err(err).Msg("product photo download failed")
		return h.tg.SendText(chatID, "❌ Could not download the product photos. Please send them again.")
	}
	refs, err := h.downloadAll(ctx, d.ReferencePhotos)
	if err != nil {
		h.logger.Error().Err(err).Msg("reference photo download failed")
		return h.tg.SendText(chatID, "❌ Could not download the reference photos. Please send them again.")
	}

	sub := poster.Submission{
		Name:                 d.Name,
		Details:              d.Details,
		ProductImages:        products,
		ReferenceImages:      refs,
		ReferenceDescription: d.ReferenceDescription,
		UseReference:         d.UseReference,
		Styles:               d.Styles,
		Constraints:          d.Constraints,
	}

	_ = h.render(chatID, 0, true)
	if err := h.wiz.Submit(ctx, sub); err != nil {
		_ = h.render(chatID, 0, true)
		return h.reportError(chatID, err)
	}

	h.drafts.Update(chatID, func(d *session.Draft) {
		d.Awaiting = session.FieldNone
		d.Menu = menuMain
	})
	return h.render(chatID, 0, false)
}

func (h *Handler) pickProposal(ctx context.Context, chatID int64, arg string) error {
	snap := h.wiz.Snapshot()
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(snap.Proposals) {
		return h.reportError(chatID, wizard.ErrUnknownProposal)
	}

	h.tg.SendUploading(chatID)
	_ = h.render(chatID, 0, true)
	if err := h.wiz.SelectProposal(ctx, snap.Proposals[idx].ID); err != nil {
		_ = h.render(chatID, 0, false)
		return h.reportError(chatID, err)
	}
	return h.sendPoster(chatID, "✅ Poster ready")
}

func (h *Handler) regenerate(ctx context.Context, chatID int64) error {
	h.tg.SendUploading(chatID)
	if err := h.wiz.Regenerate(ctx, h.wiz.Snapshot().Config); err != nil {
		return h.reportError(chatID, err)
	}
	return h.sendPoster(chatID, "🔁 Regenerated")
}

func (h *Handler) applyEdit(ctx context.Context, chatID int64, instruction string) error {
	before, ok := h.wiz.Artifact()
	if !ok {
		return h.tg.SendText(chatID, "There is no poster to edit yet.")
	}

	h.tg.SendUploading(chatID)
	if err := h.wiz.Edit(ctx, instruction); err != nil {
		return h.reportError(chatID, err)
	}
	after, ok := h.wiz.Artifact()
	if !ok || after.Version == before.Version {
		return nil
	}
	return h.sendPoster(chatID, "✏️ "+truncateLine(instruction, 200))
}

func (h *Handler) analyze(ctx context.Context, chatID int64) error {
	if _, ok := h.wiz.Artifact(); !ok {
		return h.tg.SendText(chatID, "There is no poster to analyze yet.")
	}

	h.tg.SendTyping(chatID)
	if err := h.wiz.Analyze(ctx); err != nil {
		return h.reportError(chatID, err)
	}
	art, ok := h.wiz.Artifact()
	if !ok || art.Analysis == "" {
		return nil
	}
	return h.tg.SendText(chatID, "🔍 Analysis\n\n"+art.Analysis)
}

// sendPoster sends the current poster followed by a fresh control panel.
func (h *Handler) sendPoster(chatID int64, caption string) error {
	art, ok := h.wiz.Artifact()
	if !ok {
		return h.tg.SendText(chatID, "There is no poster yet.")
	}

	snap := h.wiz.Snapshot()
	if snap.Selected != nil {
		caption = strings.TrimSpace(caption + "\n" + snap.Selected.Title)
	}
	if err := h.tg.SendPhoto(chatID, art.Image, caption, nil); err != nil {
		return err
	}
	return h.render(chatID, 0, false)
}

func (h *Handler) sendDownload(chatID int64) error {
	art, ok := h.wiz.Artifact()
	if !ok {
		return h.tg.SendText(chatID, "There is no poster yet.")
	}
	return h.tg.SendDocument(chatID, art.Image, fmt.Sprintf("poster-v%d", art.Version), "")
}

func (h *Handler) changeConfig(chatID int64, cat *catalog.Catalog, action, arg string) error {
	cfg := h.wiz.Snapshot().Config
	switch action {
	case "aspect":
		v, ok := pick(cat.AspectRatios, arg)
		if !ok {
			return nil
		}
		cfg.AspectRatio = v
	case "size":
		v, ok := pick(cat.ImageSizes, arg)
		if !ok {
			return nil
		}
		cfg.ImageSize = v
	case "model":
		cfg.Model = poster.ModelVariant(arg)
	}

	if err := h.wiz.SetConfig(cfg); err != nil {
		return err
	}
	h.drafts.Update(chatID, func(d *session.Draft) { d.Menu = menuMain })
	return nil
}

// render shows the panel for the current step, editing the existing panel
// message when edit is set and sending a new one otherwise.
func (h *Handler) render(chatID int64, messageID int, edit bool) error {
	snap := h.wiz.Snapshot()
	d := h.drafts.Get(chatID)
	if messageID == 0 {
		messageID = d.MessageID
	}

	text, kb := panel(h.ownerID, h.wiz.Catalog(), snap, d)

	if edit && messageID != 0 {
		if err := h.tg.EditTextWithKeyboard(chatID, messageID, text, kb); err == nil {
			return nil
		}
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.drafts.Update(chatID, func(d *session.Draft) { d.MessageID = msgID })
	return nil
}

func panel(ownerID int64, cat *catalog.Catalog, snap wizard.Snapshot, d session.Draft) (string, tgbotapi.InlineKeyboardMarkup) {
	switch snap.Step {
	case wizard.StepProposal:
		return proposalText(snap), proposalKeyboard(ownerID, snap)
	case wizard.StepFinal:
		return finalText(cat, snap), finalKeyboard(ownerID, cat, snap, d)
	default:
		return inputText(snap, d), inputKeyboard(ownerID, cat, snap, d)
	}
}

func inputText(snap wizard.Snapshot, d session.Draft) string {
	var b strings.Builder
	b.WriteString("🖼 Poster Studio · 1/3 Product\n\n")
	b.WriteString("Name: " + orDash(d.Name) + "\n")
	if d.Details != "" {
		b.WriteString("Details: " + truncateLine(d.Details, 120) + "\n")
	}
	b.WriteString(fmt.Sprintf("Product photos: %d/%d\n", len(d.ProductPhotos), poster.MaxProductImages))
	b.WriteString(fmt.Sprintf("Reference: %s, %d photo(s)\n", onOff(d.UseReference), len(d.ReferencePhotos)))
	if d.ReferenceDescription != "" {
		b.WriteString("Reference notes: " + truncateLine(d.ReferenceDescription, 80) + "\n")
	}
	b.WriteString("Styles: " + orDash(strings.Join(d.Styles, ", ")) + "\n")
	b.WriteString("Constraints: " + orDash(strings.Join(d.Constraints, ", ")) + "\n")

	switch {
	case snap.InFlight.Proposals:
		b.WriteString("\n⏳ Generating proposals…\n")
	case d.Awaiting != session.FieldNone:
		b.WriteString("\n" + fieldPrompt(d.Awaiting) + "\n")
	case d.PhotoTarget == session.TargetReference:
		b.WriteString("\n📷 Photos you send now are added as style references.\n")
	default:
		b.WriteString("\n📷 Photos you send now are added as product photos.\n")
	}
	return strings.TrimSpace(b.String())
}

func inputKeyboard(ownerID int64, cat *catalog.Catalog, snap wizard.Snapshot, d session.Draft) tgbotapi.InlineKeyboardMarkup {
	if snap.InFlight.Proposals {
		return tgbotapi.NewInlineKeyboardMarkup(
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Cancel and start over", cb(ownerID, "reset")),
			},
		)
	}

	switch d.Menu {
	case menuStyles:
		return tagKeyboard(ownerID, "style", cat.Styles, d.Styles)
	case menuConstraints:
		return tagKeyboard(ownerID, "constraint", cat.Constraints, d.Constraints)
	}

	productText := "Product photos"
	referenceText := "Reference photos"
	if d.PhotoTarget == session.TargetReference {
		referenceText = "✅ " + referenceText
	} else {
		productText = "✅ " + productText
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("✏️ Name", cb(ownerID, "ask", string(session.FieldName))),
			tgbotapi.NewInlineKeyboardButtonData("📝 Details", cb(ownerID, "ask", string(session.FieldDetails))),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Styles (%d)", len(d.Styles)), cb(ownerID, "menu", menuStyles)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Constraints (%d)", len(d.Constraints)), cb(ownerID, "menu", menuConstraints)),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(productText, cb(ownerID, "target", string(session.TargetProduct))),
			tgbotapi.NewInlineKeyboardButtonData(referenceText, cb(ownerID, "target", string(session.TargetReference))),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Use reference: "+onOff(d.UseReference), cb(ownerID, "ref")),
			tgbotapi.NewInlineKeyboardButtonData("🎯 Reference notes", cb(ownerID, "ask", string(session.FieldReferenceDescription))),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🗑 Clear photos", cb(ownerID, "clear_photos")),
			tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, "reset")),
		},
		[]tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("🚀 Generate proposals", cb(ownerID, "generate")),
		},
	)
}

// tagKeyboard lists options two per row. Callbacks carry the option index
// to stay within Telegram's 64 byte limit.
func tagKeyboard(ownerID int64, action string, options, selected []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for i, opt := range options {
		label := opt
		if slices.Contains(selected, opt) {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, action, strconv.Itoa(i))))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Done", cb(ownerID, "menu", menuMain)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func proposalText(snap wizard.Snapshot) string {
	var b strings.Builder
	b.WriteString("🖼 Poster Studio · 2/3 Proposals\n")
	for i, p := range snap.Proposals {
		b.WriteString(fmt.Sprintf("\n%d. %s\n", i+1, p.Title))
		b.WriteString(truncateLine(p.Description, 300) + "\n")
		b.WriteString("“" + p.CopyTitle + "”")
		if p.CopySubtitle != "" {
			b.WriteString(" · " + p.CopySubtitle)
		}
		b.WriteString("\n")
		if p.CopyBody != "" {
			b.WriteString(truncateLine(p.CopyBody, 200) + "\n")
		}
	}
	if snap.InFlight.Poster {
		b.WriteString("\n⏳ Rendering poster…\n")
	}
	return strings.TrimSpace(b.String())
}

func proposalKeyboard(ownerID int64, snap wizard.Snapshot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, p := range snap.Proposals {
		label := fmt.Sprintf("%d. %s", i+1, truncateLine(p.Title, 40))
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "pick", strconv.Itoa(i))),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, "back")),
		tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, "reset")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func finalText(cat *catalog.Catalog, snap wizard.Snapshot) string {
	var b strings.Builder
	b.WriteString("🖼 Poster Studio · 3/3 Poster\n\n")
	if snap.Selected != nil {
		b.WriteString("Proposal: " + snap.Selected.Title + "\n")
	}
	b.WriteString(fmt.Sprintf("Aspect: %s, Model: %s", snap.Config.AspectRatio, cat.ModelName(snap.Config.Model)))
	if snap.Config.Model.SupportsImageSize() {
		b.WriteString(", Size: " + snap.Config.ImageSize)
	}
	b.WriteString("\n")
	if snap.Artifact != nil {
		b.WriteString(fmt.Sprintf("Version: %d\n", snap.Artifact.Version))
	}

	var busy []string
	if snap.InFlight.Poster {
		busy = append(busy, "rendering")
	}
	if snap.InFlight.Edit {
		busy = append(busy, "editing")
	}
	if snap.InFlight.Analysis {
		busy = append(busy, "analyzing")
	}
	if len(busy) > 0 {
		b.WriteString("\n⏳ " + strings.Join(busy, ", ") + "…\n")
	}
	if snap.Artifact != nil {
		b.WriteString("\n✏️ Send a message to edit the poster.\n")
	}
	return strings.TrimSpace(b.String())
}

func finalKeyboard(ownerID int64, cat *catalog.Catalog, snap wizard.Snapshot, d session.Draft) tgbotapi.InlineKeyboardMarkup {
	switch d.Menu {
	case menuAspect:
		return choiceKeyboard(ownerID, "aspect", cat.AspectRatios, snap.Config.AspectRatio)
	case menuSize:
		return choiceKeyboard(ownerID, "size", cat.ImageSizes, snap.Config.ImageSize)
	case menuModel:
		return modelKeyboard(ownerID, cat, snap.Config.Model)
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			tgbotapi.NewInlineKeyboardButtonData("Aspect "+snap.Config.AspectRatio, cb(ownerID, "menu", menuAspect)),
			tgbotapi.NewInlineKeyboardButtonData("Model: "+cat.ModelName(snap.Config.Model), cb(ownerID, "menu", menuModel)),
		},
	}
	if snap.Config.Model.SupportsImageSize() {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Size "+snap.Config.ImageSize, cb(ownerID, "menu", menuSize)),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("🔁 Regenerate", cb(ownerID, "regen")),
	})
	if snap.Artifact != nil {
		rows = append(rows,
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", cb(ownerID, "edit")),
				tgbotapi.NewInlineKeyboardButtonData("🔍 Analyze", cb(ownerID, "analyze")),
			},
			[]tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("⬇️ Download", cb(ownerID, "download")),
			},
		)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Proposals", cb(ownerID, "back")),
		tgbotapi.NewInlineKeyboardButtonData("Start over", cb(ownerID, "reset")),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func choiceKeyboard(ownerID int64, action string, options []string, current string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, opt := range options {
		label := opt
		if opt == current {
			label = "✅ " + label
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, action, strconv.Itoa(i))))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, "menu", menuMain)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func modelKeyboard(ownerID int64, cat *catalog.Catalog, current poster.ModelVariant) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range cat.Models {
		label := m.Name
		if poster.ModelVariant(m.Key) == current {
			label = "✅ " + label
		}
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, "model", m.Key)),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("⬅ Back", cb(ownerID, "menu", menuMain)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

// pick resolves an index argument against options.
func pick(options []string, arg string) (string, bool) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 || i >= len(options) {
		return "", false
	}
	return options[i], true
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not set"
	}
	return s
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
