package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Ning0612/nbsync/internal/adapter"
	"github.com/Ning0612/nbsync/internal/domain"
	"github.com/Ning0612/nbsync/internal/logger"
)

// Page selectors of the notebook view
const (
	selSourceRow       = ".single-source-container"
	selSourceTitle     = ".source-title"
	selSourceIcon      = ".source-item-source-icon"
	selSourceMenu      = "button.source-item-more-button"
	selDeleteMenuItem  = "button.more-menu-delete-source-button"
	selConfirmDelete   = "button[aria-label='Confirm deletion']"
	selDialog          = "mat-dialog-container"
	selDialogSubmit    = "button.submit"
	selExpandPanel     = "button[aria-label='Expand source panel']"
	selAddSource       = "button[aria-label='Add source']"
	selAddSourceDialog = "add-sources-dialog"
	selOverlayBackdrop = ".cdk-overlay-backdrop.cdk-overlay-backdrop-showing"
	selPasteText       = "textarea[placeholder='Paste text here']"
	selPasteLinks      = "textarea[placeholder='Paste any links']"
)

var (
	menuIDPattern   = regexp.MustCompile(`source-item-more-button-(.+)$`)
	overlayDismiss  = []string{"Close", "Cancel", "Done", "Not now", "Got it"}
	fileChooserWait = 25 * time.Second
	clickWait       = 7 * time.Second
	insertReadyWait = 25 * time.Second
)

// ListItems reads the source panel
func (s *Session) ListItems(ctx context.Context) ([]domain.RemoteItem, error) {
	rows, err := s.page.Context(ctx).Elements(selSourceRow)
	if err != nil {
		return nil, &domain.RemoteError{Op: domain.OpList, Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	items := make([]domain.RemoteItem, 0, len(rows))
	for _, row := range rows {
		title := childText(row, selSourceTitle)
		if title == "" {
			continue
		}
		item := domain.RemoteItem{
			Title: title,
			Kind:  childText(row, selSourceIcon),
		}
		if btns, err := row.Elements(selSourceMenu); err == nil && !btns.Empty() {
			if id, err := btns.First().Attribute("id"); err == nil && id != nil {
				item.ItemID = SourceIDFromMenuID(*id)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Upload opens the add-sources dialog and hands all paths to the file chooser
func (s *Session) Upload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	page := s.page.Context(ctx)

	if err := s.openAddSources(ctx); err != nil {
		return err
	}

	setFiles, err := page.HandleFileDialog()
	if err != nil {
		return &domain.RemoteError{Op: domain.OpUpload, Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	btn, err := page.Timeout(fileChooserWait).ElementR("button", "Upload files")
	if err != nil {
		return &domain.RemoteError{Op: domain.OpUpload, Err: fmt.Errorf("%w: 'Upload files' button in add sources dialog", domain.ErrRemoteUI)}
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &domain.RemoteError{Op: domain.OpUpload, Err: errors.Join(domain.ErrRemoteTransient, err)}
	}
	if err := setFiles(paths); err != nil {
		return &domain.RemoteError{Op: domain.OpUpload, Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	logger.Get().Debug("files handed to chooser", "count", len(paths))
	return pause(ctx, 1200*time.Millisecond)
}

// InsertText adds a "Copied text" source holding text
func (s *Session) InsertText(ctx context.Context, text string) error {
	return s.insert(ctx, "Copied text", selPasteText, text)
}

// InsertURL adds a "Websites" source for a web page or YouTube link
func (s *Session) InsertURL(ctx context.Context, url string) error {
	return s.insert(ctx, "Websites", selPasteLinks, url)
}

// insert picks the source kind in the add-sources dialog, pastes content
// and submits once the Insert button is enabled
func (s *Session) insert(ctx context.Context, kind, field, content string) error {
	page := s.page.Context(ctx)
	fail := func(err error) error {
		return &domain.RemoteError{Op: domain.OpInsert, Err: err}
	}

	if err := s.openAddSources(ctx); err != nil {
		return err
	}
	if err := s.clickFirst(ctx, "", "button", kind); err != nil {
		return fail(err)
	}
	if err := pause(ctx, 500*time.Millisecond); err != nil {
		return err
	}

	area, err := page.Timeout(clickWait).Element(field)
	if err != nil {
		return fail(fmt.Errorf("%w: %s text area", domain.ErrRemoteUI, kind))
	}
	if err := area.Context(ctx).Input(content); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}

	var insert *rod.Element
	w := adapter.Waiter{Interval: 350 * time.Millisecond, Timeout: insertReadyWait}
	err = w.Until(ctx, func(ctx context.Context) (bool, error) {
		btn, err := page.Timeout(time.Second).ElementR(selDialog+" button", `^\s*Insert\s*$`)
		if err != nil {
			return false, nil
		}
		disabled, err := btn.Disabled()
		if err != nil || disabled {
			return false, nil
		}
		insert = btn
		return true, nil
	})
	if err != nil {
		return fail(fmt.Errorf("%w: Insert button did not become ready, check the %s content", domain.ErrRemoteUI, strings.ToLower(kind)))
	}
	if err := insert.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}

	logger.Get().Debug("source inserted", "kind", kind, "chars", len(content))
	return pause(ctx, 1200*time.Millisecond)
}

// Delete removes the first source titled exactly title
func (s *Session) Delete(ctx context.Context, title string) (bool, error) {
	page := s.page.Context(ctx)

	rows, err := page.Elements(selSourceRow)
	if err != nil {
		return false, &domain.RemoteError{Op: domain.OpRemove, Title: title, Err: errors.Join(domain.ErrRemoteTransient, err)}
	}

	var row *rod.Element
	for _, r := range rows {
		if childText(r, selSourceTitle) == title {
			row = r
			break
		}
	}
	if row == nil {
		return false, nil
	}

	fail := func(err error) (bool, error) {
		return false, &domain.RemoteError{Op: domain.OpRemove, Title: title, Err: err}
	}

	_ = row.ScrollIntoView()
	menus, err := row.Elements(selSourceMenu)
	if err != nil || menus.Empty() {
		return fail(fmt.Errorf("%w: source menu button", domain.ErrRemoteUI))
	}
	if err := menus.First().Timeout(clickWait).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fail(errors.Join(domain.ErrRemoteTransient, err))
	}
	if err := pause(ctx, 400*time.Millisecond); err != nil {
		return false, err
	}

	if err := s.clickFirst(ctx, selDeleteMenuItem, `[role="menuitem"]`, "Remove source"); err != nil {
		return fail(err)
	}
	if err := pause(ctx, 500*time.Millisecond); err != nil {
		return false, err
	}

	if has, _, _ := page.Has(selDialog); has {
		if err := s.confirmDeletion(ctx); err != nil {
			return fail(err)
		}
	}
	return true, pause(ctx, 1300*time.Millisecond)
}

func (s *Session) confirmDeletion(ctx context.Context) error {
	page := s.page.Context(ctx)
	for _, sel := range []string{selConfirmDelete, selDialogSubmit} {
		if has, el, _ := page.Has(sel); has {
			return el.Timeout(clickWait).Click(proto.InputMouseButtonLeft, 1)
		}
	}
	el, err := page.Timeout(clickWait).ElementR("button", `^\s*Delete\s*$`)
	if err != nil {
		return fmt.Errorf("%w: delete confirmation button", domain.ErrRemoteUI)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// clickFirst clicks sel when present, otherwise the fallback element whose
// text matches fallbackText
func (s *Session) clickFirst(ctx context.Context, sel, fallbackSel, fallbackText string) error {
	page := s.page.Context(ctx)
	if sel != "" {
		if has, el, _ := page.Has(sel); has {
			return el.Timeout(clickWait).Click(proto.InputMouseButtonLeft, 1)
		}
	}
	el, err := page.Timeout(clickWait).ElementR(fallbackSel, fallbackText)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrRemoteUI, fallbackText)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *Session) openAddSources(ctx context.Context) error {
	page := s.page.Context(ctx)
	s.dismissOverlays(ctx)

	if has, _, _ := page.Has(selAddSourceDialog); has {
		return nil
	}

	if err := s.clickFirst(ctx, selAddSource, "button", "Add source"); err != nil {
		return &domain.RemoteError{Op: domain.OpUpload, Err: fmt.Errorf("could not find 'Add source' button: %w", err)}
	}
	if err := pause(ctx, 900*time.Millisecond); err != nil {
		return err
	}

	if has, _, _ := page.Has(selAddSourceDialog); has {
		return nil
	}
	s.dismissOverlays(ctx)
	if has, _, _ := page.Has(selAddSourceDialog); !has {
		return &domain.RemoteError{Op: domain.OpUpload, Err: fmt.Errorf("%w: add sources dialog did not open", domain.ErrRemoteUI)}
	}
	return nil
}

func (s *Session) expandSourcePanel(ctx context.Context) {
	page := s.page.Context(ctx)
	has, el, _ := page.Has(selExpandPanel)
	if !has {
		return
	}
	if visible, err := el.Visible(); err != nil || !visible {
		return
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		logger.Get().Debug("could not expand source panel", "error", err)
		return
	}
	_ = pause(ctx, 700*time.Millisecond)
}

// dismissOverlays closes transient modals that block pointer events
func (s *Session) dismissOverlays(ctx context.Context) {
	page := s.page.Context(ctx)
	for round := 0; round < 4; round++ {
		if has, _, err := page.Has(selOverlayBackdrop); err != nil || !has {
			return
		}

		if buttons, err := page.Elements("button"); err == nil {
		search:
			for _, label := range overlayDismiss {
				for _, b := range buttons {
					if childTextOf(b) != label {
						continue
					}
					if visible, _ := b.Visible(); !visible {
						continue
					}
					_ = b.Timeout(1200*time.Millisecond).Click(proto.InputMouseButtonLeft, 1)
					_ = pause(ctx, 350*time.Millisecond)
					break search
				}
			}
		}

		_ = page.Keyboard.Press(input.Escape)
		if pause(ctx, 400*time.Millisecond) != nil {
			return
		}
	}
}

// SourceIDFromMenuID extracts the source id from a menu button element id
func SourceIDFromMenuID(id string) string {
	if m := menuIDPattern.FindStringSubmatch(id); m != nil {
		return m[1]
	}
	return ""
}

func childText(el *rod.Element, sel string) string {
	children, err := el.Elements(sel)
	if err != nil || children.Empty() {
		return ""
	}
	return childTextOf(children.First())
}

func childTextOf(el *rod.Element) string {
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
