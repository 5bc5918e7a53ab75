package views

import (
	"github.com/matheus3301/bazaar/internal/tui/ui"
	"github.com/rivo/tview"
)

// LoginView is the sign-in form shown while the session has no credentials.
type LoginView struct {
	*tview.Form
	theme    *ui.Theme
	onSubmit func(username, password string)
	onCancel func()
}

// NewLoginView creates the sign-in form.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Sign in ")
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(theme.TableHeaderBg)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.TableCursorBg)
	form.SetButtonTextColor(theme.TableCursorFg)

	lv := &LoginView{Form: form, theme: theme}
	form.AddInputField("Username", "", 32, nil, nil)
	form.AddPasswordField("Password", "", 32, '*', nil)
	form.AddButton("Sign in", lv.submit)
	form.SetCancelFunc(func() {
		if lv.onCancel != nil {
			lv.onCancel()
		}
	})
	return lv
}

// Leave implements ui.Leaver.
func (lv *LoginView) Leave() {
	lv.Reset()
}

// Hints implements ui.Page.
func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Submit"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnSubmit sets the callback invoked with the entered credentials.
func (lv *LoginView) SetOnSubmit(fn func(username, password string)) {
	lv.onSubmit = fn
}

// SetOnCancel sets the callback invoked on Esc.
func (lv *LoginView) SetOnCancel(fn func()) {
	lv.onCancel = fn
}

// Reset clears both fields and moves focus to the username.
func (lv *LoginView) Reset() {
	lv.field(0).SetText("")
	lv.field(1).SetText("")
	lv.SetFocus(0)
}

func (lv *LoginView) field(i int) *tview.InputField {
	return lv.GetFormItem(i).(*tview.InputField)
}

func (lv *LoginView) submit() {
	user := lv.field(0).GetText()
	pass := lv.field(1).GetText()
	if user == "" || pass == "" || lv.onSubmit == nil {
		return
	}
	lv.field(1).SetText("")
	lv.onSubmit(user, pass)
}
