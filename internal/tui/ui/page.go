package ui

// MenuHint is one shortcut shown in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // room shortcuts 0-9, drawn in the number color
}

// Page is a screen of the client. Pages only render what the app hands
// them; Hints lists the keys they handle themselves.
type Page interface {
	Hints() []MenuHint
}

// Leaver is implemented by pages that drop their input when popped, such
// as the login form forgetting a typed password.
type Leaver interface {
	Leave()
}
