package playground

import (
	"encoding/json"

	"github.com/livetemplate/colorplay/internal/widget"
)

// Messages sent by the browser.
const (
	TypeHello          = "hello"
	TypeNavigate       = "navigate"
	TypePopState       = "popstate"
	TypeEdit           = "edit"
	TypeRun            = "run"
	TypeCancel         = "cancel"
	TypeShare          = "share"
	TypeNotebookEdit   = "notebook-edit"
	TypeNotebookSubmit = "notebook-submit"
	TypeNotebookCancel = "notebook-cancel"
)

// Messages sent by the server.
const (
	TypeBusy      = "busy"
	TypePage      = "page"
	TypeWidget    = "widget"
	TypeNotice    = "notice"
	TypeClipboard = "clipboard"
	TypeReload    = "reload"
)

// Notice levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type   string          `json:"type"`
	Widget widget.ID       `json:"widget"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// HelloData opens a page session.
type HelloData struct {
	Path  string `json:"path"`
	Query string `json:"query"`
	// Gamut is the widest gamut the display matches, e.g. "display-p3".
	Gamut string `json:"gamut"`
}

// LocationData is carried by navigate and popstate.
type LocationData struct {
	Path  string `json:"path"`
	Query string `json:"query"`
}

// TextData is carried by run and notebook-submit.
type TextData struct {
	Text string `json:"text"`
}

// ShareData asks for a share link of the widget's text.
type ShareData struct {
	Text   string `json:"text"`
	Origin string `json:"origin"`
}

// PageData replaces the page body. An empty HTML keeps the current body
// and only updates the notebook editor.
type PageData struct {
	HTML       string `json:"html,omitempty"`
	Source     string `json:"source"`
	Playground bool   `json:"playground"`
	Editing    bool   `json:"editing"`
	ContentURL string `json:"contentURL,omitempty"`
}

// NoticeData is a message shown to the user.
type NoticeData struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ClipboardData asks the browser to copy text.
type ClipboardData struct {
	Text string `json:"text"`
}

// ReloadData tells the browser a docs source changed.
type ReloadData struct {
	Path string `json:"path,omitempty"`
}
