package dispatch

import tele "gopkg.in/telebot.v4"

// UpdateKind tells which payload an Update carries.
type UpdateKind int

const (
	// UpdateOther covers update types the bot does not react to.
	UpdateOther UpdateKind = iota
	// UpdateMessage is a chat message; HasText is false for photos, stickers and the like.
	UpdateMessage
	// UpdateCallback is a tap on an inline keyboard button.
	UpdateCallback
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateMessage:
		return "message"
	case UpdateCallback:
		return "callback"
	default:
		return "other"
	}
}

// Update is the flattened view of a Telegram update handed to handlers.
type Update struct {
	ID     int
	Kind   UpdateKind
	ChatID int64
	UserID int64
	Handle string

	Text    string
	HasText bool

	CallbackID string
	Data       string

	Raw tele.Update
}

// FromTele flattens a telebot update.
func FromTele(u tele.Update) Update {
	out := Update{ID: u.ID, Raw: u}
	switch {
	case u.Callback != nil:
		cb := u.Callback
		out.Kind = UpdateCallback
		out.CallbackID = cb.ID
		out.Data = cb.Data
		if cb.Sender != nil {
			out.UserID = cb.Sender.ID
			out.Handle = cb.Sender.Username
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			out.ChatID = cb.Message.Chat.ID
		} else {
			// inline-mode callbacks carry no message; reply privately
			out.ChatID = out.UserID
		}
	case u.Message != nil:
		m := u.Message
		out.Kind = UpdateMessage
		out.Text = m.Text
		out.HasText = m.Text != ""
		if m.Chat != nil {
			out.ChatID = m.Chat.ID
		}
		if m.Sender != nil {
			out.UserID = m.Sender.ID
			out.Handle = m.Sender.Username
		} else {
			out.UserID = out.ChatID
		}
	}
	return out
}
