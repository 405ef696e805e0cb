// Package keyboard builds inline reply markups for Bot API requests.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is an inline button. Data is sent verbatim as callback_data and
// must fit the Bot API limit of 64 bytes.
type Button struct {
	Text string
	Data string
}

// Inline lays out rows of buttons. Empty rows are skipped.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for i, b := range row {
			r[i] = tele.InlineButton{Text: b.Text, Data: b.Data}
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Column places every button on its own row.
func Column(buttons ...Button) *tele.ReplyMarkup {
	rows := make([][]Button, len(buttons))
	for i, b := range buttons {
		rows[i] = []Button{b}
	}
	return Inline(rows...)
}
