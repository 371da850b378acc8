package bot

import tele "gopkg.in/telebot.v4"

// inlineBtn is a convenience wrapper for inline button properties.
type inlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// removeKeyboard hides any visible reply keyboard.
func removeKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// replyButtons builds a one-time reply keyboard from rows of labels.
func replyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	var keyboard []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		keyboard = append(keyboard, markup.Row(buttons...))
	}
	markup.Reply(keyboard...)
	return markup
}

// chunkLabels splits a flat list of labels into rows of up to n.
func chunkLabels(labels []string, n int) [][]string {
	if n < 1 {
		n = 1
	}
	var rows [][]string
	for i := 0; i < len(labels); i += n {
		end := i + n
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[i:end])
	}
	return rows
}

// inlineButtonsRows builds an inline keyboard from rows of inlineBtn.
func inlineButtonsRows(rows ...[]inlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// inlineButtons places each button on its own row.
func inlineButtons(buttons []inlineBtn) *tele.ReplyMarkup {
	rows := make([][]inlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []inlineBtn{b})
	}
	return inlineButtonsRows(rows...)
}
