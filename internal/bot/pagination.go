package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultPageSize = 10

type PaginationParams struct {
	ChatID       int64
	MessageID    int // 0 if new message
	Page         int
	Title        string
	PagePrefix   string
	BackCallback string
}

// renderPaginatedList отрисовывает страницу списка; renderer получает
// границы [startIdx, endIdx) и возвращает текст и кнопки элементов.
func (b *Bot) renderPaginatedList(params PaginationParams, totalCount int, renderer func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton)) {
	itemsPerPage := b.config.Bot.SignalsPageSize
	if itemsPerPage <= 0 {
		itemsPerPage = defaultPageSize
	}

	totalPages := (totalCount + itemsPerPage - 1) / itemsPerPage
	if params.Page >= totalPages && totalPages > 0 {
		params.Page = totalPages - 1
	}
	if params.Page < 0 {
		params.Page = 0
	}

	startIdx := params.Page * itemsPerPage
	endIdx := min(startIdx+itemsPerPage, totalCount)

	content, keyboard := renderer(startIdx, endIdx)

	var message strings.Builder
	message.WriteString(params.Title + "\n\n")
	if totalPages > 1 {
		fmt.Fprintf(&message, "Страница %d из %d\n\n", params.Page+1, totalPages)
	}
	message.WriteString(content)

	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < totalCount {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}
	if params.BackCallback != "" {
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад в меню", params.BackCallback),
		))
	}

	b.sendOrEdit(params.ChatID, params.MessageID, message.String(), tgbotapi.NewInlineKeyboardMarkup(keyboard...))
}

// sendOrEdit редактирует сообщение с клавиатурой или отправляет новое.
func (b *Bot) sendOrEdit(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	var err error
	if messageID != 0 {
		_, err = b.tgService.EditMessage(chatID, messageID, text, &markup)
	} else {
		_, err = b.tgService.SendWithInlineKeyboard(chatID, text, markup)
	}
	if err != nil {
		b.logSendError(err)
	}
}
