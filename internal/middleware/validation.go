package middleware

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/smart-daily/dailychat/internal/model"
)

// DateLayout is the calendar date format of supplement dates and rows.
const DateLayout = "2006-01-02"

// ValidateText validates chat input.
func ValidateText(text string) error {
	if len(text) == 0 {
		return errors.New("内容不能为空")
	}
	if len(text) > 100000 { // ~100KB limit
		return errors.New("内容过长")
	}
	if !utf8.ValidString(text) {
		return errors.New("内容必须是有效的 UTF-8 文本")
	}
	return nil
}

// ValidateTitle validates a session title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("标题过长")
	}
	if !utf8.ValidString(title) {
		return errors.New("标题必须是有效的 UTF-8 文本")
	}
	return nil
}

// ValidateMode rejects mode names the agent does not know.
func ValidateMode(mode model.Mode) error {
	if mode != model.ModeNone && model.ParseMode(string(mode)) == model.ModeNone {
		return errors.New("未知的模式")
	}
	return nil
}

// ValidateSupplementDate requires a calendar date before today.
func ValidateSupplementDate(date string, now time.Time) error {
	d, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return errors.New("日期格式应为 YYYY-MM-DD")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !d.Before(today) {
		return errors.New("补写日期必须早于今天")
	}
	return nil
}
