package service

import (
	"errors"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/soulproof/chat-server/internal/model"
)

var errTooLong = errors.New(MsgMessageTooLong)

func maxRunes(n int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if n > 0 && utf8.RuneCountInString(s) > n {
			return errTooLong
		}
		return nil
	}
}

// validateRequest checks a chat request before any store or gateway access.
func validateRequest(req model.ChatRequest, requireChatID bool, maxLength int) error {
	required := validation.Required.Error(MsgMissingFields)

	chatRules := []validation.Rule{}
	if requireChatID {
		chatRules = append(chatRules, required)
	}

	err := validation.Errors{
		"userId":  validation.Validate(req.UserID, required),
		"chatId":  validation.Validate(req.ChatID, chatRules...),
		"message": validation.Validate(req.Message, required),
	}.Filter()
	if err != nil {
		return &ValidationError{Message: MsgMissingFields}
	}

	if err := validation.Validate(req.Message, validation.By(maxRunes(maxLength))); err != nil {
		return &ValidationError{Message: MsgMessageTooLong}
	}
	return nil
}
