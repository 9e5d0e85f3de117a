package homework

import (
	"errors"
	"fmt"
)

// Verdicts and sentinel texts sent to the chat.
const (
	VerdictRejected  = "К сожалению в работе нашлись ошибки."
	VerdictReviewing = "Работа взята в ревью."
	VerdictApproved  = "Ревьюеру всё понравилось, можно приступать к следующему уроку."

	MsgUnknownStatus   = "Статус не определен"
	MsgInvalidResponse = "Неверный ответ сервера"

	MsgConnection = "Соединение не установлено"
	MsgTimeout    = "Время ожидания ответа от сервера истекло"
	MsgDecode     = "Бот столкнулся с ошибкой: некорректный ответ сервера"
)

// Interpret renders the notification text for r. It is defined for every
// Record: malformed entries produce MsgInvalidResponse.
func Interpret(r Record) string {
	if !r.Valid {
		return MsgInvalidResponse
	}
	return fmt.Sprintf("У вас проверили работу \"%s\"!\n\n%s", r.Name, r.Status.Verdict())
}

// DiagnosticText renders the self-report message for a failed fetch.
func DiagnosticText(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) && errors.Is(fe.Kind, ErrHTTPStatus) {
		return fmt.Sprintf("Ошибка запроса. Код: %d", fe.StatusCode)
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return MsgTimeout
	case errors.Is(err, ErrConnection):
		return MsgConnection
	case errors.Is(err, ErrDecode):
		return MsgDecode
	case err == nil:
		return ""
	default:
		return "Бот столкнулся с ошибкой: " + err.Error()
	}
}
