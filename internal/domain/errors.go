package domain

import "errors"

// ErrRecipientGone - получатель навсегда недоступен (заблокировал бота
// или удалил аккаунт). Единственный класс ошибок доставки, который
// меняет состояние: реестр удаляет такого подписчика.
var ErrRecipientGone = errors.New("recipient gone")

func IsRecipientGone(err error) bool {
	return errors.Is(err, ErrRecipientGone)
}
