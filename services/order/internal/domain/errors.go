// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import "errors"

// Доменные ошибки Order Service.
// Используются для передачи бизнес-ошибок между слоями приложения.
var (
	// ErrOrderNotFound возвращается, когда заказ не найден в базе данных.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrEmptyOrderItems возвращается при попытке создать заказ без позиций.
	ErrEmptyOrderItems = errors.New("заказ должен содержать хотя бы одну позицию")

	// ErrInvalidCustomerID возвращается при пустом идентификаторе покупателя.
	ErrInvalidCustomerID = errors.New("некорректный идентификатор покупателя")

	// ErrInvalidProductID возвращается при пустом или некорректном идентификаторе товара.
	ErrInvalidProductID = errors.New("некорректный идентификатор товара")

	// ErrInvalidQuantity возвращается, когда количество товара меньше или равно нулю.
	ErrInvalidQuantity = errors.New("количество должно быть больше нуля")

	// ErrMissingIdempotencyKey возвращается при отсутствии заголовка Idempotency-Key.
	ErrMissingIdempotencyKey = errors.New("отсутствует ключ идемпотентности")

	// ErrOrderCannotCancel возвращается при попытке отменить заказ в неподходящем статусе.
	ErrOrderCannotCancel = errors.New("заказ нельзя отменить в текущем статусе")

	// ErrOrderAlreadyPaid возвращается при повторной фиксации оплаты.
	ErrOrderAlreadyPaid = errors.New("оплата заказа уже зафиксирована")

	// ErrDuplicateIdempotencyRecord возвращается при вставке записи идемпотентности
	// с уже существующим ключом.
	ErrDuplicateIdempotencyRecord = errors.New("запись идемпотентности с таким ключом уже существует")

	// ErrIdempotencyRecordNotFound возвращается, когда запись идемпотентности не найдена.
	ErrIdempotencyRecordNotFound = errors.New("запись идемпотентности не найдена")

	// ErrIdempotencyAlreadyFinalized возвращается при повторной финализации записи.
	ErrIdempotencyAlreadyFinalized = errors.New("запись идемпотентности уже финализирована")

	// ErrSignatureMismatch возвращается, когда пересчитанная подпись итогов
	// не совпадает с сохранённой на заказе.
	ErrSignatureMismatch = errors.New("подпись итогов заказа не совпадает с пересчитанной")
)
