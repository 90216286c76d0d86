package domain

import "errors"

// Доменные ошибки Inventory Service.
var (
	// ErrProductNotFound — товар не найден ни на одном складе.
	ErrProductNotFound = errors.New("товар не найден")

	// ErrInvalidProductID — пустой или некорректный ID товара.
	ErrInvalidProductID = errors.New("некорректный ID товара")

	// ErrInvalidQuantity — количество должно быть больше нуля.
	ErrInvalidQuantity = errors.New("количество должно быть больше нуля")

	// ErrInvalidOrderID — пустой ID заказа.
	ErrInvalidOrderID = errors.New("некорректный ID заказа")

	// ErrMissingIdempotencyKey — отсутствует заголовок Idempotency-Key.
	ErrMissingIdempotencyKey = errors.New("отсутствует ключ идемпотентности")

	// ErrEmptyReserveItems — запрос на резервирование без позиций.
	ErrEmptyReserveItems = errors.New("запрос на резервирование не содержит позиций")

	// ErrDuplicateReservation — резервация с таким ключом уже существует
	// в нетерминальном для реплея состоянии.
	ErrDuplicateReservation = errors.New("резервация с таким ключом уже обработана")

	// ErrReservationNotFound — резервация не найдена.
	ErrReservationNotFound = errors.New("резервация не найдена")

	// ErrInsufficientStock — доступного стока не хватает для резервирования.
	ErrInsufficientStock = errors.New("недостаточно доступного стока")
)
