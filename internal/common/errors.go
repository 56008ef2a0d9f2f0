// Package common (errors.go) определяет пользовательские ошибки,
// которые используются во всех модулях сервиса.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отдавать клиенту понятный HTTP-статус.
//
// Бизнес-отказы в начислении бонусов (нет Green ID, достигнут лимит)
// ошибками НЕ являются, они записываются в журнал со статусом flushed.
package common

import "errors"

// Ошибки валидации входных данных
var (
	// ErrInvalidRequest: тело запроса не разобрано
	ErrInvalidRequest = errors.New("некорректный запрос")
	// ErrInvalidAmount: некорректная сумма (ноль или отрицательная)
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInvalidID: некорректный идентификатор
	ErrInvalidID = errors.New("некорректный идентификатор")
	// ErrInvalidMintingType: тип минтинга не MANUAL и не AUTO
	ErrInvalidMintingType = errors.New("некорректный тип минтинга")
	// ErrInvalidLeg: сторона бинарного дерева не L и не R
	ErrInvalidLeg = errors.New("некорректная сторона дерева (ожидается L или R)")
	// ErrInvalidReferralCode: реферальный код не найден
	ErrInvalidReferralCode = errors.New("реферальный код не найден")
)

// Ошибки «не найдено»
var (
	// ErrUserNotFound: пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrPackageNotFound: пакет не найден
	ErrPackageNotFound = errors.New("пакет не найден")
	// ErrInvestmentNotFound: инвестиция не найдена
	ErrInvestmentNotFound = errors.New("инвестиция не найдена")
	// ErrActivityNotFound: минтинг-активность не найдена
	ErrActivityNotFound = errors.New("минтинг-активность не найдена")
	// ErrPlacementNotFound: у пользователя нет места в бинарном дереве
	ErrPlacementNotFound = errors.New("место в бинарном дереве не найдено")
	// ErrSettingNotFound: документ настроек отсутствует
	ErrSettingNotFound = errors.New("настройка не найдена")
)

// Ошибки экономики
var (
	// ErrInsufficientBalance: недостаточно средств на кошельке
	ErrInsufficientBalance = errors.New("недостаточно средств на кошельке")
	// ErrInsufficientCommission: недостаточно комиссии для блокировки/разблокировки
	ErrInsufficientCommission = errors.New("недостаточно комиссии")
	// ErrPackageInactive: пакет снят с продажи
	ErrPackageInactive = errors.New("пакет недоступен для покупки")
)

// Ошибки минтинга
var (
	// ErrNoActiveMinting: у пользователя нет активных минтинг-активностей нужного типа
	ErrNoActiveMinting = errors.New("нет активного минтинга")
	// ErrClickTooSoon: клик раньше окончания кулдауна
	ErrClickTooSoon = errors.New("слишком рано для следующего клика")
	// ErrCapacityExceeded: сумма минтинга превышает ёмкость инвестиции
	ErrCapacityExceeded = errors.New("превышена ёмкость инвестиции")
	// ErrBelowMinimumMinting: сумма минтинга ниже минимальной
	ErrBelowMinimumMinting = errors.New("сумма ниже минимального минтинга")
	// ErrSameMintingType: активность уже этого типа
	ErrSameMintingType = errors.New("активность уже имеет этот тип минтинга")
	// ErrActivityInactive: активность закрыта (достигнут лимит)
	ErrActivityInactive = errors.New("минтинг-активность закрыта")
)

// Ошибки бинарного дерева
var (
	// ErrAlreadyPlaced: пользователь уже размещён в дереве
	ErrAlreadyPlaced = errors.New("пользователь уже размещён в дереве")
	// ErrLegOccupied: у родителя занята выбранная сторона
	ErrLegOccupied = errors.New("выбранная сторона уже занята")
	// ErrRootExists: корень уже есть, новый узел нужно ставить под родителя или спонсора
	ErrRootExists = errors.New("корень дерева уже существует")
)

// Ошибки админки
var (
	// ErrUnauthorized: неверный пароль администратора
	ErrUnauthorized = errors.New("неверный пароль администратора")
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите")
)
