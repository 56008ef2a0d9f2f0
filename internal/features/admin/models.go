// Package admin: доступ к административным маршрутам по паролю.
// models.go описывает попытки входа и параметры Argon2id.
package admin

import "time"

// LoginAttempt: попытка входа (для защиты от brute-force).
// RemoteKey: адрес клиента, с которого пришёл запрос.
type LoginAttempt struct {
	ID          int64     `db:"id"`
	RemoteKey   string    `db:"remote_key"`
	AttemptTime time.Time `db:"attempt_time"`
	Success     bool      `db:"success"`
}

// HashParams: параметры Argon2id.
type HashParams struct {
	Memory      uint32 // КБ
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams: 64 MB, 3 прохода, 2 потока.
var DefaultHashParams = HashParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHeader: заголовок с паролем администратора.
const PasswordHeader = "X-Admin-Password"
