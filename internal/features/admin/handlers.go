// Package admin (handlers.go): middleware, закрывающее /admin/* паролем.
package admin

import (
	"net"
	"net/http"

	"serotonyl.ru/mlm-platform/internal/common"
)

// Middleware пропускает запрос только с верным паролем в заголовке X-Admin-Password.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get(PasswordHeader)
		if password == "" {
			common.WriteError(w, common.ErrUnauthorized)
			return
		}
		if err := s.VerifyPassword(r.Context(), RemoteKey(r), password); err != nil {
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RemoteKey: адрес клиента без порта (RemoteAddr уже поправлен middleware.RealIP).
func RemoteKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
