// Package server содержит HTTP-слой: роутер, middleware и запуск сервера.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"serotonyl.ru/mlm-platform/internal/common"
	"serotonyl.ru/mlm-platform/internal/features/admin"
)

// RequestLogger логирует каждый запрос: метод, путь, статус, длительность.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		entry := log.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP-запрос завершился ошибкой")
			return
		}
		entry.Debug("HTTP-запрос")
	})
}

// Recoverer перехватывает панику в обработчике и отвечает 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.WithFields(log.Fields{
					"component": "panic_recovery",
					"panic":     fmt.Sprintf("%v", rec),
					"stack":     string(debug.Stack()),
					"path":      r.URL.Path,
				}).Error("Паника в обработчике восстановлена")
				common.WriteJSON(w, http.StatusInternalServerError, common.ErrorResponse{Error: "внутренняя ошибка"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// visitor: лимитер одного ключа и время последнего запроса.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает частоту запросов на ключ (пользователя).
// Неактивные ключи периодически вычищаются.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter запускает лимитер с фоновой очисткой. Не забудь Close.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Close останавливает фоновую очистку.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// addrShare: во сколько раз бюджет адреса больше бюджета одного пользователя.
// За одним адресом (NAT, прокси) бывает несколько пользователей.
const addrShare = 4

// Allow сообщает, можно ли пропустить ещё один запрос по ключу.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allow(key, rl.limit, rl.burst)
}

func (rl *RateLimiter) allow(key string, limit rate.Limit, burst int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(limit, burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// Middleware ограничивает запросы дважды: общий бюджет адреса клиента
// и бюджет пары адрес + пользователь из тела (userId/buyerId/receiverId).
// ID из тела не доверенный, поэтому без адреса он ключом не бывает.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr, user := rateKeys(r)
		if !rl.allow(addr, rl.limit*addrShare, rl.burst*addrShare) || (user != "" && !rl.Allow(user)) {
			w.Header().Set("Retry-After", "1")
			common.WriteJSON(w, http.StatusTooManyRequests, common.ErrorResponse{Error: "слишком много запросов"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-rl.idle)
			for key, v := range rl.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// maxPeekBody: сколько тела читаем, чтобы достать ID пользователя.
const maxPeekBody = 64 << 10

// rateKeys возвращает ключ адреса и ключ адрес + пользователь из JSON-тела
// (пустой, если пользователя в теле нет). Тело возвращается на место.
func rateKeys(r *http.Request) (addr, user string) {
	addr = "addr:" + admin.RemoteKey(r)
	if r.Body == nil || r.Body == http.NoBody {
		return addr, ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	// Остаток (если тело больше лимита) дочитает обработчик
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
	if err != nil {
		return addr, ""
	}

	var ids struct {
		UserID     int64 `json:"userId"`
		BuyerID    int64 `json:"buyerId"`
		ReceiverID int64 `json:"receiverId"`
	}
	if json.Unmarshal(raw, &ids) != nil {
		return addr, ""
	}
	for _, id := range []int64{ids.UserID, ids.BuyerID, ids.ReceiverID} {
		if id > 0 {
			return addr, addr + "|user:" + strconv.FormatInt(id, 10)
		}
	}
	return addr, ""
}
