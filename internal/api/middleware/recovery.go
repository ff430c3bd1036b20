package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"tradeguard/pkg/utils"
)

// Recovery - middleware восстановления после паники в handlers.
//
// Перехватывает panic, логирует stack trace и возвращает клиенту 500
// без деталей: текст паники может содержать внутренности системы.
// Сервер продолжает обслуживать последующие запросы.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("panic in handler",
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("panic", fmt.Sprintf("%v", err)),
					utils.String("stack", string(debug.Stack())),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
