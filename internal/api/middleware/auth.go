package middleware

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tradeguard/pkg/crypto"
)

// Auth - middleware проверки API токена.
//
// Ожидает заголовок Authorization: Bearer <token>. Токен сверяется с
// bcrypt-хешем из конфигурации (API_TOKEN_HASH); сам токен сервер не
// хранит. Пустой хеш полностью отключает проверку - режим локальной
// разработки.
//
// Сравнение constant-time внутри bcrypt, timing-атаки на токен не работают.
func Auth(tokenHash string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" || !crypto.CheckTokenMatch(token, tokenHash) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tradeguard"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
