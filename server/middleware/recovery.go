package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/kbukum/regkit/logger"
)

// Recovery returns middleware that recovers from panics, logs the stack and
// answers 500 unless the handler already started its response.
func Recovery(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rr := newResponseRecorder(w)
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("Panic recovered", map[string]interface{}{
						"error":  fmt.Sprintf("%v", err),
						"stack":  string(debug.Stack()),
						"path":   r.URL.Path,
						"method": r.Method,
					})
					if rr.written {
						return
					}
					rr.Header().Set("Content-Type", "application/json")
					rr.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(rr).Encode(map[string]string{"error": "Internal server error"})
				}
			}()
			next.ServeHTTP(rr, r)
		})
	}
}
