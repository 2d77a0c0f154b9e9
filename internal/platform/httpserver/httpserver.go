package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Read and write timeouts are generous: catalog
// imports and evidence payload references arrive as request bodies, and
// audit package downloads stream a full archive back.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}
