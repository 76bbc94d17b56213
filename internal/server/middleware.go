package server

import (
	"bytes"
	"compress/gzip"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"taskflow/internal/auth"
	"taskflow/internal/domain/errors"
	"taskflow/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// TokenVerifier checks a session token and returns the identity it carries.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

const identityKey = "identity"

// AuthRequired admits a request only when it carries a valid session cookie.
// Every rejection produces the same 401 body; the reason is logged at debug.
func AuthRequired(tokens TokenVerifier, cookieName string, log logging.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := ctx.Cookie(cookieName)
		if err != nil || token == "" {
			rejectUnauthenticated(ctx, log, errors.ErrAuthenticationRequired)
			return
		}

		id, err := tokens.Verify(token)
		if err != nil {
			rejectUnauthenticated(ctx, log, err)
			return
		}

		ctx.Set(identityKey, id)
		ctx.Request = ctx.Request.WithContext(auth.WithIdentity(ctx.Request.Context(), id))
		ctx.Next()
	}
}

func rejectUnauthenticated(ctx *gin.Context, log logging.Logger, reason error) {
	log.Debug(ctx.Request.Context(), "request rejected by auth gate",
		"path", ctx.Request.URL.Path, "reason", reason.Error())
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(errors.ErrAuthenticationRequired.Error()))
}

// RequestLogger writes one structured line per request.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		path := ctx.Request.URL.Path

		ctx.Next()

		status := ctx.Writer.Status()
		args := []any{
			"method", ctx.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", ctx.ClientIP(),
		}
		if id, ok := auth.IdentityFrom(ctx.Request.Context()); ok {
			args = append(args, "user_id", id.UserID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			log.Error(ctx.Request.Context(), "request failed", args...)
		case len(ctx.Errors) > 0:
			log.Warn(ctx.Request.Context(), "request completed with errors", append(args, "errors", ctx.Errors.String())...)
		default:
			log.Info(ctx.Request.Context(), "request completed", args...)
		}
	}
}

// CORS allows credentialed requests from the configured browser origins.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Encoding", "Content-Encoding"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type dualCloser struct {
	io.Reader
	gzipReader io.Closer
	bodyCloser io.Closer
}

func (dc *dualCloser) Close() error {
	var gzErr, bodyErr error
	if dc.gzipReader != nil {
		gzErr = dc.gzipReader.Close()
	}
	if dc.bodyCloser != nil {
		bodyErr = dc.bodyCloser.Close()
	}
	return stderrors.Join(gzErr, bodyErr)
}

// GzipRequestDecompress transparently inflates gzip encoded request bodies.
func GzipRequestDecompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !headerHasToken(ctx.GetHeader("Content-Encoding"), "gzip") {
			ctx.Next()
			return
		}

		gr, err := gzip.NewReader(ctx.Request.Body)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, errorBody(errors.ErrInvalidGzipRequest.Error()))
			return
		}

		ctx.Request.Body = &dualCloser{
			Reader:     gr,
			gzipReader: gr,
			bodyCloser: ctx.Request.Body,
		}
		ctx.Request.Header.Del("Content-Encoding")
		ctx.Request.Header.Del("Content-Length")
		ctx.Request.ContentLength = -1

		ctx.Next()
	}
}

// gzipResponseWriter buffers small bodies and switches to gzip once the
// response is known to be large and compressible.
type gzipResponseWriter struct {
	gin.ResponseWriter
	gw         *gzip.Writer
	statusCode int
	preBuf     bytes.Buffer
}

const minCompressSize = 1024

var nonCompressibleStatuses = map[int]bool{
	http.StatusNoContent:         true,
	http.StatusNotModified:       true,
	http.StatusPartialContent:    true,
	http.StatusMultipleChoices:   true,
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

var compressibleContentTypes = []string{
	"application/json",
	"application/xml",
	"application/javascript",
	"text/html",
	"text/css",
	"text/plain",
	"text/xml",
	"text/javascript",
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if w.gw != nil {
		n, err := w.gw.Write(data)
		if err != nil {
			return n, errors.ErrGzipCompressionFailed
		}
		return n, nil
	}

	n, _ := w.preBuf.Write(data)
	if w.preBuf.Len() >= minCompressSize && w.mayCompress() {
		w.enableGzip()
		if _, err := w.gw.Write(w.preBuf.Bytes()); err != nil {
			return 0, errors.ErrGzipCompressionFailed
		}
		w.preBuf.Reset()
	}
	return n, nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) { return w.Write([]byte(s)) }

func (w *gzipResponseWriter) mayCompress() bool {
	if nonCompressibleStatuses[w.statusCode] {
		return false
	}
	if w.Header().Get("Content-Encoding") != "" {
		return false
	}
	return isCompressibleContentType(w.Header().Get("Content-Type"))
}

func (w *gzipResponseWriter) enableGzip() {
	w.Header().Del("Content-Length")
	w.Header().Set("Content-Encoding", "gzip")
	addVary(w.Header(), "Accept-Encoding")
	w.gw = gzip.NewWriter(w.ResponseWriter)
}

func (w *gzipResponseWriter) Flush() {
	if w.gw != nil {
		_ = w.gw.Flush()
	} else if w.preBuf.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.preBuf.Bytes())
		w.preBuf.Reset()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) finish() error {
	if w.gw != nil {
		if err := w.gw.Close(); err != nil {
			return errors.ErrGzipCompressionFailed
		}
		return nil
	}
	if w.preBuf.Len() > 0 {
		_, err := w.ResponseWriter.Write(w.preBuf.Bytes())
		w.preBuf.Reset()
		return err
	}
	return nil
}

// GzipResponseCompress compresses responses for clients that accept gzip.
func GzipResponseCompress() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method == http.MethodHead || !headerHasToken(ctx.GetHeader("Accept-Encoding"), "gzip") {
			ctx.Next()
			return
		}

		addVary(ctx.Writer.Header(), "Accept-Encoding")

		gw := &gzipResponseWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = gw
		defer func() { ctx.Writer = gw.ResponseWriter }()

		ctx.Next()

		if err := gw.finish(); err != nil {
			_ = ctx.Error(err)
		}
	}
}

func isCompressibleContentType(ct string) bool {
	lower := strings.ToLower(ct)
	for _, prefix := range compressibleContentTypes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func headerHasToken(value, token string) bool {
	return strings.Contains(strings.ToLower(value), token)
}

func addVary(h http.Header, value string) {
	vary := h.Get("Vary")
	switch {
	case vary == "":
		h.Set("Vary", value)
	case !strings.Contains(vary, value):
		h.Set("Vary", vary+", "+value)
	}
}
