package server

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskflow/internal/auth"
	"taskflow/internal/domain/errors"
	"taskflow/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipRequestDecompress(t *testing.T) {
	router := gin.New()
	router.Use(GzipRequestDecompress())
	router.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"body": string(body)})
	})

	tests := []struct {
		name            string
		body            func(t *testing.T) io.Reader
		contentEncoding string
		want            struct {
			statusCode int
			body       string
		}
	}{
		{
			name:            "plain request",
			body:            func(*testing.T) io.Reader { return strings.NewReader("Hello, World!") },
			contentEncoding: "",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusOK, body: "Hello, World!"},
		},
		{
			name:            "gzip request",
			body:            func(t *testing.T) io.Reader { return gzipped(t, "Hello, World!") },
			contentEncoding: "gzip",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusOK, body: "Hello, World!"},
		},
		{
			name:            "gzip header with plain body",
			body:            func(*testing.T) io.Reader { return strings.NewReader("not gzip at all") },
			contentEncoding: "gzip",
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusBadRequest, body: errors.ErrInvalidGzipRequest.Error()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/echo", tt.body(t))
			if tt.contentEncoding != "" {
				req.Header.Set("Content-Encoding", tt.contentEncoding)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.want.body)
		})
	}
}

func TestGzipResponseCompress(t *testing.T) {
	large := strings.Repeat("Large content for compression testing. ", 100)

	tests := []struct {
		name           string
		acceptEncoding string
		content        string
		json           bool
		want           struct {
			contentEncoding string
		}
	}{
		{
			name:           "large text for gzip client",
			acceptEncoding: "gzip",
			content:        large,
			want:           struct{ contentEncoding string }{contentEncoding: "gzip"},
		},
		{
			name:           "large json for gzip client",
			acceptEncoding: "gzip, deflate",
			content:        large,
			json:           true,
			want:           struct{ contentEncoding string }{contentEncoding: "gzip"},
		},
		{
			name:           "small body stays plain",
			acceptEncoding: "gzip",
			content:        "short",
			want:           struct{ contentEncoding string }{contentEncoding: ""},
		},
		{
			name:           "client without gzip",
			acceptEncoding: "",
			content:        large,
			want:           struct{ contentEncoding string }{contentEncoding: ""},
		},
		{
			name:           "client accepting only deflate",
			acceptEncoding: "deflate",
			content:        large,
			want:           struct{ contentEncoding string }{contentEncoding: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(GzipResponseCompress())
			router.GET("/test", func(c *gin.Context) {
				if tt.json {
					c.JSON(http.StatusOK, gin.H{"message": tt.content})
					return
				}
				c.String(http.StatusOK, tt.content)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want.contentEncoding, w.Header().Get("Content-Encoding"))

			body := w.Body.Bytes()
			if tt.want.contentEncoding == "gzip" {
				gr, err := gzip.NewReader(bytes.NewReader(body))
				require.NoError(t, err)
				body, err = io.ReadAll(gr)
				require.NoError(t, err)
				assert.Contains(t, w.Header().Get("Vary"), "Accept-Encoding")
			}
			assert.Contains(t, string(body), tt.content)
		})
	}
}

func TestGzipRoundTripThroughBothMiddlewares(t *testing.T) {
	router := gin.New()
	router.Use(GzipRequestDecompress(), GzipResponseCompress())
	router.POST("/echo", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusCreated, string(body))
	})

	payload := strings.Repeat(`{"title":"compressed"}`, 100)
	req := httptest.NewRequest(http.MethodPost, "/echo", gzipped(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

type stubVerifier struct {
	id  auth.Identity
	err error
}

func (s stubVerifier) Verify(string) (auth.Identity, error) { return s.id, s.err }

func TestAuthRequired(t *testing.T) {
	alice := auth.Identity{UserID: "u-1", Email: "alice@example.com"}

	tests := []struct {
		name     string
		cookie   string
		verifier stubVerifier
		want     struct {
			statusCode int
			body       string
		}
	}{
		{
			name:     "valid token",
			cookie:   "token",
			verifier: stubVerifier{id: alice},
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusOK, body: `{"user_id":"u-1","email":"alice@example.com","ctx_user_id":"u-1"}`},
		},
		{
			name:     "missing cookie",
			verifier: stubVerifier{id: alice},
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusUnauthorized, body: unauthenticatedBody},
		},
		{
			name:     "invalid token",
			cookie:   "token",
			verifier: stubVerifier{err: errors.ErrInvalidToken},
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusUnauthorized, body: unauthenticatedBody},
		},
		{
			name:     "expired token",
			cookie:   "token",
			verifier: stubVerifier{err: errors.ErrExpiredToken},
			want: struct {
				statusCode int
				body       string
			}{statusCode: http.StatusUnauthorized, body: unauthenticatedBody},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached := false
			router := gin.New()
			router.GET("/private", AuthRequired(tt.verifier, "jwt_token", logging.Discard()), func(c *gin.Context) {
				reached = true
				id, _ := caller(c)
				fromCtx, _ := auth.IdentityFrom(c.Request.Context())
				c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "email": id.Email, "ctx_user_id": fromCtx.UserID})
			})

			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "jwt_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want.statusCode, w.Code)
			assert.JSONEq(t, tt.want.body, w.Body.String())
			assert.Equal(t, tt.want.statusCode == http.StatusOK, reached)
		})
	}
}

func TestAuthRequiredLogsReasonAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, "debug")

	router := gin.New()
	router.GET("/private", AuthRequired(stubVerifier{err: errors.ErrExpiredToken}, "jwt_token", log), func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: "old"})
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
	assert.Contains(t, buf.String(), errors.ErrExpiredToken.Error())
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   struct {
			level string
		}
	}{
		{name: "success", status: http.StatusOK, want: struct{ level string }{level: "INFO"}},
		{name: "client error", status: http.StatusNotFound, want: struct{ level string }{level: "INFO"}},
		{name: "server error", status: http.StatusInternalServerError, want: struct{ level string }{level: "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			router := gin.New()
			router.Use(RequestLogger(logging.New(&buf, "info")))
			router.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			out := buf.String()
			assert.Contains(t, out, `"level":"`+tt.want.level+`"`)
			assert.Contains(t, out, `"path":"/x"`)
			assert.Contains(t, out, `"method":"GET"`)
		})
	}
}

func TestCORSHeadersOnSimpleRequest(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:5173"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
