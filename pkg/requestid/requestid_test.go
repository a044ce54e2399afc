package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/linebilling/pkg/requestid"
)

func serve(t *testing.T, header string) (string, string) {
	t.Helper()
	var seen string
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook/line", nil)
	if header != "" {
		req.Header.Set(requestid.Header, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates id when absent", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, "")
		require.NotEmpty(t, seen)
		assert.Equal(t, seen, echoed)
	})

	t.Run("keeps valid incoming id", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, "req_123-abc")
		assert.Equal(t, "req_123-abc", seen)
		assert.Equal(t, "req_123-abc", echoed)
	})

	t.Run("replaces malformed ids", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"has space", "a/b", strings.Repeat("x", 129)} {
			seen, _ := serve(t, bad)
			assert.NotEqual(t, bad, seen)
			assert.NotEmpty(t, seen)
		}
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	ex := requestid.LoggerExtractor()
	_, ok := ex(context.Background())
	assert.False(t, ok)

	attr, ok := ex(requestid.WithContext(context.Background(), "r1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "r1", attr.Value.String())
}
