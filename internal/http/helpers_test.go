package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantOK     bool
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", true, defaultPageLimit, 0},
		{"explicit values", "?limit=10&offset=20", true, 10, 20},
		{"limit is capped", "?limit=100000", true, maxPageLimit, 0},
		{"zero limit", "?limit=0", false, 0, 0},
		{"invalid limit", "?limit=abc", false, 0, 0},
		{"negative offset", "?offset=-1", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/"+tt.query, nil)

			limit, offset, ok := parsePagination(c)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestParseBoolQuery(t *testing.T) {
	tests := []struct {
		query    string
		expected bool
	}{
		{"?async=true", true},
		{"?async=1", true},
		{"?async=false", false},
		{"?async=maybe", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/"+tt.query, nil)

			assert.Equal(t, tt.expected, parseBoolQuery(c, "async"))
		})
	}
}

func TestRespondPaginated(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondPaginated(c, []int{1, 2}, 5, 2, 2)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[1,2],"total":5,"limit":2,"offset":2,"has_more":true,"total_pages":3}`, w.Body.String())
}

func TestRespondError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, http.StatusNotFound, "resource not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"resource not found"`)
}
