package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/flashvault/internal/database/imports"
	"github.com/mrlokans/flashvault/internal/entities"
)

// ImportHistoryReader provides read access to past import sessions.
type ImportHistoryReader interface {
	List(limit, offset int) ([]entities.ImportSession, int64, error)
	GetByExternalID(externalID string) (*entities.ImportSession, error)
}

// ImportsController serves the import history.
type ImportsController struct {
	history ImportHistoryReader
}

func NewImportsController(history ImportHistoryReader) *ImportsController {
	return &ImportsController{history: history}
}

// List handles GET /api/imports?limit=&offset=
func (ic *ImportsController) List(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	sessions, total, err := ic.history.List(limit, offset)
	if err != nil {
		respondInternalError(c, err, "list imports")
		return
	}
	if sessions == nil {
		sessions = []entities.ImportSession{}
	}

	respondPaginated(c, sessions, total, limit, offset)
}

// Get handles GET /api/imports/:id
func (ic *ImportsController) Get(c *gin.Context) {
	session, err := ic.history.GetByExternalID(c.Param("id"))
	if errors.Is(err, imports.ErrSessionNotFound) {
		respondNotFound(c, "import session")
		return
	}
	if err != nil {
		respondInternalError(c, err, "get import")
		return
	}

	c.JSON(http.StatusOK, session)
}
