package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTaskClient struct {
	mockEnqueuer
	statuses map[string]backlite.TaskStatus
	err      error
}

func (m *mockTaskClient) Status(_ context.Context, taskID string) (backlite.TaskStatus, error) {
	if m.err != nil {
		return backlite.TaskStatusNotFound, m.err
	}
	status, ok := m.statuses[taskID]
	if !ok {
		return backlite.TaskStatusNotFound, nil
	}
	return status, nil
}

func setupTasksRouter(client TaskClient) *gin.Engine {
	controller := NewTasksController(client)
	router := gin.New()
	router.GET("/api/tasks/types", controller.ListTaskTypes)
	router.GET("/api/tasks/:id", controller.GetTaskStatus)
	return router
}

func TestTasksController_GetTaskStatus(t *testing.T) {
	client := &mockTaskClient{statuses: map[string]backlite.TaskStatus{
		"running-task": backlite.TaskStatusRunning,
		"done-task":    backlite.TaskStatusSuccess,
	}}
	router := setupTasksRouter(client)

	tests := []struct {
		id         string
		wantCode   int
		wantStatus string
	}{
		{"running-task", http.StatusOK, "running"},
		{"done-task", http.StatusOK, "success"},
		{"missing-task", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/api/tasks/"+tt.id, nil))

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantStatus == "" {
				return
			}
			var response map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.id, response["id"])
			assert.Equal(t, tt.wantStatus, response["status"])
		})
	}
}

func TestTasksController_GetTaskStatus_Error(t *testing.T) {
	router := setupTasksRouter(&mockTaskClient{err: errors.New("database is locked")})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/tasks/abc", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTasksController_ListTaskTypes(t *testing.T) {
	router := setupTasksRouter(&mockTaskClient{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/tasks/types", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"import_package"`)
	assert.Contains(t, w.Body.String(), `"cleanup_import_history"`)
}

func TestTaskStatusToString(t *testing.T) {
	assert.Equal(t, "pending", taskStatusToString(backlite.TaskStatusPending))
	assert.Equal(t, "failure", taskStatusToString(backlite.TaskStatusFailure))
	assert.Equal(t, "not_found", taskStatusToString(backlite.TaskStatusNotFound))
}
