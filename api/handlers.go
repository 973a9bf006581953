package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"quicktask/domain"
)

const (
	maxTaskBody          = 64 << 10
	idempotencyKeyHeader = "Idempotency-Key"
)

type messageResponse struct {
	Message string `json:"message"`
}

type taskResponse struct {
	Message string      `json:"message"`
	Task    domain.Task `json:"task"`
}

type healthResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Register wires up all API routes on the provided Echo instance. deduper may
// be nil, in which case Idempotency-Key headers are ignored.
func Register(e *echo.Echo, svc Service, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.JSONSerializer = jsonSerializer{}
	e.GET("/api/health", health())

	g := e.Group("/api/tasks", observeRequests(logger), GzipRequestMiddleware(), RequireOwner(auth))
	g.GET("", listTasks(svc, logger))
	g.POST("", createTask(svc, deduper, logger))
	g.GET("/:id", getTask(svc, logger))
	g.PUT("/:id", updateTask(svc, logger))
	g.DELETE("/:id", deleteTask(svc, logger))
}

func health() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, healthResponse{Message: "QuickTask API is running", Status: "OK"})
	}
}

// criteriaFromQuery keeps only the parameters present in the query string.
func criteriaFromQuery(c echo.Context) domain.Criteria {
	q := c.QueryParams()
	var cr domain.Criteria
	if _, ok := q["status"]; ok {
		s := domain.Status(q.Get("status"))
		cr.Status = &s
	}
	if _, ok := q["priority"]; ok {
		p := domain.Priority(q.Get("priority"))
		cr.Priority = &p
	}
	if _, ok := q["search"]; ok {
		s := q.Get("search")
		cr.Search = &s
	}
	if _, ok := q["sortBy"]; ok {
		k := domain.SortKey(q.Get("sortBy"))
		cr.SortBy = &k
	}
	if _, ok := q["sortOrder"]; ok {
		o := domain.SortOrder(q.Get("sortOrder"))
		cr.SortOrder = &o
	}
	return cr
}

func listTasks(svc Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		cr := criteriaFromQuery(c)
		_, byStatus := cr.StatusFilter()
		_, byPriority := cr.PriorityFilter()
		_, bySearch := cr.SearchFilter()
		key, _ := cr.Ordering()
		m.SetQuery(byStatus || byPriority || bySearch, string(key))

		start := time.Now()
		list, err := svc.Resolve(c.Request().Context(), ownerFrom(c), cr)
		m.ObserveResolve(time.Since(start))
		if err != nil {
			m.SetErrorStage("resolve")
			return writeError(c, logger, err)
		}
		m.SetTasksReturned(list.Count)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, list)
		m.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			m.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(svc Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := svc.Get(c.Request().Context(), ownerFrom(c), c.Param("id"))
		if err != nil {
			metricsFrom(c).SetErrorStage("get")
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(svc Service, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		ctx := c.Request().Context()
		ownerID := ownerFrom(c)

		var draft domain.TaskDraft
		if err := decodeBody(c, &draft); err != nil {
			m.SetErrorStage("decode")
			return writeError(c, logger, err)
		}

		key := c.Request().Header.Get(idempotencyKeyHeader)
		if key != "" && deduper != nil {
			added, err := deduper.Add(ctx, ownerID, key)
			switch {
			case err != nil:
				logger.Warnf("idempotency check failed, processing anyway, err: %v, owner: %s", err, ownerID)
				key = ""
			case !added:
				m.SetErrorStage("duplicate")
				return c.JSON(http.StatusConflict, messageResponse{Message: "Duplicate request"})
			}
		} else {
			key = ""
		}

		t, err := svc.Create(ctx, ownerID, draft)
		if err != nil {
			if key != "" {
				if rerr := deduper.Remove(context.WithoutCancel(ctx), ownerID, key); rerr != nil {
					logger.Errorf("dedupe rollback failed, err: %v, key: %s, owner: %s", rerr, key, ownerID)
				}
			}
			m.SetErrorStage("create")
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, taskResponse{Message: "Task created successfully", Task: t})
	}
}

func updateTask(svc Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			metricsFrom(c).SetErrorStage("decode")
			return writeError(c, logger, err)
		}
		t, err := svc.Update(c.Request().Context(), ownerFrom(c), c.Param("id"), patch)
		if err != nil {
			metricsFrom(c).SetErrorStage("update")
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, taskResponse{Message: "Task updated successfully", Task: t})
	}
}

func deleteTask(svc Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := svc.Delete(c.Request().Context(), ownerFrom(c), c.Param("id"))
		if err != nil {
			metricsFrom(c).SetErrorStage("delete")
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, taskResponse{Message: "Task deleted successfully", Task: t})
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxTaskBody)
	if err := sonic.ConfigStd.NewDecoder(lr).Decode(v); err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return ve
		}
		return &domain.ValidationError{Reason: "Invalid task payload"}
	}
	return nil
}

// writeError maps domain errors onto status codes and a {message} body.
func writeError(c echo.Context, logger *log.Logger, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, messageResponse{Message: ve.Reason})
	case errors.Is(err, domain.ErrTaskNotFound):
		return c.JSON(http.StatusNotFound, messageResponse{Message: "Task not found"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, messageResponse{Message: "Unauthorized"})
	}
	logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Server error"})
}
