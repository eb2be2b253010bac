package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pytutor/pytutor/internal/common"
	"github.com/pytutor/pytutor/internal/httpapi/middleware"
	"github.com/pytutor/pytutor/internal/tutor"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type createThreadReq struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handler) CreateThread(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createThreadReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	thread, err := h.TutorSvc.CreateThread(c.Request.Context(), uid, req.Provider, req.Model)
	if err != nil {
		log.Printf("[CreateThread] failed uid=%d err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create thread")
		return
	}

	common.OK(c, gin.H{"thread_id": thread.ThreadID})
}

type sendTurnReq struct {
	Message string `json:"message" binding:"required"`
}

// SendTurn runs one synchronous turn. The reply is always displayable: turn
// faults come back as a string carrying the error marker prefix, not as an
// HTTP error.
func (h *Handler) SendTurn(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threadID := c.Param("thread_id")

	var req sendTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	reply := h.TutorSvc.InvokeTurn(c.Request.Context(), uid, threadID, req.Message)

	common.OK(c, gin.H{
		"thread_id": threadID,
		"reply":     reply,
	})
}

func (h *Handler) ListThreadMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threadID := c.Param("thread_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if v := c.Query("before_id"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			beforeID = n
		}
	}

	msgs, err := h.TutorSvc.ListMessages(c.Request.Context(), uid, threadID, limit, beforeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "thread not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

// SendTurnAsync persists the user message immediately, then queues the
// classify/route/generate half of the turn for the worker.
func (h *Handler) SendTurnAsync(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	threadID := c.Param("thread_id")

	var req sendTurnReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if err := h.TutorSvc.ValidateThreadOwner(c.Request.Context(), uid, threadID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		log.Printf("[SendTurnAsync] ValidateThreadOwner failed uid=%d thread_id=%s err=%v", uid, threadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	// Persist the user message before anything job-related: the input must
	// survive even if job creation or publishing fails below.
	if err := h.TutorSvc.InsertUserMessage(c.Request.Context(), uid, threadID, req.Message); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "thread not found")
			return
		}
		log.Printf("[SendTurnAsync] InsertUserMessage failed uid=%d thread_id=%s err=%v", uid, threadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		log.Printf("[SendTurnAsync] NewULID failed uid=%d thread_id=%s err=%v", uid, threadID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &tutor.Job{
		ID:             jobID,
		UserID:         uid,
		ThreadID:       threadID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         tutor.JobQueued,
	}

	created := true
	if idempoKeyPtr == nil {
		if err := h.TutorSvc.CreateJob(c.Request.Context(), j); err != nil {
			log.Printf("[SendTurnAsync] CreateJob failed uid=%d thread_id=%s job_id=%s err=%v", uid, threadID, jobID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
	} else {
		var job *tutor.Job
		job, created, err = h.TutorSvc.CreateJobOrGetExisting(c.Request.Context(), j)
		if err != nil {
			log.Printf("[SendTurnAsync] CreateJobOrGetExisting failed uid=%d thread_id=%s job_id=%s key=%s err=%v", uid, threadID, jobID, idempoKey, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
			return
		}
		j = job
	}

	// Publish new jobs, and also deduplicated jobs still sitting in queued:
	// a retry after a crash between job creation and publish must revive the
	// job instead of handing back an id that will never run. Duplicate
	// deliveries are safe, the worker skips jobs past a terminal status.
	if created || j.Status == tutor.JobQueued {
		if err := h.Rabbit.PublishTurnJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("[SendTurnAsync] PublishTurnJob failed uid=%d thread_id=%s job_id=%s err=%v", uid, threadID, j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetTurnJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.TutorSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"thread_id":         j.ThreadID,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
