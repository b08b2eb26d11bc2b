package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/florist/internal/domain"
)

const (
	idempotencyKeyHeader  = "Idempotency-Key"
	idempotentReplayed    = "Idempotent-Replayed"
	maxIdempotencyKeySize = 255
)

// idempotency повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
type idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	now    func() time.Time
}

func newIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *idempotency {
	return &idempotency{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// captureWriter копирует тело ответа, чтобы сохранить его под ключом.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (i *idempotency) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
		if i.repo == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeySize {
			writeError(c, domain.NewValidationError("Idempotency-Key", "must be at most %d characters", maxIdempotencyKeySize))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, errMalformedBody)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		logger := i.logger.WithField("idempotency_key", key)
		record, err := i.repo.CreateProcessing(ctx, key, requestHash(c.Request.Method, c.FullPath(), body), i.now().Add(i.ttl))
		if err != nil {
			i.replay(c, err, record, logger)
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		i.store(context.WithoutCancel(ctx), key, writer, logger)
	}
}

func (i *idempotency) replay(c *gin.Context, createErr error, record domain.IdempotencyRecord, logger *log.Entry) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		logger.Warn("idempotency key reused with different payload")
		writeError(c, domain.ErrIdempotencyHashMismatch)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Replayable() || record.HTTPStatus == 0 {
			writeError(c, domain.ErrIdempotencyConflict)
			return
		}
		c.Header(idempotentReplayed, "true")
		c.Data(record.HTTPStatus, "application/json; charset=utf-8", record.ResponseBody)
		c.Abort()
	default:
		logger.WithError(createErr).Error("idempotency record not created")
		writeError(c, createErr)
	}
}

// store сохраняет итоговый ответ: 2xx помечаются done, 4xx failed, и оба
// воспроизводятся при повторе. После 5xx ключ освобождается, повтор выполнит запрос заново.
func (i *idempotency) store(ctx context.Context, key string, writer *captureWriter, logger *log.Entry) {
	status := writer.Status()
	body := append([]byte(nil), writer.body.Bytes()...)

	var err error
	switch {
	case status >= http.StatusInternalServerError:
		err = i.repo.Release(ctx, key)
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		err = i.repo.MarkDone(ctx, key, body, status)
	default:
		err = i.repo.MarkFailed(ctx, key, body, status)
	}
	if err != nil {
		logger.WithError(err).WithField("http_status", status).Warn("failed to store idempotent response")
	}
}

func requestHash(method, path string, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(method))
	sum.Write([]byte{' '})
	sum.Write([]byte(path))
	sum.Write([]byte{'\n'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
