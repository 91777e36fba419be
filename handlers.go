package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tabungan/models"
	"tabungan/pkg/tabungan"
)

const maxReceiptSize = 5 * 1024 * 1024

var receiptExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/healthz", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/login", s.loginHandler)

	authGroup := r.Group("")
	authGroup.Use(s.jwtAuthMiddleware())
	authGroup.GET("/me", s.meHandler)

	authGroup.POST("/accounts", requireRole(models.RoleAdministrator), s.createAccountHandler)
	authGroup.GET("/accounts/scan/:code", s.scanAccountHandler)
	authGroup.GET("/accounts/:studentId", s.getAccountHandler)
	authGroup.GET("/accounts/:studentId/statement", s.statementHandler)

	authGroup.GET("/transactions", s.listTransactionsHandler)
	authGroup.POST("/transactions",
		requireRole(models.RoleOperator, models.RoleBendahara, models.RoleAdministrator),
		s.createTransactionHandler)
	authGroup.GET("/transactions/:id", s.getTransactionHandler)
	authGroup.POST("/transactions/:id/verify",
		requireRole(models.RoleBendahara, models.RoleAdministrator),
		s.verifyTransactionHandler)
	authGroup.POST("/transactions/:id/receipt", s.uploadReceiptHandler)

	authGroup.GET("/reports", s.periodReportHandler)
	authGroup.GET("/reports/monthly", s.monthlyReportHandler)
	authGroup.GET("/reports/reconcile", requireRole(models.RoleAdministrator), s.reconcileHandler)
}

// respondError maps ledger errors onto HTTP statuses.
func (s *server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tabungan.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, tabungan.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, tabungan.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tabungan.ErrInvalidTransition):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// never leak driver messages
		s.log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		msg = tabungan.ErrPersistence.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func (s *server) healthHandler(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := s.issueToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token, "role": user.Role.Name})
}

func (s *server) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"username": c.GetString("username"),
		"role":     c.GetString("role"),
		"userId":   currentUserID(c),
	})
}

func (s *server) createAccountHandler(c *gin.Context) {
	var req struct {
		NIS      string `json:"nis" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Class    string `json:"class"`
		ScanCode string `json:"scanCode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct, err := s.svc.Enroll(c.Request.Context(), tabungan.EnrollInput{
		NIS:      req.NIS,
		Nama:     req.Name,
		Kelas:    req.Class,
		ScanCode: req.ScanCode,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (s *server) getAccountHandler(c *gin.Context) {
	id, ok := studentIDParam(c)
	if !ok {
		return
	}
	acct, err := s.svc.Account(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *server) scanAccountHandler(c *gin.Context) {
	acct, err := s.svc.AccountByScan(c.Request.Context(), c.Param("code"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *server) statementHandler(c *gin.Context) {
	id, ok := studentIDParam(c)
	if !ok {
		return
	}
	st, err := s.svc.Statement(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) listTransactionsHandler(c *gin.Context) {
	var f tabungan.Filter
	if v := c.Query("status"); v != "" {
		st, err := models.ParseTransaksiStatus(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		f.Status = st
	}
	if v := c.Query("studentId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid studentId"})
			return
		}
		f.StudentID = uint(id)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		f.Offset = n
	}
	// history views read newest first; the pending queue is worked oldest first
	f.Newest = c.Query("order") == "newest"
	page, err := s.svc.ListPage(c.Request.Context(), f)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *server) createTransactionHandler(c *gin.Context) {
	var req struct {
		StudentID uint   `json:"studentId"`
		Type      string `json:"type"`
		Nominal   int64  `json:"nominal"`
		Note      string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := s.svc.Submit(c.Request.Context(), tabungan.SubmitInput{
		StudentID:  req.StudentID,
		Type:       req.Type,
		Nominal:    req.Nominal,
		Note:       req.Note,
		OperatorID: currentUserID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *server) getTransactionHandler(c *gin.Context) {
	t, err := s.svc.Transaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) verifyTransactionHandler(c *gin.Context) {
	var req struct {
		VerifierID *uint  `json:"verifierId"`
		Decision   string `json:"decision" binding:"required"`
		Reason     string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	uid := currentUserID(c)
	if req.VerifierID != nil && *req.VerifierID != uid {
		c.JSON(http.StatusForbidden, gin.H{"error": "verifierId must be the authenticated user"})
		return
	}
	t, err := s.svc.Verify(c.Request.Context(), tabungan.VerifyInput{
		TransactionID: c.Param("id"),
		VerifierID:    uid,
		Decision:      req.Decision,
		Reason:        req.Reason,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) uploadReceiptHandler(c *gin.Context) {
	id := c.Param("id")
	t, err := s.svc.Transaction(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if t.Status != models.StatusPending {
		s.respondError(c, fmt.Errorf("%w: transaction %s is already %s", tabungan.ErrInvalidTransition, id, t.Status))
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > maxReceiptSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 5MB)"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !receiptExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receipt must be a jpg or png image"})
		return
	}
	dir := filepath.Join(s.uploadBase, "receipts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		s.respondError(c, err)
		return
	}
	// one file per upload; attachUploaded removes whichever image loses
	fullPath := filepath.Join(dir, fmt.Sprintf("%s-%d%s", t.ID, time.Now().UnixNano(), ext))
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		s.respondError(c, err)
		return
	}
	out, err := s.attachUploaded(c.Request.Context(), t.ID, fullPath, t.ReceiptPath)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// attachUploaded records path as the receipt of transaction id. On failure the
// uploaded file is removed; on success the replaced image is.
func (s *server) attachUploaded(ctx context.Context, id, path, previous string) (*models.Transaksi, error) {
	out, err := s.svc.AttachReceipt(ctx, id, path)
	if err != nil {
		s.removeReceipt(path)
		return nil, err
	}
	if previous != "" && previous != path {
		s.removeReceipt(previous)
	}
	return out, nil
}

func (s *server) removeReceipt(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("file", path).Warn("could not remove receipt file")
	}
}

func (s *server) periodReportHandler(c *gin.Context) {
	start, err := parseDate(c.Query("start"), false)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start: " + err.Error()})
		return
	}
	end, err := parseDate(c.Query("end"), true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end: " + err.Error()})
		return
	}
	tot, err := s.svc.PeriodReport(c.Request.Context(), start, end)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tot)
}

func (s *server) monthlyReportHandler(c *gin.Context) {
	year := time.Now().Year()
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}
	months, err := s.svc.MonthlySummary(c.Request.Context(), year)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "months": months})
}

func (s *server) reconcileHandler(c *gin.Context) {
	drifts, err := s.svc.Reconcile(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drifted": len(drifts), "accounts": drifts})
}

func studentIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("studentId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid studentId"})
		return 0, false
	}
	return uint(id), true
}

// parseDate accepts YYYY-MM-DD or RFC3339. A date-only end bound covers the
// whole day, so it is moved to the next midnight.
func parseDate(v string, end bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("use YYYY-MM-DD or RFC3339")
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
