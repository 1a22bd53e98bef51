package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/sapliy/subscription-notifier/internal/batch"
	"github.com/sapliy/subscription-notifier/internal/notification"
	"github.com/sapliy/subscription-notifier/pkg/jsonutil"
)

type NotifierHandler struct {
	app *app
}

// TriggerRun is the on-demand equivalent of the scheduled send command.
func (h *NotifierHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days   int  `json:"days"`
		DryRun bool `json:"dry_run"`
		Force  bool `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Days < 0 {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "days must not be negative")
		return
	}

	if !h.app.cfg.NotificationsEnabled && !req.Force {
		jsonutil.WriteErrorJSON(w, http.StatusConflict, "Notifications are disabled")
		return
	}

	summary, err := h.app.orch.Run(r.Context(), req.Days, batch.Options{DryRun: req.DryRun})
	if err != nil {
		h.app.log.Error("triggered run failed", "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Run failed")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, summary)
}

// ListNotifications serves the audit surface: records filtered by
// subscription, status or creation date.
func (h *NotifierHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		records []*notification.Record
		err     error
	)
	switch {
	case q.Get("subscription_id") != "":
		records, err = h.app.repo.ListBySubscription(r.Context(), q.Get("subscription_id"))
	case q.Get("status") != "":
		status := notification.Status(q.Get("status"))
		if !status.Valid() {
			jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Unknown status")
			return
		}
		records, err = h.app.repo.ListByStatus(r.Context(), status)
	case q.Get("date") != "":
		day, parseErr := time.Parse("2006-01-02", q.Get("date"))
		if parseErr != nil {
			jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		records, err = h.app.repo.ListByCreatedDate(r.Context(), day)
	default:
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest,
			"One of subscription_id, status or date is required")
		return
	}

	if err != nil {
		h.app.log.Error("failed to list notifications", "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}
	if records == nil {
		records = []*notification.Record{}
	}
	jsonutil.WriteJSON(w, http.StatusOK, records)
}

func (h *NotifierHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.app.repo.GetByID(r.Context(), id)
	if errors.Is(err, notification.ErrNotFound) {
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		h.app.log.Error("failed to load notification", "id", id, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Failed to load notification")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, rec)
}

func (h *NotifierHandler) ResendNotification(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	rec, err := h.app.resender.Resend(r.Context(), id)
	if errors.Is(err, notification.ErrNotFound) {
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		h.app.log.Error("resend failed", "id", id, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Resend failed")
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *NotifierHandler) SendRenewal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubscriptionID == "" {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "subscription_id is required")
		return
	}

	snap, err := h.app.scanner.ByID(r.Context(), req.SubscriptionID)
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "Subscription not found")
		return
	}

	rec, err := h.app.resender.SendRenewal(r.Context(), snap)
	if err != nil {
		h.app.log.Error("renewal confirmation failed",
			"subscription_id", req.SubscriptionID, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Failed to send renewal confirmation")
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, rec)
}

// GatewayWebhook ingests out-of-band delivery receipts and upgrades
// records from sent to delivered or read.
func (h *NotifierHandler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	if secret := h.app.cfg.Gateway.WebhookSecret; secret != "" {
		if !verifySignature(body, r.Header.Get("X-Webhook-Signature"), secret) {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var receipt struct {
		NotificationID string `json:"notification_id"`
		Status         string `json:"status"`
	}
	if err := json.Unmarshal(body, &receipt); err != nil || receipt.NotificationID == "" {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "notification_id is required")
		return
	}

	switch receipt.Status {
	case "delivered":
		err = h.app.repo.MarkDelivered(r.Context(), receipt.NotificationID)
	case "read":
		err = h.app.repo.MarkRead(r.Context(), receipt.NotificationID)
	default:
		// Unknown receipt types are acknowledged so the gateway stops retrying.
		jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if errors.Is(err, notification.ErrInvalidTransition) {
		// Stale or duplicate receipt; acknowledge it.
		h.app.log.Warn("ignoring receipt for non-upgradable record",
			"notification_id", receipt.NotificationID, "receipt_status", receipt.Status)
		jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.app.log.Error("failed to apply delivery receipt",
			"notification_id", receipt.NotificationID, "error", err)
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Failed to apply receipt")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *NotifierHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.app.db.PingContext(r.Context()); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "active",
		"service": "subscription-notifier",
	})
}

// verifySignature checks an HMAC-SHA256 receipt signature in the form
// "sha256=<hex>".
func verifySignature(body []byte, header, secret string) bool {
	sig := strings.TrimPrefix(header, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}
