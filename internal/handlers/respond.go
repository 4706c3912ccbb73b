package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aakar745/expo-booking-backend/internal/models"
)

// respondError translates domain errors into HTTP responses. Every error
// the checkout services surface maps to a stable status and code.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"field":   validationErr.Field,
			"message": validationErr.Message,
		})
		return
	}

	if errors.Is(err, models.ErrAuthRequired) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Sign in to continue with your booking",
		})
		return
	}

	if errors.Is(err, models.ErrWizardDiscarded) {
		c.JSON(http.StatusGone, gin.H{
			"error":   "wizard_discarded",
			"message": "This booking session has ended. Start a new booking.",
		})
		return
	}

	var dupErr *models.DuplicatePaymentAttempt
	if errors.As(err, &dupErr) {
		retryIn := time.Until(dupErr.RetryAfter)
		if retryIn < 0 {
			retryIn = 0
		}
		c.Header("Retry-After", fmt.Sprintf("%d", int(retryIn.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "duplicate_payment_attempt",
			"message":     "A payment for this booking was just submitted. Please wait before retrying.",
			"retry_after": dupErr.RetryAfter,
		})
		return
	}

	var conflictErr *models.InventoryConflict
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":              "inventory_conflict",
			"message":            conflictErr.Message,
			"unavailable_stalls": conflictErr.UnavailableStalls,
		})
		return
	}

	var timeoutErr *models.VerificationTimeout
	if errors.As(err, &timeoutErr) {
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":      "verification_timeout",
			"message":    "The payment gateway did not answer in time. Check the payment status again shortly.",
			"session_id": timeoutErr.SessionID,
		})
		return
	}

	var gatewayErr *models.GatewayError
	if errors.As(err, &gatewayErr) {
		logger.WithError(err).WithField("op", gatewayErr.Op).Error("Payment gateway error")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "gateway_error",
			"message":   "The payment gateway rejected the request",
			"retryable": gatewayErr.Retryable,
		})
		return
	}

	logger.WithError(err).Error("Unhandled error in booking flow")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Something went wrong. Please try again.",
	})
}
