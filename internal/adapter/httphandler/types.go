package httphandler

import (
	"time"

	"github.com/niksmo/pricesync/internal/core/domain"
)

type (
	errorResponse struct {
		Error string `json:"error"`
	}

	statusResponse struct {
		Status string `json:"status"`
	}

	webhookResponse struct {
		Status string `json:"status"`
		RefID  string `json:"ref_id"`
	}

	syncStatusResponse struct {
		LastSync     time.Time `json:"last_sync"`
		ProductCount int       `json:"product_count"`
	}

	purgeResponse struct {
		Report domain.DeleteReport `json:"report"`
	}

	resetResponse struct {
		UserID  string                `json:"user_id"`
		Reports []domain.DeleteReport `json:"reports"`
		Deleted int                   `json:"deleted"`
	}
)
