package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"solrelay/internal/apperrors"
	"solrelay/internal/services"
)

type webhookPayload struct {
	Signature string `json:"signature" binding:"required"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error"`
}

// WebhookHandler serves the provider push-notification ingress routes.
// Helius and QuickNode deliveries are handled by distinct routes, each
// backed by its own WebhookIngestor instance so the two providers' auth
// postures (strict vs lenient) stay independently configurable.
type WebhookHandler struct {
	helius    *services.WebhookIngestor
	quicknode *services.WebhookIngestor
}

func NewWebhookHandler(helius, quicknode *services.WebhookIngestor) *WebhookHandler {
	return &WebhookHandler{helius: helius, quicknode: quicknode}
}

func (h *WebhookHandler) Helius(c *gin.Context) {
	h.handle(c, h.helius, "helius", "X-Helius-Auth")
}

func (h *WebhookHandler) QuickNode(c *gin.Context) {
	h.handle(c, h.quicknode, "quicknode", "X-QuickNode-Auth")
}

func (h *WebhookHandler) handle(c *gin.Context, ingestor *services.WebhookIngestor, provider, authHeader string) {
	if err := ingestor.Authenticate(c.GetHeader(authHeader)); err != nil {
		writeError(c, err)
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, apperrors.New(apperrors.KindValidation, err.Error()))
		return
	}

	event := services.WebhookEvent{
		Provider:  provider,
		Signature: payload.Signature,
		Failed:    payload.Failed,
		ChainErr:  payload.Error,
	}

	if err := ingestor.Apply(provider, event); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
