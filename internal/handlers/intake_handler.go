package handlers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"solrelay/internal/apperrors"
	"solrelay/internal/models"
	"solrelay/internal/services"
)

// transferDetailsRequest mirrors the wire shape of the submission
// request's transfer_details field: a tagged union selected by "type".
type transferDetailsRequest struct {
	Type                           string `json:"type"`
	Amount                         uint64 `json:"amount"`
	EqualityProof                  string `json:"equality_proof"`
	CiphertextValidityProof        string `json:"ciphertext_validity_proof"`
	RangeProof                     string `json:"range_proof"`
	NewDecryptableAvailableBalance string `json:"new_decryptable_available_balance"`
}

type submitTransferRequest struct {
	FromAddress     string                 `json:"from_address" binding:"required"`
	ToAddress       string                 `json:"to_address" binding:"required"`
	TransferDetails transferDetailsRequest `json:"transfer_details" binding:"required"`
	TokenMint       *string                `json:"token_mint"`
	Signature       string                 `json:"signature" binding:"required"`
	Nonce           string                 `json:"nonce" binding:"required"`
}

// IntakeHandler serves the single transfer submission route.
type IntakeHandler struct {
	intake *services.IntakeService
}

func NewIntakeHandler(intake *services.IntakeService) *IntakeHandler {
	return &IntakeHandler{intake: intake}
}

func (h *IntakeHandler) Submit(c *gin.Context) {
	var req submitTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.New(apperrors.KindValidation, err.Error()))
		return
	}

	details, err := parseTransferDetails(req.TransferDetails)
	if err != nil {
		writeError(c, err)
		return
	}

	submitReq := services.SubmitRequest{
		FromAddress:    req.FromAddress,
		ToAddress:      req.ToAddress,
		Details:        details,
		TokenMint:      req.TokenMint,
		SignatureB58:   req.Signature,
		Nonce:          req.Nonce,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	}

	record, err := h.intake.Submit(submitReq)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func parseTransferDetails(req transferDetailsRequest) (models.TransferDetails, error) {
	switch req.Type {
	case string(models.TransferKindPublic):
		return models.TransferDetails{Kind: models.TransferKindPublic, Amount: req.Amount}, nil
	case string(models.TransferKindConfidential):
		equality, err := base64.StdEncoding.DecodeString(req.EqualityProof)
		if err != nil {
			return models.TransferDetails{}, apperrors.New(apperrors.KindValidation, "equality_proof is not valid base64")
		}
		ciphertext, err := base64.StdEncoding.DecodeString(req.CiphertextValidityProof)
		if err != nil {
			return models.TransferDetails{}, apperrors.New(apperrors.KindValidation, "ciphertext_validity_proof is not valid base64")
		}
		rangeProof, err := base64.StdEncoding.DecodeString(req.RangeProof)
		if err != nil {
			return models.TransferDetails{}, apperrors.New(apperrors.KindValidation, "range_proof is not valid base64")
		}
		balance, err := base64.StdEncoding.DecodeString(req.NewDecryptableAvailableBalance)
		if err != nil {
			return models.TransferDetails{}, apperrors.New(apperrors.KindValidation, "new_decryptable_available_balance is not valid base64")
		}
		return models.TransferDetails{
			Kind:                           models.TransferKindConfidential,
			EqualityProof:                  equality,
			CiphertextValidityProof:        ciphertext,
			RangeProof:                     rangeProof,
			NewDecryptableAvailableBalance: balance,
		}, nil
	default:
		return models.TransferDetails{}, apperrors.New(apperrors.KindValidation, "transfer_details.type must be \"public\" or \"confidential\"")
	}
}

// writeError renders the error envelope and status described for every
// RelayError kind; an untyped error is treated as an internal error.
func writeError(c *gin.Context, err error) {
	relayErr, ok := apperrors.As(err)
	if !ok {
		relayErr = apperrors.New(apperrors.KindInternal, err.Error())
	}
	c.JSON(relayErr.Kind.HTTPStatus(), gin.H{
		"error": gin.H{
			"type":    relayErr.Kind,
			"message": relayErr.Message,
		},
	})
}
