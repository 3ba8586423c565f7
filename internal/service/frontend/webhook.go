package frontend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/milalabs/licsync/internal/license"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

const signatureHeader = "X-Signature"

type webhookPayload struct {
	Email string        `json:"email"`
	Items []webhookItem `json:"items"`
}

type webhookItem struct {
	LicenseKey  string `json:"license_key"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}

func (srv *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid request body"})
		return
	}

	if !verifySignature(srv.cfg.WebhookSecret, body, r.Header.Get(signatureHeader)) {
		logger.Warn(ctx, "Invalid webhook signature; payload ignored")
		writeJSON(w, http.StatusForbidden, response{Message: "Invalid signature"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Message: "Invalid request body"})
		return
	}
	if len(payload.Items) == 0 || payload.Items[0].LicenseKey == "" || payload.Items[0].ProductID == "" {
		writeJSON(w, http.StatusBadRequest, response{Message: "Missing license_key or product_id"})
		return
	}

	item := payload.Items[0]
	created, err := srv.licenses.RecordLicense(ctx, "", license.Record{
		LicenseKey:  item.LicenseKey,
		BuyerEmail:  payload.Email,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !created {
		logger.Info(ctx, "Webhook repeated an existing license", tag.LicenseKey(item.LicenseKey))
	}
	writeJSON(w, http.StatusOK, response{Success: true})
}

// verifySignature accepts a hex HMAC-SHA256 of the raw body in the
// X-Signature header, or a "signature" field computed over the payload
// with that field removed and keys sorted. An empty secret rejects all.
func verifySignature(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	if header != "" {
		return equalHex(sign(secret, body), header)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	var given string
	if err := json.Unmarshal(fields["signature"], &given); err != nil || given == "" {
		return false
	}
	delete(fields, "signature")
	canonical, err := json.Marshal(fields)
	if err != nil {
		return false
	}
	return equalHex(sign(secret, canonical), given)
}

func sign(secret string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(want, given string) bool {
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(given))))
}
