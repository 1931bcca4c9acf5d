package authtest

import (
	"bytes"
	"encoding/base32"
	"encoding/json"
	"image/png"
	"net/http"

	"github.com/pquerna/otp/totp"
)

func (s *Server) handleOTPGenerate(w http.ResponseWriter, r *http.Request) {
	a := s.currentAccount(r)
	if a == nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	if a.TOTPEnabled {
		writeDetail(w, http.StatusBadRequest, "TOTP is already enabled for this user.")
		return
	}

	// Re-requesting the QR keeps the pending secret so an earlier scan
	// stays valid. GenerateOpts.Secret wants raw bytes, not base32.
	opts := totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: a.Email,
	}
	if a.TOTPSecret != "" {
		raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(a.TOTPSecret)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "stored TOTP secret is corrupt")
			return
		}
		opts.Secret = raw
	}

	key, err := totp.Generate(opts)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to generate TOTP key")
		return
	}

	if err := s.store.SetTOTP(r.Context(), a.ID, key.Secret(), false); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to store TOTP secret")
		return
	}

	img, err := key.Image(256, 256)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to render QR code")
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to encode QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleOTPEnable(w http.ResponseWriter, r *http.Request) {
	s.handleOTPToggle(w, r, true)
}

func (s *Server) handleOTPDisable(w http.ResponseWriter, r *http.Request) {
	s.handleOTPToggle(w, r, false)
}

func (s *Server) handleOTPToggle(w http.ResponseWriter, r *http.Request, enable bool) {
	a := s.currentAccount(r)
	if a == nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	// Wrong codes get an empty 401, no error envelope.
	if a.TOTPSecret == "" || !totp.Validate(body.Code, a.TOTPSecret) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if err := s.store.SetTOTP(r.Context(), a.ID, a.TOTPSecret, enable); err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to update TOTP state")
		return
	}
	w.WriteHeader(http.StatusOK)
}
