package api

import (
	"clipstash/cfg"
	"clipstash/pkg/domain"
	"clipstash/svc/svc"
	"clipstash/svc/util"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"
)

// JSON escaping can roughly double the body relative to the content.
const bodyOverhead = 2

type Hdl struct {
	store *svc.Store
	cfg   *cfg.Cfg
}
type CreateReq struct {
	Content           string `json:"content"`
	ContentType       string `json:"contentType,omitempty"`
	ExpirationMinutes *int   `json:"expirationMinutes,omitempty"`
	Password          string `json:"password,omitempty"`
	BurnAfterReading  bool   `json:"burnAfterReading,omitempty"`
	MaxAccess         int    `json:"maxAccess,omitempty"`
}
type CreateResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ClipResp is the public view of a clip. The password digest never leaves
// the store.
type ClipResp struct {
	Content          string             `json:"content"`
	ContentType      domain.ContentType `json:"contentType"`
	CreatedAt        time.Time          `json:"createdAt"`
	ExpiresAt        time.Time          `json:"expiresAt"`
	AccessCount      int                `json:"accessCount"`
	MaxAccess        int                `json:"maxAccess,omitempty"`
	BurnAfterReading bool               `json:"burnAfterReading"`
	Protected        bool               `json:"passwordProtected"`
}

func (h *Hdl) CreateClip(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		log.Warn().Str("content_type", r.Header.Get("Content-Type")).Msg("invalid Content-Type header")
		writeErrStatus(w, http.StatusUnsupportedMediaType, domain.ErrInvalidRequest, requestID)
		return
	}
	limit := int64(h.cfg.MaxContentSize)*bodyOverhead + 4096
	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		if n > limit {
			log.Warn().Int64("content_length", n).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrContentTooLarge, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeErr(w, domain.ErrContentTooLarge, requestID)
		case err == io.EOF:
			log.Warn().Msg("empty request body")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		default:
			log.Warn().Err(err).Msg("invalid request")
			writeErr(w, domain.ErrInvalidRequest, requestID)
		}
		return
	}
	if !utf8.ValidString(req.Content) {
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	minutes := h.cfg.DefaultExpirationMinutes
	if req.ExpirationMinutes != nil {
		minutes = *req.ExpirationMinutes
	}
	contentType, err := domain.ParseContentType(req.ContentType)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	password, err := preparePassword(req.Password)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	params := domain.CreateParams{
		Content:           req.Content,
		ContentType:       contentType,
		ExpirationMinutes: minutes,
		Password:          password,
		BurnAfterReading:  req.BurnAfterReading,
		MaxAccess:         req.MaxAccess,
	}
	if err := params.Validate(h.cfg.MaxContentSize); err != nil {
		log.Warn().Err(err).Int("content_length", len(req.Content)).Msg("create rejected")
		writeErr(w, err, requestID)
		return
	}
	clip, err := h.store.Create(r.Context(), params)
	if err != nil {
		log.Error().Err(err).Msg("failed to create clip")
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("token", util.RedactToken(clip.ID)).
		Int("minutes", minutes).
		Bool("password_protected", clip.Protected()).
		Msg("clip created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{Token: clip.ID, ExpiresAt: clip.ExpiresAt})
}
func (h *Hdl) GetClip(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	token := chi.URLParam(r, "token")
	if !util.IsToken(token) {
		writeErr(w, domain.ErrClipNotFound, requestID)
		return
	}
	password := r.Header.Get("X-Clip-Password")
	if password == "" {
		password = r.URL.Query().Get("password")
	}
	if password != "" {
		p, err := preparePassword(password)
		if err != nil {
			writeErr(w, domain.ErrClipNotFound, requestID)
			return
		}
		password = p
	}
	clip, err := h.store.Read(r.Context(), token, password)
	if err != nil {
		if errors.Is(err, domain.ErrClipNotFound) {
			log.Debug().Str("token", util.RedactToken(token)).Msg("clip not found")
		}
		writeErr(w, err, requestID)
		return
	}
	log.Info().
		Str("token", util.RedactToken(token)).
		Int("access_count", clip.AccessCount).
		Msg("clip retrieved")
	json.NewEncoder(w).Encode(ClipResp{
		Content:          clip.Content,
		ContentType:      clip.ContentType,
		CreatedAt:        clip.CreatedAt,
		ExpiresAt:        clip.ExpiresAt,
		AccessCount:      clip.AccessCount,
		MaxAccess:        clip.MaxAccess,
		BurnAfterReading: clip.BurnAfterReading,
		Protected:        clip.Protected(),
	})
}
func (h *Hdl) GetClipInfo(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	token := chi.URLParam(r, "token")
	if !util.IsToken(token) {
		writeErr(w, domain.ErrClipNotFound, requestID)
		return
	}
	info, err := h.store.Peek(r.Context(), token)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(info)
}
func (h *Hdl) DeleteClip(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	token := chi.URLParam(r, "token")
	if !util.IsToken(token) {
		writeErr(w, domain.ErrClipNotFound, requestID)
		return
	}
	ok, err := h.store.Delete(r.Context(), token)
	if err != nil {
		writeErr(w, err, requestID)
		return
	}
	if !ok {
		writeErr(w, domain.ErrClipNotFound, requestID)
		return
	}
	hlog.FromRequest(r).Info().Str("token", util.RedactToken(token)).Msg("clip deleted")
	json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
}
func (h *Hdl) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		writeErr(w, err, util.GetRequestID(r.Context()))
		return
	}
	json.NewEncoder(w).Encode(st)
}

// preparePassword normalizes to NFC so visually identical passwords typed on
// different platforms produce the same digest.
func preparePassword(pw string) (string, error) {
	if pw == "" {
		return "", nil
	}
	if !utf8.ValidString(pw) {
		return "", domain.ErrInvalidPassword
	}
	pw = norm.NFC.String(pw)
	if len(pw) > domain.MaxPasswordLength {
		return "", domain.ErrPasswordTooLong
	}
	for _, r := range pw {
		if r < 32 || r == 127 {
			return "", domain.ErrInvalidPassword
		}
	}
	return pw, nil
}
func writeErr(w http.ResponseWriter, err error, requestID string) {
	writeErrStatus(w, domain.Status(err), err, requestID)
}
func writeErrStatus(w http.ResponseWriter, status int, err error, requestID string) {
	resp := domain.ToResp(err)
	if status >= 500 && status != http.StatusServiceUnavailable {
		util.Error().Err(err).Str("request_id", requestID).Msg("internal error")
		resp = domain.ToResp(domain.ErrInternalServer)
	}
	resp.Error.RequestID = requestID
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
