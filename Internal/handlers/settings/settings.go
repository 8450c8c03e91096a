package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os"

	"github.com/fazecat/quantterm/Internal/types"
	"go.uber.org/zap"
)

// Handler serves the settings API on top of a Store.
type Handler struct {
	store    *Store
	defaults Preferences
	markets  map[string]bool
	logger   *zap.Logger
}

func NewHandler(store *Store, defaults Preferences, markets []string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(markets))
	for _, m := range markets {
		known[m] = true
	}
	return &Handler{store: store, defaults: defaults, markets: known, logger: logger}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// HandleGetSettings returns the dashboard defaults and masked API keys.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	prefs, err := h.store.Preferences(ctx, h.defaults)
	if err != nil {
		h.logger.Error("failed to load preferences", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	key, err := h.store.GetSecret(ctx, KeyAlpacaAPIKey)
	if err != nil {
		h.logger.Warn("failed to read alpaca key", zap.Error(err))
	}
	secret, err := h.store.GetSecret(ctx, KeyAlpacaAPISecret)
	if err != nil {
		h.logger.Warn("failed to read alpaca secret", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Preferences: prefs,
		API: map[string]string{
			"alpacaKeyMasked":    MaskSensitiveValue(key),
			"alpacaSecretMasked": MaskSensitiveValue(secret),
		},
	})
}

func (h *Handler) validate(p *PreferencesUpdate) error {
	if p.Market != "" && !h.markets[p.Market] {
		return fmt.Errorf("unknown market %q", p.Market)
	}
	if p.Currency != "" && !types.Currency(p.Currency).Valid() {
		return fmt.Errorf("unsupported currency %q", p.Currency)
	}
	if p.Capital != nil && (!(*p.Capital > 0) || math.IsInf(*p.Capital, 0)) {
		return fmt.Errorf("capital must be a positive finite number")
	}
	return nil
}

// HandleUpdateSettings stores the non-empty fields of the payload. Alpaca keys
// are saved and exported to the environment, but providers read them only at
// startup, so new keys take effect after a restart.
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload SettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if p := payload.Preferences; p != nil {
		if err := h.validate(p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var errs []error
		if p.Market != "" {
			errs = append(errs, h.store.SetString(ctx, KeyDefaultMarket, p.Market))
		}
		if p.Currency != "" {
			errs = append(errs, h.store.SetString(ctx, KeyDefaultCurrency, p.Currency))
		}
		if p.Capital != nil {
			errs = append(errs, h.store.SetFloat(ctx, KeyDefaultCapital, *p.Capital))
		}
		for _, err := range errs {
			if err != nil {
				h.logger.Error("failed to save preferences", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
		}
	}

	message := "Settings updated successfully"
	if a := payload.API; a != nil {
		for _, kv := range []struct{ key, value, env string }{
			{KeyAlpacaAPIKey, a.AlpacaKey, "ALPACA_API_KEY"},
			{KeyAlpacaAPISecret, a.AlpacaSecret, "ALPACA_API_SECRET"},
		} {
			if kv.value == "" {
				continue
			}
			if err := h.store.SetSecret(ctx, kv.key, kv.value); err != nil {
				h.logger.Error("failed to save api key", zap.String("key", kv.key), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to save settings")
				return
			}
			os.Setenv(kv.env, kv.value)
			message = "Settings updated successfully; restart to apply new API keys"
		}
	}

	writeJSON(w, http.StatusOK, SettingsResponse{Message: message})
}
