package settings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var selectSetting = regexp.QuoteMeta("SELECT setting_value FROM settings WHERE setting_key = $1")

func newMockStore(t *testing.T, cipher *Cipher) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, cipher, nil), mock
}

func TestStorePreferencesFallsBack(t *testing.T) {
	store, mock := newMockStore(t, nil)

	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultMarket).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}).AddRow("RF"))
	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultCurrency).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}))
	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultCapital).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}).AddRow("2500"))

	prefs, err := store.Preferences(context.Background(), Preferences{Market: "USA", Currency: "USD", Capital: 1000})
	require.NoError(t, err)
	assert.Equal(t, Preferences{Market: "RF", Currency: "USD", Capital: 2500}, prefs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreSecretIsEncrypted(t *testing.T) {
	c, err := NewCipher(testKey())
	require.NoError(t, err)
	store, mock := newMockStore(t, c)

	mock.ExpectExec("INSERT INTO settings").
		WithArgs(KeyAlpacaAPIKey, sqlmock.AnyArg(), "secret").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SetSecret(context.Background(), KeyAlpacaAPIKey, "PKLIVE"))
	require.NoError(t, mock.ExpectationsWereMet())

	stored, err := c.Encrypt("PKLIVE")
	require.NoError(t, err)
	mock.ExpectQuery(selectSetting).WithArgs(KeyAlpacaAPIKey).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}).AddRow(stored))

	got, err := store.GetSecret(context.Background(), KeyAlpacaAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "PKLIVE", got)
}

func TestLoadSettingsFromDatabase(t *testing.T) {
	store, mock := newMockStore(t, nil)
	mock.MatchExpectationsInOrder(false)
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_API_SECRET", "")

	mock.ExpectQuery(selectSetting).WithArgs(KeyAlpacaAPIKey).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}).AddRow("PKSTORED"))
	mock.ExpectQuery(selectSetting).WithArgs(KeyAlpacaAPISecret).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}))

	require.NoError(t, store.LoadSettingsFromDatabase(context.Background()))
	assert.Equal(t, "PKSTORED", os.Getenv("ALPACA_API_KEY"))
	assert.Equal(t, "", os.Getenv("ALPACA_API_SECRET"))
}

func TestHandleUpdateSettingsValidates(t *testing.T) {
	store, mock := newMockStore(t, nil)
	h := NewHandler(store, Preferences{Market: "USA", Currency: "USD", Capital: 1000}, []string{"USA", "RF"}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"unknown market", `{"preferences":{"market":"MARS"}}`},
		{"bad currency", `{"preferences":{"currency":"EUR"}}`},
		{"negative capital", `{"preferences":{"capital":-1}}`},
		{"zero capital", `{"preferences":{"capital":0}}`},
		{"overflowing capital", `{"preferences":{"capital":1e400}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(tt.body))
			h.HandleUpdateSettings(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpdateSettingsStores(t *testing.T) {
	store, mock := newMockStore(t, nil)
	h := NewHandler(store, Preferences{Market: "USA", Currency: "USD", Capital: 1000}, []string{"USA", "RF"}, nil)

	mock.ExpectExec("INSERT INTO settings").WithArgs(KeyDefaultMarket, "RF", "string").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO settings").WithArgs(KeyDefaultCapital, "5000", "number").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"preferences":{"market":"RF","capital":5000}}`))
	h.HandleUpdateSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Settings updated successfully", resp.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleUpdateSettingsAPIKeysNeedRestart(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	store, mock := newMockStore(t, nil)
	h := NewHandler(store, Preferences{Market: "USA", Currency: "USD", Capital: 1000}, []string{"USA"}, nil)

	mock.ExpectExec("INSERT INTO settings").WithArgs(KeyAlpacaAPIKey, "PKNEW", "secret").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/settings",
		strings.NewReader(`{"api":{"alpacaKey":"PKNEW"}}`))
	h.HandleUpdateSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Settings updated successfully; restart to apply new API keys", resp.Message)
	assert.Equal(t, "PKNEW", os.Getenv("ALPACA_API_KEY"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleGetSettingsMasksKeys(t *testing.T) {
	store, mock := newMockStore(t, nil)
	h := NewHandler(store, Preferences{Market: "USA", Currency: "USD", Capital: 1000}, []string{"USA"}, nil)

	empty := func() *sqlmock.Rows { return sqlmock.NewRows([]string{"setting_value"}) }
	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultMarket).WillReturnRows(empty())
	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultCurrency).WillReturnRows(empty())
	mock.ExpectQuery(selectSetting).WithArgs(KeyDefaultCapital).WillReturnRows(empty())
	mock.ExpectQuery(selectSetting).WithArgs(KeyAlpacaAPIKey).
		WillReturnRows(sqlmock.NewRows([]string{"setting_value"}).AddRow("PKABCDEFGH"))
	mock.ExpectQuery(selectSetting).WithArgs(KeyAlpacaAPISecret).WillReturnRows(empty())

	rec := httptest.NewRecorder()
	h.HandleGetSettings(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, Preferences{Market: "USA", Currency: "USD", Capital: 1000}, resp.Preferences)
	assert.Equal(t, "PKAB****...****", resp.API["alpacaKeyMasked"])
	assert.Equal(t, "Not set", resp.API["alpacaSecretMasked"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
