package settings

type Preferences struct {
	Market   string  `json:"market"`
	Currency string  `json:"currency"`
	Capital  float64 `json:"capital"`
}

// PreferencesUpdate is the preferences part of an update. A nil Capital
// leaves the stored capital unchanged.
type PreferencesUpdate struct {
	Market   string   `json:"market"`
	Currency string   `json:"currency"`
	Capital  *float64 `json:"capital"`
}

type APISettings struct {
	AlpacaKey    string `json:"alpacaKey"`
	AlpacaSecret string `json:"alpacaSecret"`
}

type SettingsPayload struct {
	Preferences *PreferencesUpdate `json:"preferences,omitempty"`
	API         *APISettings       `json:"api,omitempty"`
}

type SettingsResponse struct {
	Preferences Preferences       `json:"preferences"`
	API         map[string]string `json:"api,omitempty"`
	Message     string            `json:"message,omitempty"`
}
