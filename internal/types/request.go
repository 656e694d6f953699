package types

type RequestCreateSession struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	ClientID  string `json:"client_id"`
}

type RequestCreateMessage struct {
	ClientID  string `json:"clientId"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Platform  string `json:"platform"`
	WebhookID string `json:"webhookId"`
}

type RequestCreateWebhook struct {
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	URL      string   `json:"url"`
	Secret   string   `json:"secret"`
	Events   []string `json:"events"`
}

type RequestUpdateWebhook struct {
	Name     string   `json:"name"`
	Platform string   `json:"platform"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Status   string   `json:"status"`
}

type RequestToken struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}
