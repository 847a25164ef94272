package config

type InstagramSecretData struct {
	SessionID string `json:"sessionId"`
}

type PostgresSecretData struct {
	ConnectionString string `json:"connectionString"`
}
