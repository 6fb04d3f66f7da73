package config

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "",
			Port:               3000,
			RateLimitPerMinute: 60,
			MaxBodyBytes:       1 << 20,
		},
		Session: SessionConfig{
			StorePath:       "whatsapp-bot.db",
			DeviceName:      "warelay",
			LibraryLogLevel: "warn",
		},
		Downstream: DownstreamConfig{
			URL:             "http://localhost:5000",
			EventPath:       "/webhook",
			SpreadsheetPath: "/process-excel",
			TimeoutSeconds:  30,
			QueueSize:       256,
			Workers:         4,
		},
		Files: FilesConfig{
			PairingCode:    "last_qr.txt",
			GuestList:      "invitados.xlsx",
			SpreadsheetExt: ".xlsx",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
